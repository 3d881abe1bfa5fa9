package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Core
	BotToken    string `env:"BOT_TOKEN,required"`
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Admin
	AdminIDs []int64 `env:"ADMIN_IDS" envSeparator:","`

	// Currency
	CurrencyName    string `env:"CURRENCY_NAME" envDefault:"积分"`
	StartingBalance int64  `env:"STARTING_BALANCE" envDefault:"100"`

	// Packets
	PacketTTLMinutes int `env:"PACKET_TTL_MINUTES" envDefault:"10"`

	// Bot behavior
	DropPendingUpdates bool `env:"BOT_DROP_PENDING_UPDATES" envDefault:"false"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsAdmin(telegramID int64) bool {
	for _, id := range c.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

func (c *Config) PacketTTL() time.Duration {
	return time.Duration(c.PacketTTLMinutes) * time.Minute
}
