package handler

import (
	"github.com/go-telegram/bot"

	"github.com/emberworks/hongbao/internal/config"
	"github.com/emberworks/hongbao/internal/repository"
	"github.com/emberworks/hongbao/internal/service"
)

// Handler holds all dependencies needed by command and callback handlers.
type Handler struct {
	bot           *bot.Bot
	cfg           *config.Config
	userService   *service.UserService
	packetService *service.RedPacketService
	wallets       *repository.Wallets
	botUsername   string
}

// Deps contains all dependencies required to construct a Handler.
type Deps struct {
	Bot           *bot.Bot
	Cfg           *config.Config
	UserService   *service.UserService
	PacketService *service.RedPacketService
	Wallets       *repository.Wallets
	BotUsername   string
}

// New creates a new Handler from the provided dependencies.
func New(deps Deps) *Handler {
	return &Handler{
		bot:           deps.Bot,
		cfg:           deps.Cfg,
		userService:   deps.UserService,
		packetService: deps.PacketService,
		wallets:       deps.Wallets,
		botUsername:   deps.BotUsername,
	}
}
