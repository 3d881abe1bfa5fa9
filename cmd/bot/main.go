package main

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron/v2"
	"github.com/go-telegram/bot"

	hongbao "github.com/emberworks/hongbao"
	"github.com/emberworks/hongbao/internal/config"
	"github.com/emberworks/hongbao/internal/handler"
	"github.com/emberworks/hongbao/internal/middleware"
	"github.com/emberworks/hongbao/internal/repository"
	"github.com/emberworks/hongbao/internal/service"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Run migrations
	migrationsFS, err := fs.Sub(hongbao.MigrationsFS, "migrations")
	if err != nil {
		slog.Error("failed to load embedded migrations", "error", err)
		os.Exit(1)
	}
	if err := repository.RunMigrations(cfg.DatabaseURL, migrationsFS); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize stores and services
	packets := repository.NewPackets(pool)
	wallets := repository.NewWallets(pool)
	users := repository.NewUsers(pool)

	userService := service.NewUserService(users, wallets, cfg.StartingBalance)
	packetService := service.NewRedPacketService(packets, wallets)

	// Create bot
	opts := []bot.Option{
		bot.WithMiddlewares(
			middleware.Recover(),
			middleware.Logging(),
			middleware.UserLoader(userService, cfg),
		),
	}

	b, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		slog.Error("failed to create bot", "error", err)
		os.Exit(1)
	}

	// Get bot info
	me, err := b.GetMe(ctx)
	if err != nil {
		slog.Error("failed to get bot info", "error", err)
		os.Exit(1)
	}

	// Register handlers
	h := handler.New(handler.Deps{
		Bot:           b,
		Cfg:           cfg,
		UserService:   userService,
		PacketService: packetService,
		Wallets:       wallets,
		BotUsername:   me.Username,
	})
	h.Register()

	// Background sweeper: expire and refund packets whose deadline passed
	// without a triggering claim attempt.
	sched, err := gocron.NewScheduler()
	if err != nil {
		slog.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(config.SweepInterval),
		gocron.NewTask(func() {
			expired, err := packetService.SweepExpired(context.Background())
			if err != nil {
				slog.Error("sweep expired packets", "error", err)
				return
			}
			if expired > 0 {
				slog.Info("swept expired packets", "count", expired)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to schedule expiry sweep", "error", err)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Shutdown()

	// Start bot
	slog.Info("starting bot", "username", me.Username, "id", me.ID)
	b.Start(ctx)

	slog.Info("bot stopped gracefully")
}
