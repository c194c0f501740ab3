package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"predictionledger/internal/auth"
	"predictionledger/internal/bot"
	"predictionledger/internal/config"
	"predictionledger/internal/event"
	"predictionledger/internal/handlers"
	"predictionledger/internal/ledger"
	"predictionledger/internal/logger"
	"predictionledger/internal/server"
	"predictionledger/internal/service"
	"predictionledger/internal/storage"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("LEDGER_CONFIG"), "path to a TOML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = cfg.Log.Format
	logCfg.Environment = cfg.Log.Environment
	logCfg.Version = version
	logger.Init(logCfg)

	ctx := context.Background()

	slog.Info("Initializing database", "path", cfg.Database.Path)
	store, err := storage.Open(cfg.Database.Path, storage.WithCacheSize(cfg.Database.CacheSize))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	// Event sinks: in-process subscribers plus optional Redis fan-out, all
	// delivered off the request path.
	bus := event.NewMemoryBus()
	sinks := event.Multi{bus}
	if cfg.Redis.Addr != "" {
		redisPub, err := event.NewRedisPublisher(ctx, event.RedisConfig{
			Addr:          cfg.Redis.Addr,
			Password:      cfg.Redis.Password,
			DB:            cfg.Redis.DB,
			TLSEnabled:    cfg.Redis.TLSEnabled,
			ChannelPrefix: cfg.Redis.ChannelPrefix,
		})
		if err != nil {
			return err
		}
		defer redisPub.Close()
		sinks = append(sinks, redisPub)
		slog.Info("Publishing events to Redis", "addr", cfg.Redis.Addr)
	}
	publisher := event.NewAsyncPublisher(sinks, event.DefaultAsyncBuffer)

	clock := ledger.SystemClock{}
	engine := ledger.NewEngine(store, clock, publisher)

	ps, err := engine.Initialize(ctx, cfg.Authority())
	switch {
	case errors.Is(err, ledger.ErrProtocolAlreadyInitialized):
		if ps, err = engine.Protocol(ctx); err != nil {
			return fmt.Errorf("failed to read protocol state: %w", err)
		}
		if ps.Authority != cfg.Authority() {
			slog.Warn("Configured protocol authority differs from stored authority",
				"configured", cfg.Authority(),
				"stored", ps.Authority)
		}
	case err != nil:
		return fmt.Errorf("failed to initialize protocol: %w", err)
	}
	slog.Info("Protocol ready", "authority", ps.Authority, "total_markets", ps.TotalMarkets, "paused", ps.IsPaused)

	var (
		tgVerifier     *auth.TelegramVerifier
		walletVerifier *auth.WalletVerifier
	)
	if cfg.Telegram.BotToken != "" {
		tgVerifier = auth.NewTelegramVerifier(cfg.Telegram.BotToken, cfg.Auth.MaxAge.Duration)
	}
	if cfg.Auth.WalletLogin {
		walletVerifier = auth.NewWalletVerifier(cfg.Auth.MaxAge.Duration)
	}

	h := handlers.New(engine, store, clock, cfg.Ledger.WelcomeBonus)
	srv := server.New(server.Options{
		Port:      cfg.Server.Port,
		StaticDir: cfg.Server.StaticDir,
		Telegram:  tgVerifier,
		Wallet:    walletVerifier,
	}, h, store)

	var (
		tgBot  *bot.Bot
		worker *service.MarketWorker
	)
	if cfg.Telegram.BotToken != "" {
		tgBot, err = bot.New(bot.Config{
			Token:        cfg.Telegram.BotToken,
			WebAppURL:    cfg.Telegram.WebAppURL,
			WelcomeBonus: cfg.Ledger.WelcomeBonus,
		}, engine, store, clock)
		if err != nil {
			return err
		}

		notifications := service.NewNotificationService(tgBot.API(), store, cfg.Telegram.ChannelID)
		notifications.Subscribe(bus)

		worker = service.NewMarketWorker(store, notifications, clock, cfg.Worker.Interval.Duration, cfg.Worker.BatchSize)
		worker.Start()

		go tgBot.Start()
	} else {
		slog.Info("Telegram bot disabled: no bot token configured")
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Shutting down", "signal", sig.String())
	case err := <-serverErr:
		slog.Error("Server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown", "error", err)
	}
	if tgBot != nil {
		tgBot.Stop()
	}
	if worker != nil {
		worker.Stop()
	}
	if err := publisher.Close(shutdownCtx); err != nil {
		slog.Warn("Event queue not drained", "error", err)
	}

	slog.Info("Shutdown complete")
	return nil
}
