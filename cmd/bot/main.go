package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/xaenox/star-collector/internal/bot"
	"github.com/xaenox/star-collector/internal/collector"
	"github.com/xaenox/star-collector/internal/patterns"
	"github.com/xaenox/star-collector/internal/storage"
	"github.com/xaenox/star-collector/internal/transport/mtproto"
	"github.com/xaenox/star-collector/pkg/config"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", configPath))
	}

	// Initialize storage
	var store storage.Storage
	switch cfg.Database.Driver {
	case "memory":
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	case "postgres":
		logger.Info("Using PostgreSQL storage")
		store, err = storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	default:
		logger.Info("Using SQLite storage", zap.String("path", cfg.Database.Path))
		store, err = storage.NewSQLiteStorage(cfg.Database.Path, logger)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Initialize the manager bot
	b, err := bot.New(cfg.Telegram.Token, store, logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	// Initialize the collector registry
	extractor := patterns.NewExtractor(patterns.DefaultRules())
	dialer := mtproto.NewDialer(cfg.Userbot.APIID, cfg.Userbot.APIHash, logger)
	registry := collector.NewRegistry(dialer, store, b.Notifier(), extractor, collector.Config{
		TargetBot:           cfg.Collector.TargetBot,
		MaxConfirmAttempts:  cfg.Collector.MaxConfirmAttempts,
		SettleDelay:         cfg.Collector.SettleDelay,
		ConfirmPollDelay:    cfg.Collector.ConfirmPollDelay,
		RateLimitBackoff:    cfg.Collector.RateLimitBackoff,
		NoTasksBackoff:      cfg.Collector.NoTasksBackoff,
		HealthCheckInterval: cfg.Collector.HealthCheckInterval,
		CallTimeout:         cfg.Collector.CallTimeout,
	}, logger)
	b.AttachRegistry(registry)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Resume accounts that were collecting before the last shutdown
	go b.ResumeActive(ctx)

	// Run the manager bot until shutdown
	go func() {
		if err := b.Start(ctx); err != nil {
			logger.Error("Bot error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := registry.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Shutdown incomplete", zap.Error(err))
	}
}
