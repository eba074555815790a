package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcoot/proxymail/internal/api"
	"github.com/mcoot/proxymail/internal/config"
	"github.com/mcoot/proxymail/internal/factory"
	"github.com/mcoot/proxymail/internal/scheduler"
	"github.com/mcoot/proxymail/internal/services/mail"
	boltstorage "github.com/mcoot/proxymail/internal/storage/bolt"
	filestorage "github.com/mcoot/proxymail/internal/storage/file"
	redisstorage "github.com/mcoot/proxymail/internal/storage/redis"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up logging with JSON output
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Create application factory
	app, err := factory.New(factoryConfig(cfg, logger))
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Periodic snapshot and cleanup jobs
	schedule := factory.Schedule{SnapshotInterval: cfg.Snapshot.Interval}
	if cfg.Mail.CleanupEnabled {
		schedule.CleanupInterval = cfg.Mail.CleanupInterval
		schedule.CleanupDelay = cfg.Mail.CleanupDelay
	}
	sched := scheduler.New(app.Metrics, logger)
	for _, job := range app.Jobs(schedule) {
		if err := sched.Add(job); err != nil {
			logger.Error("failed to schedule job", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		Logger:      logger,
		MailService: app.MailService,
		Metrics:     app.Metrics,
		TokenHash:   cfg.Server.APITokenHash,
		StorageType: cfg.Storage.Type,
	})

	// Create server
	serverConfig := api.DefaultServerConfig()
	serverConfig.Port = cfg.Server.Port
	server := api.NewServer(router, serverConfig, logger)

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("server started", slog.String("addr", server.Addr()))

	// Wait for shutdown or error
	exitCode := 0
	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			exitCode = 1
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
			exitCode = 1
		}
	}

	// Stop jobs before the final save so no snapshot runs concurrently
	sched.Stop()
	if err := app.Close(); err != nil {
		exitCode = 1
	}

	logger.Info("server stopped")
	os.Exit(exitCode)
}

// factoryConfig maps the loaded configuration onto the factory's settings
func factoryConfig(cfg config.Config, logger *slog.Logger) factory.Config {
	out := factory.Config{
		Logger:      logger,
		StorageType: cfg.Storage.Type,
		FileConfig: filestorage.Config{
			Dir:      cfg.Storage.DataDir,
			FileName: cfg.Storage.FileName,
		},
		MailConfig: mail.Config{
			CleanupThreshold: cfg.Mail.CleanupThreshold,
			PageSize:         cfg.Mail.PageSize,
		},
	}

	switch cfg.Storage.Type {
	case config.StorageRedis:
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = cfg.Storage.RedisURL
		out.RedisConfig = &redisCfg
	case config.StorageBolt:
		boltCfg := boltstorage.DefaultConfig()
		boltCfg.Path = cfg.Storage.BoltFile()
		out.BoltConfig = &boltCfg
	}
	return out
}
