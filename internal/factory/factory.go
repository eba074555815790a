package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mcoot/proxymail/internal/dependencies/clock"
	"github.com/mcoot/proxymail/internal/metrics"
	"github.com/mcoot/proxymail/internal/scheduler"
	"github.com/mcoot/proxymail/internal/services/mail"
	"github.com/mcoot/proxymail/internal/storage"
	boltstorage "github.com/mcoot/proxymail/internal/storage/bolt"
	filestorage "github.com/mcoot/proxymail/internal/storage/file"
	redisstorage "github.com/mcoot/proxymail/internal/storage/redis"
)

// Storage type constants
const (
	StorageTypeFile  = "file"
	StorageTypeRedis = "redis"
	StorageTypeBolt  = "bolt"
)

// Job names
const (
	JobSnapshot = "snapshot"
	JobCleanup  = "cleanup"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage
	// Snapshotter is set when the backend keeps state in memory and must be
	// saved periodically
	Snapshotter storage.Snapshotter

	// External dependencies
	Clock   clock.Clock
	Metrics *metrics.Metrics

	// Services
	MailService *mail.Service

	closer io.Closer
	logger *slog.Logger
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("file", "redis" or "bolt")
	// If empty, defaults to "file"
	StorageType string
	// FileConfig holds snapshot file settings (optional for "file")
	// If zero value, defaults to filestorage.DefaultConfig()
	FileConfig filestorage.Config
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// BoltConfig holds bbolt settings (optional for "bolt")
	BoltConfig *boltstorage.Config
	// MailConfig holds mail service settings
	// If zero value, defaults to mail.DefaultConfig()
	MailConfig mail.Config
}

// New creates a new application with all dependencies wired. For the file
// backend the snapshot on disk is loaded before New returns.
func New(cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeFile
	}

	var (
		store       storage.Storage
		snapshotter storage.Snapshotter
		closer      io.Closer
	)
	switch storageType {
	case StorageTypeFile:
		fileCfg := cfg.FileConfig
		if fileCfg.Dir == "" {
			fileCfg = filestorage.DefaultConfig()
		}
		fileStore, err := filestorage.Open(fileCfg, logger)
		if err != nil {
			return nil, err
		}
		store, snapshotter, closer = fileStore, fileStore, fileStore
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		redisStore, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, err
		}
		store, closer = redisStore, redisStore
	case StorageTypeBolt:
		boltCfg := boltstorage.DefaultConfig()
		if cfg.BoltConfig != nil {
			boltCfg = *cfg.BoltConfig
		}
		boltStore, err := boltstorage.Open(boltCfg)
		if err != nil {
			return nil, err
		}
		store, closer = boltStore, boltStore
	default:
		return nil, fmt.Errorf("invalid StorageType %q: must be 'file', 'redis' or 'bolt'", storageType)
	}

	mailCfg := cfg.MailConfig
	if mailCfg.CleanupThreshold == 0 {
		mailCfg.CleanupThreshold = mail.DefaultConfig().CleanupThreshold
	}

	app := newWithDependencies(store, clock.New(), metrics.New(), mailCfg, logger)
	app.Snapshotter = snapshotter
	app.closer = closer
	logger.Info("storage ready", slog.String("type", storageType))
	return app, nil
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(store storage.Storage, clk clock.Clock, m *metrics.Metrics, mailCfg mail.Config, logger *slog.Logger) *App {
	return &App{
		Storage:     store,
		Clock:       clk,
		Metrics:     m,
		MailService: mail.New(store, clk, mailCfg, m, logger),
		logger:      logger,
	}
}

// Schedule sets how often the periodic jobs run. A zero CleanupInterval
// disables cleanup; CleanupDelay is the wait before the first cleanup.
type Schedule struct {
	SnapshotInterval time.Duration
	CleanupInterval  time.Duration
	CleanupDelay     time.Duration
}

// Jobs returns the periodic jobs the server should run. The snapshot job is
// only present when the backend needs one.
func (a *App) Jobs(sched Schedule) []scheduler.Job {
	var jobs []scheduler.Job
	if a.Snapshotter != nil {
		jobs = append(jobs, scheduler.Job{
			Name:     JobSnapshot,
			Interval: sched.SnapshotInterval,
			Run: func(context.Context) error {
				return a.Snapshotter.Save()
			},
		})
	}
	if sched.CleanupInterval > 0 {
		jobs = append(jobs, scheduler.Job{
			Name:     JobCleanup,
			Interval: sched.CleanupInterval,
			Delay:    sched.CleanupDelay,
			Run: func(ctx context.Context) error {
				_, err := a.MailService.Cleanup(ctx)
				return err
			},
		})
	}
	return jobs
}

// Close releases the storage backend. The file backend writes a final
// snapshot first.
func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	if err := a.closer.Close(); err != nil {
		a.logger.Error("failed to close storage", slog.String("error", err.Error()))
		return err
	}
	return nil
}
