// Package server initializes and runs the custody server: it wires the
// database, the notification stack, the release archive and the periodic
// sweep, and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/pyoneerc/deadhand/internal/logging"
	"github.com/pyoneerc/deadhand/internal/server/archive"
	"github.com/pyoneerc/deadhand/internal/server/config"
	"github.com/pyoneerc/deadhand/internal/server/notify"
	"github.com/pyoneerc/deadhand/internal/server/repositories/repomanager"
	"github.com/pyoneerc/deadhand/internal/server/sweep"
	"github.com/pyoneerc/deadhand/internal/server/vaults"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	service *vaults.Service
	sweeper *sweep.Sweeper
}

func NewApp(cfg *config.Config) (*App, error) {

	l := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(l)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	notifier := buildNotifier(cfg, logger)

	var archiver vaults.Archiver
	if cfg.S3Bucket != "" {
		archiver = archive.NewS3Archiver(cfg)
	}

	service := vaults.NewService(db, rm, cfg, notifier, archiver, logger)
	sweeper := sweep.New(service, logger, 8, cfg.SweepVaultTimeout)

	return &App{config: cfg, logger: logger, db: db, service: service, sweeper: sweeper}, nil
}

// buildNotifier selects the dedup backend: Redis when an address is
// configured, a process-local map otherwise.
func buildNotifier(cfg *config.Config, logger logging.Logger) notify.Notifier {
	var deduper notify.Deduper
	if cfg.RedisAddr != "" {
		deduper = notify.NewRedisDeduper(redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}))
	} else {
		deduper = notify.NewMemoryDeduper()
	}
	return notify.NewDedupNotifier(notify.NewLogNotifier(logger), deduper, cfg.NotifyDedupTTL)
}

// Service exposes the custody state machine for transports built on top
// of the app.
func (app *App) Service() *vaults.Service {
	return app.service
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.sweeper.RunPeriodic(ctx, app.config.SweepInterval)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err.Error())
	}
	app.logger.Info(ctx, "App stopped")
}
