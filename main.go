package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/ekaya-inc/labqms/pkg/blob"
	"github.com/ekaya-inc/labqms/pkg/config"
	"github.com/ekaya-inc/labqms/pkg/database"
	"github.com/ekaya-inc/labqms/pkg/handlers"
	"github.com/ekaya-inc/labqms/pkg/locker"
	"github.com/ekaya-inc/labqms/pkg/logging"
	"github.com/ekaya-inc/labqms/pkg/metrics"
	"github.com/ekaya-inc/labqms/pkg/middleware"
	"github.com/ekaya-inc/labqms/pkg/repositories"
	"github.com/ekaya-inc/labqms/pkg/seed"
	"github.com/ekaya-inc/labqms/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.String("error", logging.SanitizeError(err)))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.Bool("redis_lock", cfg.Redis.Host != ""),
		zap.Bool("archives", cfg.Backup.Enabled()))

	m := metrics.New()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close store", zap.Error(err))
		}
	}()

	lk, closeLocker, err := newLocker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	var archives blob.Store
	if cfg.Backup.Enabled() {
		s3Store, err := blob.NewS3(ctx, blob.S3Config{
			Bucket:          cfg.Backup.Bucket,
			Region:          cfg.Backup.Region,
			Endpoint:        cfg.Backup.Endpoint,
			UsePathStyle:    cfg.Backup.UsePathStyle,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretAccessKey,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create archive store: %w", err)
		}
		archives = s3Store
	}

	ncService := services.NewNonConformityService(store.NonConformities(), lk, m, logger)
	paService := services.NewPreventiveActionService(store.PreventiveActions(), lk, m, logger)
	backupService := services.NewBackupService(store, archives, cfg.Backup.Prefix, lk, m, logger)

	if cfg.Storage.SeedFile != "" {
		f, err := seed.Load(cfg.Storage.SeedFile)
		if err != nil {
			return err
		}
		if _, err := seed.Apply(ctx, f, ncService, paService, cfg.Auth.DefaultActor, logger); err != nil {
			return fmt.Errorf("failed to apply seed file: %w", err)
		}
	}

	actors := handlers.ActorResolver{Header: cfg.Auth.UserHeader, Default: cfg.Auth.DefaultActor}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewNonConformityHandler(ncService, actors, logger).RegisterRoutes(mux)
	handlers.NewPreventiveActionHandler(paService, actors, logger).RegisterRoutes(mux)
	handlers.NewBackupHandler(backupService, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", m.Handler())

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger, m)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting labqms", zap.String("addr", server.Addr), zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// openStore opens the record store selected by storage.driver.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.Store, error) {
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		logger.Warn("Using in-memory store; records are lost on restart")
		return repositories.NewMemoryStore(), nil
	case config.StorageSQLite:
		return repositories.NewSQLiteStore(ctx, cfg.Storage.SQLitePath, logger)
	case config.StoragePostgres:
		connStr := cfg.Database.ConnectionString()
		logger.Info("Connecting to PostgreSQL", zap.String("conn", logging.SanitizeConnectionString(connStr)))

		db, err := database.NewConnection(ctx, &database.Config{
			URL:             connStr,
			MaxConnections:  cfg.Database.MaxConnections,
			MaxConnIdleTime: cfg.Database.MaxConnIdle,
		})
		if err != nil {
			return nil, err
		}

		sqlDB, err := sql.Open("pgx", connStr)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to open migration connection: %w", err)
		}
		defer sqlDB.Close()
		if err := database.RunMigrations(sqlDB, logger); err != nil {
			db.Close()
			return nil, err
		}
		return repositories.NewPostgresStore(db), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// newLocker returns the Redis-backed allocation lock when Redis is configured,
// and a process-local one otherwise.
func newLocker(ctx context.Context, cfg *config.Config, logger *zap.Logger) (locker.Locker, func(), error) {
	client, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		return locker.NewLocal(), func() {}, nil
	}
	logger.Info("Using Redis allocation lock", zap.String("addr", client.Options().Addr))
	return locker.NewRedis(client, "labqms:", cfg.Redis.LockTTL), func() { _ = client.Close() }, nil
}
