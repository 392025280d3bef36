package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JonMunkholm/bulkimport/internal/config"
	"github.com/JonMunkholm/bulkimport/internal/core"
	_ "github.com/JonMunkholm/bulkimport/internal/core/doctypes" // Register all document types
	"github.com/JonMunkholm/bulkimport/internal/logging"
	"github.com/JonMunkholm/bulkimport/internal/metrics"
	"github.com/JonMunkholm/bulkimport/internal/store"
	"github.com/JonMunkholm/bulkimport/internal/web"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"chunk_size", cfg.Import.ChunkSize,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	if err := run(cfg, logger); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return err
	}

	// Apply pool configuration from config
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	records := store.New(pool, logger)
	if err := records.Migrate(ctx); err != nil {
		return err
	}

	m := metrics.New()

	service := core.NewService(records, core.ServiceOptions{
		Document:          cfg.Import.DocumentOptions(),
		Coordinator:       cfg.Import.CoordinatorOptions(m),
		MaxConcurrentJobs: cfg.Import.MaxConcurrent,
		MaxWait:           cfg.Import.MaxWaitTime,
		JobTimeout:        cfg.Import.JobTimeout,
		Retention:         cfg.Import.Retention,
		History:           records,
		Logger:            logger,
	})

	if err := m.RegisterActiveJobs(func() float64 {
		return float64(service.LimiterStatus().Active)
	}); err != nil {
		return err
	}

	slog.Info("document types registered", "count", core.Count())

	server := web.NewServer(service, records, cfg, web.Options{
		Metrics: m,
		Ping:    pool.Ping,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		core.StartHistoryPruner(gctx, records, core.PruneConfig{
			Retention:     cfg.History.Retention(),
			CheckInterval: cfg.History.CheckInterval,
		}, logger)
		return nil
	})

	g.Go(func() error {
		if err := server.Start(cfg.Server.Addr()); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful shutdown on signal or when the server fails
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Cancel running imports; they stop after their in-flight request
		status := service.LimiterStatus()
		if status.Active > 0 {
			slog.Info("cancelling running imports", "active", status.Active)
		}
		if err := service.Shutdown(shutdownCtx); err != nil {
			slog.Warn("imports did not stop in time", "error", err)
		}

		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}
