package core

// scheduler.go prunes the import log in the background.
//
// The pruner runs once on start and then every CheckInterval, deleting runs
// older than Retention. It logs failures and keeps going; a missed prune only
// means the log grows until the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// PruneConfig holds configuration for the history pruner.
// Zero values fall back to defaults.
type PruneConfig struct {
	Retention     time.Duration // How long runs are kept (default: 90 days)
	CheckInterval time.Duration // How often to prune (default: 24h)
}

func (c PruneConfig) withDefaults() PruneConfig {
	if c.Retention <= 0 {
		c.Retention = 90 * 24 * time.Hour
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 24 * time.Hour
	}
	return c
}

// StartHistoryPruner blocks, pruning log every CheckInterval until ctx is
// cancelled. Run it in its own goroutine.
func StartHistoryPruner(ctx context.Context, log ImportLog, cfg PruneConfig, logger *slog.Logger) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("history pruner started",
		"retention", cfg.Retention.String(),
		"interval", cfg.CheckInterval.String(),
	)

	pruneHistory(ctx, log, cfg, logger)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("history pruner stopped")
			return
		case <-ticker.C:
			pruneHistory(ctx, log, cfg, logger)
		}
	}
}

// pruneHistory performs one prune cycle.
func pruneHistory(ctx context.Context, log ImportLog, cfg PruneConfig, logger *slog.Logger) {
	start := time.Now()

	purged, err := log.PurgeRuns(ctx, start.Add(-cfg.Retention))
	if err != nil {
		logger.Error("history prune failed", "error", err)
		return
	}

	logger.Info("pruned import history",
		"runs_purged", purged,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
