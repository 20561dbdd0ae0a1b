package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/atelierhq/atelier-auction-backend/internal/infrastructure/config"
	"github.com/atelierhq/atelier-auction-backend/internal/infrastructure/database"
	"github.com/atelierhq/atelier-auction-backend/internal/infrastructure/repository"
	"github.com/atelierhq/atelier-auction-backend/internal/infrastructure/telemetry"
	"github.com/atelierhq/atelier-auction-backend/internal/metrics"
	"github.com/atelierhq/atelier-auction-backend/internal/service/bidding"
)

var (
	once     = flag.Bool("once", false, "Drain the settlement backlog and exit")
	interval = flag.Duration("interval", 0, "Sweep interval (overrides config)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel)
	if err != nil {
		slog.Error("failed to setup logger", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("sweeper failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("initializing infrastructure logger: %w", err)
	}
	defer zapLogger.Sync() //nolint:errcheck

	pool, err := database.NewConnectionPool(ctx, &cfg.Database, zapLogger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	registry, err := metrics.NewRegistry("atelier.sweeper")
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}

	engine := bidding.NewService(repository.NewStore(pool), registry, logger)

	if *once {
		return drain(ctx, engine, logger)
	}

	every := cfg.Sweep.Interval
	if *interval > 0 {
		every = *interval
	}
	if every <= 0 {
		every = 15 * time.Second
	}

	logger.Info("sweeper started", "interval", every)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			result, err := engine.SettleExpired(ctx, time.Now().UTC())
			if err != nil {
				logger.ErrorContext(ctx, "settlement sweep failed", "error", err)
				continue
			}
			if result.Attempted > 0 {
				logger.InfoContext(ctx, "settlement sweep completed",
					"attempted", result.Attempted,
					"failed", result.Failed)
			}
		}
	}
}

// drain keeps sweeping until a pass finds nothing to settle, so a one-shot
// invocation clears the whole backlog rather than one batch of it. A pass
// that makes no progress stops the loop; failed auctions stay queued and a
// later run retries them.
func drain(ctx context.Context, engine bidding.Service, logger *slog.Logger) error {
	var attempted, failed int

	for {
		result, err := engine.SettleExpired(ctx, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("settlement sweep: %w", err)
		}

		attempted += result.Attempted
		failed += result.Failed

		if result.Attempted == 0 || result.Failed == result.Attempted {
			break
		}
	}

	logger.Info("settlement backlog drained", "attempted", attempted, "failed", failed)
	return nil
}
