package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/atelierhq/atelier-auction-backend/internal/api/rest"
	"github.com/atelierhq/atelier-auction-backend/internal/infrastructure/cache"
	"github.com/atelierhq/atelier-auction-backend/internal/infrastructure/config"
	"github.com/atelierhq/atelier-auction-backend/internal/infrastructure/database"
	"github.com/atelierhq/atelier-auction-backend/internal/infrastructure/repository"
	"github.com/atelierhq/atelier-auction-backend/internal/infrastructure/telemetry"
	"github.com/atelierhq/atelier-auction-backend/internal/metrics"
	"github.com/atelierhq/atelier-auction-backend/internal/service/bidding"
	"github.com/atelierhq/atelier-auction-backend/internal/service/marketplace"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

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

	if err := run(ctx, cfg, logger); err != nil {
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting atelier auction backend",
		"version", cfg.Version,
		"environment", cfg.Environment,
		"port", cfg.Server.Port)

	provider, err := telemetry.InitializeOpenTelemetry(ctx, telemetry.ConfigFromApp(cfg))
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	zapLogger, err := newInfraLogger(cfg.Environment)
	if err != nil {
		return fmt.Errorf("initializing infrastructure logger: %w", err)
	}
	defer zapLogger.Sync() //nolint:errcheck

	pool, err := database.NewConnectionPool(ctx, &cfg.Database, zapLogger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	registry, err := metrics.NewRegistry("atelier.auction")
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}

	store := repository.NewStore(pool)
	engine := bidding.NewService(store, registry, logger)
	market := marketplace.NewService(store, logger)

	authenticator, err := rest.NewAuthenticator(&cfg.Security)
	if err != nil {
		return fmt.Errorf("initializing authenticator: %w", err)
	}

	handlerOpts := []rest.HandlerOption{rest.WithMetrics(registry)}

	var redisClient *redis.Client
	var sharedLimiter cache.RateLimiter
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewClient(&cfg.Redis, zapLogger)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer redisClient.Close()

		snapshots := cache.NewAuctionCache(redisClient, cfg.Redis.SnapshotTTL)
		handlerOpts = append(handlerOpts, rest.WithSnapshotCache(snapshots))
		sharedLimiter = cache.NewRedisRateLimiter(redisClient, zapLogger)
	}

	handler := rest.NewHandler(market, engine, authenticator, logger, handlerOpts...)

	var rateLimiter *rest.RateLimiterMiddleware
	if cfg.Security.RateLimit.Enabled {
		rateLimiter = rest.NewRateLimiterMiddleware(cfg.Security.RateLimit, sharedLimiter, logger)
	}

	router := rest.NewRouter(rest.RouterConfig{
		Handler:     handler,
		Health:      rest.NewHealthHandler(pool.Pool(), redisClient, cfg.Version),
		Logger:      logger,
		Metrics:     promhttp.Handler(),
		Registry:    registry,
		Tracer:      telemetry.Tracer("api.rest"),
		RateLimiter: rateLimiter,
	})

	go runSweeper(ctx, engine, cfg.Sweep.Interval, logger)

	poolMonitor := database.NewMonitor(pool, registry, zapLogger, 15*time.Second)
	go poolMonitor.Run(ctx)

	server := rest.NewServer(&cfg.Server, router, logger)
	return server.Run(ctx)
}

func newInfraLogger(environment string) (*zap.Logger, error) {
	if environment == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// runSweeper settles expired auctions in the background so winners are paid
// out even when no client ever calls the sweep endpoint.
func runSweeper(ctx context.Context, engine bidding.Service, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
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
