package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tochukwuani/pharmalink-backend/internal/catalog"
	"github.com/tochukwuani/pharmalink-backend/internal/enrich"
	"github.com/tochukwuani/pharmalink-backend/internal/vector"
	"github.com/tochukwuani/pharmalink-backend/pkg/config"
	"github.com/tochukwuani/pharmalink-backend/pkg/db"
	"github.com/tochukwuani/pharmalink-backend/pkg/logger"
	"github.com/tochukwuani/pharmalink-backend/pkg/metrics"
	"github.com/tochukwuani/pharmalink-backend/pkg/migrate"
	"github.com/tochukwuani/pharmalink-backend/pkg/openai"
	"github.com/tochukwuani/pharmalink-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "enrichment-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "enrichment-worker"

	logg = logger.New(logger.Options{
		ServiceName: "enrichment-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	aiClient, err := openai.NewClient(context.Background(), cfg.OpenAI, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap openai client", err)
		os.Exit(1)
	}

	matcher, err := vector.NewMatcher(vector.MatcherParams{
		Embedder:        aiClient,
		Cache:           redisClient,
		CacheTTL:        cfg.Enrichment.EmbeddingCacheTTL,
		SimilarityFloor: cfg.Enrichment.SimilarityFloor,
		Logger:          logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create vector matcher", err)
		os.Exit(1)
	}

	lock, err := enrich.NewRedisLock(redisClient, cfg.Enrichment.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create enrichment lock", err)
		os.Exit(1)
	}

	sweeper, err := enrich.NewSweeper(enrich.SweeperParams{
		Repository:          enrich.NewRepository(dbClient.DB()),
		Catalog:             catalog.NewRepository(dbClient.DB()),
		Matcher:             matcher,
		Chat:                aiClient,
		Lock:                lock,
		Logger:              logg,
		Metrics:             metrics.NewIngestionMetrics(prometheus.DefaultRegisterer),
		Interval:            cfg.Enrichment.SweepInterval,
		BatchSize:           cfg.Enrichment.SweepBatchSize,
		WorkerLimit:         cfg.Enrichment.WorkerLimit,
		ImageConfidenceGate: cfg.Enrichment.ImageConfidenceFloor,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create enrichment sweeper", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting enrichment worker")

	if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "enrichment worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "enrichment worker shutting down gracefully")
}
