package commands

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/wonny/harvest/backend/internal/batch"
	"github.com/wonny/harvest/backend/internal/contracts"
	"github.com/wonny/harvest/backend/internal/dispatch"
	"github.com/wonny/harvest/backend/internal/forecast"
	"github.com/wonny/harvest/backend/internal/metrics"
	"github.com/wonny/harvest/backend/internal/modelconfig"
	"github.com/wonny/harvest/backend/internal/modelstore"
	"github.com/wonny/harvest/backend/internal/verification"
	"github.com/wonny/harvest/backend/pkg/config"
	"github.com/wonny/harvest/backend/pkg/database"
	"github.com/wonny/harvest/backend/pkg/logger"
	"github.com/wonny/harvest/backend/pkg/redis"
)

// app holds the wired components shared by every command
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *database.DB
	redis    *redis.Client
	cache    *redis.Cache
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	results     *forecast.Repository
	catalog     *verification.CatalogRepository
	queue       *dispatch.PGQueue
	aggregator  *forecast.Aggregator
	generator   *forecast.Generator
	coordinator *batch.Coordinator
	dispatcher  *dispatch.Dispatcher
}

// newApp loads config, connects to PostgreSQL and Redis, applies the schema
// and wires the pipeline
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if env != "" {
		cfg.Env = env
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)

	db, err := database.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	rc, err := redis.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, continuing without cache and dedup")
		rc = redis.Disabled()
	}
	cache := redis.NewCache(rc, "harvest")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	store, err := modelstore.New(ctx, cfg, log)
	if err != nil {
		db.Close()
		rc.Close()
		return nil, fmt.Errorf("model store: %w", err)
	}

	model, err := modelconfig.Load(cfg.Forecast.ModelConfigPath)
	if err != nil {
		db.Close()
		rc.Close()
		return nil, fmt.Errorf("model config: %w", err)
	}
	if hash, err := modelconfig.Hash(model); err == nil {
		log.WithFields(map[string]interface{}{
			"model_id": model.Meta.ModelID,
			"version":  model.Meta.Version,
			"hash":     hash[:12],
		}).Info("Model definition loaded")
	}

	overallID := cfg.Forecast.OverallMunicipalityID
	zl := log.Zerolog()

	results := forecast.NewRepository(db.Pool, overallID)
	catalog := verification.NewCatalogRepository(db.Pool, cache)
	queue := dispatch.NewPGQueue(db.Pool)

	f := forecast.NewRidgeForecaster(forecast.RidgeOptions{
		Harmonics:      model.Ridge.Harmonics,
		TrendLambda:    model.Ridge.TrendLambda,
		SeasonalLambda: model.Ridge.SeasonalLambda,
	})
	aggregator := forecast.NewAggregatorWithFloor(results, cfg.Forecast.SeriesFloorMonths, zl)
	trainer := forecast.NewTrainer(f, store, cfg.Forecast.MinHistoryMonths, zl)
	generator := forecast.NewGenerator(f, store, zl)

	coordinator := batch.NewCoordinator(aggregator, trainer, generator, results, catalog, batch.Config{
		HorizonMonths:      cfg.Forecast.HorizonMonths,
		MinHistoryMonths:   cfg.Forecast.MinHistoryMonths,
		OverallID:          overallID,
		NotListedCommodity: cfg.Forecast.NotListedCommodity,
		Concurrency:        cfg.Forecast.TrainConcurrency,
	}, m, zl)

	// Cached current-forecast responses go stale with every batch
	coordinator.OnBatchCommitted(func(ctx context.Context, report *contracts.BatchReport) {
		if err := cache.Bump(context.WithoutCancel(ctx), redis.CurrentForecastGeneration); err != nil {
			log.WithError(err).WithField("batch_id", report.BatchID).Warn("Failed to invalidate forecast cache")
		}
	})

	recorder := verification.NewRecorder(verification.NewObservationRepository(db.Pool), zl)
	dispatcher := dispatch.NewDispatcher(recorder, queue, dispatch.NewDedup(rc, cfg.Dispatch.DedupTTL), rc, m, zl)

	return &app{
		cfg:         cfg,
		log:         log,
		db:          db,
		redis:       rc,
		cache:       cache,
		registry:    registry,
		metrics:     m,
		results:     results,
		catalog:     catalog,
		queue:       queue,
		aggregator:  aggregator,
		generator:   generator,
		coordinator: coordinator,
		dispatcher:  dispatcher,
	}, nil
}

// Close releases connections
func (a *app) Close() {
	if err := a.redis.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close Redis")
	}
	a.db.Close()
}
