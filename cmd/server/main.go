package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/region-compare-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/region-compare-service/internal/adapter/kafka"
	redisadapter "github.com/couchcryptid/region-compare-service/internal/adapter/redis"
	"github.com/couchcryptid/region-compare-service/internal/config"
	"github.com/couchcryptid/region-compare-service/internal/dataset"
	"github.com/couchcryptid/region-compare-service/internal/matching"
	"github.com/couchcryptid/region-compare-service/internal/observability"
	"github.com/couchcryptid/region-compare-service/internal/pipeline"
	"github.com/couchcryptid/region-compare-service/internal/preference"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	cat, err := dataset.LoadFiles(cfg.RegionsPath, cfg.CatalogPath)
	if err != nil {
		logger.Error("failed to load dataset", "error", err)
		os.Exit(1)
	}
	metrics.CatalogRegions.Set(float64(len(cat.Regions)))
	logger.Info("dataset loaded", "regions", len(cat.Regions), "indicators", len(cat.Indicators), "presets", len(cat.Presets))

	base := matching.NewEngine(cat)
	var engine httpadapter.RegionService = base
	if cfg.MatchCacheSize > 0 {
		engine = matching.NewCachedEngine(base, cfg.MatchCacheSize, metrics)
		logger.Info("match cache enabled", "max_entries", cfg.MatchCacheSize)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var ready readiness

	// Language preferences: Redis when configured, in-process otherwise.
	var prefs preference.Store
	var closeRedis func() error
	if cfg.RedisAddr != "" {
		client := redisadapter.NewClient(cfg)
		store := redisadapter.NewPreferenceStore(client, cfg.PreferenceTTL)
		prefs = store
		ready = append(ready, store)
		closeRedis = client.Close
		logger.Info("redis preference store enabled", "addr", cfg.RedisAddr, "db", cfg.RedisDB, "ttl", cfg.PreferenceTTL)
	} else {
		prefs = preference.NewMemoryStore(cfg.PreferenceTTL, nil)
		logger.Info("in-memory preference store enabled", "ttl", cfg.PreferenceTTL)
	}

	// Query events (feature-flagged via EVENTS_ENABLED / KAFKA_BROKERS).
	var (
		events    httpadapter.EventPublisher
		writer    *kafkaadapter.Writer
		publisher *pipeline.Publisher
		pubDone   = make(chan struct{})
	)
	if cfg.EventsEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = pipeline.New(writer, logger, metrics, pipeline.Options{
			BufferSize:    cfg.EventBufferSize,
			BatchSize:     cfg.BatchSize,
			FlushInterval: cfg.BatchFlushInterval,
		})
		events = publisher
		ready = append(ready, publisher)
		logger.Info("query event publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaEventsTopic)

		go func() {
			defer close(pubDone)
			if err := publisher.Run(ctx); err != nil {
				logger.Error("event publisher error", "error", err)
			}
		}()
	} else {
		close(pubDone)
		logger.Info("query event publishing disabled")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Engine:      engine,
		Ready:       ready,
		Preferences: prefs,
		Events:      events,
		Metrics:     metrics,
		Logger:      logger,
	})

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	select {
	case <-pubDone:
	case <-shutdownCtx.Done():
		logger.Warn("event publisher did not stop before shutdown timeout")
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if closeRedis != nil {
		if err := closeRedis(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// readiness is ready when every dependency is. The dataset is loaded before
// the server starts, so an empty list is always ready.
type readiness []sharedobs.ReadinessChecker

func (r readiness) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}
