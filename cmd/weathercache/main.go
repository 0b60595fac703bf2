package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/weather-snapshot-cache/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/weather-snapshot-cache/internal/adapter/kafka"
	"github.com/couchcryptid/weather-snapshot-cache/internal/adapter/mapbox"
	"github.com/couchcryptid/weather-snapshot-cache/internal/adapter/memory"
	mqttadapter "github.com/couchcryptid/weather-snapshot-cache/internal/adapter/mqtt"
	"github.com/couchcryptid/weather-snapshot-cache/internal/adapter/postgres"
	"github.com/couchcryptid/weather-snapshot-cache/internal/adapter/sqlite"
	"github.com/couchcryptid/weather-snapshot-cache/internal/config"
	"github.com/couchcryptid/weather-snapshot-cache/internal/domain"
	"github.com/couchcryptid/weather-snapshot-cache/internal/observability"
	"github.com/couchcryptid/weather-snapshot-cache/internal/pipeline"
	"github.com/couchcryptid/weather-snapshot-cache/internal/store"
	"github.com/couchcryptid/weather-snapshot-cache/internal/sweeper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		logger.Error("failed to open snapshot repository", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	logger.Info("snapshot repository opened", "backend", cfg.StoreBackend)

	st := store.New(repo, clock, store.Options{
		Policy:          cfg.Policy(),
		FreshnessMaxAge: cfg.FreshnessMaxAge,
		QueryMaxAge:     cfg.QueryMaxAge,
		QueryRadiusKm:   cfg.QueryRadiusKm,
		RegionTimeRange: cfg.RegionTimeRange,
	}, logger, metrics)

	sw := sweeper.New(st, clock, cfg.SweepInterval, logger, metrics)
	if err := sw.Start(); err != nil {
		logger.Error("failed to start expiry sweeper", "error", err)
		os.Exit(1)
	}

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}
	transformer := pipeline.NewTransformer(geocoder, logger)

	var (
		wg      sync.WaitGroup
		closers []func()
	)
	runPipeline := func(name string, p *pipeline.Pipeline) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "source", name, "error", err)
			}
		}()
	}

	if cfg.KafkaEnabled {
		reader := kafkaadapter.NewReader(cfg, logger)
		writer := kafkaadapter.NewWriter(cfg, logger)
		loader := pipeline.NewStoreLoader(st, writer, cfg.RiskNotifyLevel, logger, metrics)
		runPipeline("kafka", pipeline.New(reader, transformer, loader, clock, logger, metrics, cfg.BatchSize))
		closers = append(closers, func() {
			if err := reader.Close(); err != nil {
				logger.Error("kafka reader close error", "error", err)
			}
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		})
	}

	if cfg.MQTTEnabled {
		sub := mqttadapter.NewSubscriber(cfg, logger)
		if err := sub.Connect(ctx); err != nil {
			logger.Error("mqtt connect failed", "error", err)
			os.Exit(1)
		}
		// Risk notifications go out on Kafka only.
		var notifier pipeline.Notifier
		if cfg.KafkaEnabled {
			notifier = kafkaadapter.NewWriter(cfg, logger)
		}
		loader := pipeline.NewStoreLoader(st, notifier, cfg.RiskNotifyLevel, logger, metrics)
		runPipeline("mqtt", pipeline.New(sub, transformer, loader, clock, logger, metrics, cfg.BatchSize))
		closers = append(closers, func() {
			sub.Disconnect()
			if w, ok := notifier.(*kafkaadapter.Writer); ok {
				if err := w.Close(); err != nil {
					logger.Error("kafka writer close error", "error", err)
				}
			}
		})
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, st, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	sw.Stop()
	wg.Wait()
	for _, c := range closers {
		c()
	}
	if err := st.Close(); err != nil {
		logger.Error("snapshot repository close error", "error", err)
	}

	logger.Info("shutdown complete")
}

func openRepository(ctx context.Context, cfg *config.Config) (domain.Repository, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return memory.New(cfg.GridCellDegrees), nil
	case config.BackendSQLite:
		return sqlite.Open(ctx, cfg.SQLitePath)
	case config.BackendPostgres:
		return postgres.Open(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
