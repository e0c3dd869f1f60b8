package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/mirador-forecast/internal/api"
	"github.com/miradorstack/mirador-forecast/internal/cache"
	"github.com/miradorstack/mirador-forecast/internal/config"
	"github.com/miradorstack/mirador-forecast/internal/engine"
	"github.com/miradorstack/mirador-forecast/internal/ingest"
	"github.com/miradorstack/mirador-forecast/internal/metrics"
	"github.com/miradorstack/mirador-forecast/internal/repo"
	"github.com/miradorstack/mirador-forecast/internal/services"
	"github.com/miradorstack/mirador-forecast/internal/store"
	"github.com/miradorstack/mirador-forecast/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting sla-forecast engine",
		slog.String("http", cfg.Server.HTTPAddress),
		slog.String("grpc", cfg.Server.GRPCAddress),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	st := store.New()
	catalog, err := repo.LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		logger.Error("failed to load catalog", slog.String("path", cfg.Catalog.Path), slog.Any("error", err))
		os.Exit(1)
	}
	seeded, err := catalog.Apply(st, time.Now())
	if err != nil {
		logger.Error("failed to apply catalog", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("catalog loaded", slog.Int("services", len(catalog.Services)), slog.Int("observations", seeded))

	playbook, err := engine.LoadPlaybook(cfg.Playbook.Path)
	if err != nil {
		logger.Error("failed to load playbook", slog.Any("error", err))
		os.Exit(1)
	}

	forecaster := engine.NewForecaster(engine.ForecasterConfig{
		HighStartConfidence: cfg.Engine.HighStartConfidence,
		LowStartConfidence:  cfg.Engine.LowStartConfidence,
		VolatilityScale:     cfg.Engine.VolatilityScale,
		MaxSlopeRatio:       cfg.Engine.MaxSlopeRatio,
		TrendWindow:         cfg.Engine.TrendWindow,
		MaxHorizonDays:      cfg.Engine.MaxHorizonDays,
	})
	recommender := engine.NewRecommender(playbook, cfg.Engine.MaxPerBucket, logger)

	var sink engine.AssessmentSink
	if cfg.History.PostgresDSN != "" {
		history, err := repo.NewPostgresHistory(cfg.History.PostgresDSN)
		if err != nil {
			logger.Warn("assessment history unavailable", slog.Any("error", err))
		} else {
			defer history.Close()
			sink = history
		}
	}

	pipeline := engine.NewPipeline(logger, engine.PipelineConfig{
		DefaultHorizonDays: cfg.Engine.DefaultHorizonDays,
		DecayRate:          cfg.Engine.DecayRate,
		ThresholdRatio:     cfg.Engine.ThresholdRatio,
		BaselineWindow:     cfg.Engine.BaselineWindow,
		MaxPerBucket:       cfg.Engine.MaxPerBucket,
	}, st, forecaster, recommender, sink)

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled {
		cacheProvider = cache.NewMemoryProvider(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	}
	defer cacheProvider.Close()

	dashboard := services.NewDashboardService(logger, st, pipeline, cacheProvider, cfg.Cache.TTL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.WatchPlaybook(ctx, cfg.Playbook.Path, recommender, logger); err != nil {
		logger.Warn("playbook hot reload disabled", slog.Any("error", err))
	}

	router := api.NewRouter(dashboard, logger, api.StreamDefaults{
		BaselineWindow: cfg.Engine.BaselineWindow,
		ThresholdRatio: cfg.Engine.ThresholdRatio,
	})

	var httpServer *api.HTTPServer
	if cfg.Server.HTTPAddress != "" {
		httpServer, err = api.NewHTTPServer(cfg.Server.HTTPAddress, api.WithCORS(router, cfg.Server.CORSOrigins))
		if err != nil {
			logger.Error("failed to create HTTP server", slog.Any("error", err))
			os.Exit(1)
		}
		go func() {
			logger.Info("http server listening", slog.String("address", httpServer.Address()))
			if serveErr := httpServer.Start(); serveErr != nil {
				logger.Error("http server exited", slog.Any("error", serveErr))
				stop()
			}
		}()
	}

	var grpcServer *api.GRPCServer
	if cfg.Server.GRPCAddress != "" {
		grpcServer, err = api.NewGRPCServer(cfg.Server.GRPCAddress)
		if err != nil {
			logger.Error("failed to create gRPC server", slog.Any("error", err))
			os.Exit(1)
		}
		go func() {
			logger.Info("grpc health server listening", slog.String("address", grpcServer.Address()))
			if serveErr := grpcServer.Start(); serveErr != nil {
				logger.Error("gRPC server exited", slog.Any("error", serveErr))
				stop()
			}
		}()
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	if cfg.Ingest.Enabled() {
		source, err := repo.NewPrometheusSource(cfg.Ingest.PrometheusURL, nil, cfg.Ingest.Timeout, logger)
		if err != nil {
			logger.Error("failed to create prometheus source", slog.Any("error", err))
			os.Exit(1)
		}
		queries := make(map[string]ingest.Queries, len(cfg.Ingest.Queries))
		for id, q := range cfg.Ingest.Queries {
			queries[id] = ingest.Queries{SLAPercent: q.SLAPercent, ResponseTime: q.ResponseTime}
		}
		scheduler := ingest.NewScheduler(logger, ingest.Config{
			Interval: cfg.Ingest.Interval,
			Lookback: cfg.Ingest.Lookback,
			Step:     cfg.Ingest.Step,
			Queries:  queries,
		}, source, dashboard)
		if err := scheduler.Start(ctx); err != nil {
			logger.Error("failed to start ingest scheduler", slog.Any("error", err))
			os.Exit(1)
		}
		defer scheduler.Stop()
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown", slog.Any("error", err))
		}
	}
	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("outlook latency at shutdown", slog.Duration("p95", dashboard.LatencyP95()))
	logger.Info("sla-forecast engine stopped")
}
