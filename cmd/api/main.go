// Package main is the entry point for the feed API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/driftwood-collective/driftfeed/internal/api"
	"github.com/driftwood-collective/driftfeed/internal/candidate"
	"github.com/driftwood-collective/driftfeed/internal/config"
	"github.com/driftwood-collective/driftfeed/internal/db"
	"github.com/driftwood-collective/driftfeed/internal/experiment"
	"github.com/driftwood-collective/driftfeed/internal/feature"
	"github.com/driftwood-collective/driftfeed/internal/feedcache"
	"github.com/driftwood-collective/driftfeed/internal/health"
	"github.com/driftwood-collective/driftfeed/internal/inject"
	"github.com/driftwood-collective/driftfeed/internal/middleware"
	"github.com/driftwood-collective/driftfeed/internal/pipeline"
	"github.com/driftwood-collective/driftfeed/internal/profile"
	"github.com/driftwood-collective/driftfeed/internal/ranking"
	"github.com/driftwood-collective/driftfeed/internal/rerank"
	"github.com/driftwood-collective/driftfeed/internal/telemetry"
	"github.com/driftwood-collective/driftfeed/internal/tracing"
)

func main() {
	configFile := flag.String("config", "", "path to YAML config file (env vars take precedence)")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Driftfeed API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configFile)
	if len(errs) > 0 {
		for _, err := range errs {
			slog.Error("configuration error", "error", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	summaryAttrs := make([]any, 0, 16)
	for k, v := range cfg.LogSummary() {
		summaryAttrs = append(summaryAttrs, k, v)
	}
	logger.Info("configuration loaded", summaryAttrs...)

	ctx := context.Background()

	// Distributed tracing (enabled when an OTLP endpoint is configured)
	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "driftfeed-api",
		Enabled:      cfg.OTLPEndpoint != "",
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: 1.0,
		InsecureMode: cfg.Env != "production",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.Error("tracer shutdown failed", "error", err)
		}
	}()

	// Database
	conn, err := db.Connect(ctx, db.DefaultConfig(cfg.DatabaseURL), logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	// Redis is optional: the feed cache falls back to Postgres and rate
	// limiting falls back to in-memory when it is absent.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid redis url", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable at startup, continuing with degraded cache", "error", err)
		}
		defer redisClient.Close()
	}

	// Tier-1 scoring weights
	weights := ranking.DefaultWeights()
	if cfg.WeightCalibrationFile != "" {
		loaded, err := ranking.LoadCalibration(cfg.WeightCalibrationFile)
		if err != nil {
			logger.Warn("failed to load weight calibration, using defaults",
				"file", cfg.WeightCalibrationFile, "error", err)
		} else {
			weights = loaded
			logger.Info("weight calibration loaded", "file", cfg.WeightCalibrationFile)
		}
	}

	// Candidate generation
	generator := candidate.NewGenerator(
		candidate.NewPostgresSource(conn),
		candidate.NewPostgresGraphStore(conn),
		logger,
	)
	generator.SetLimit(cfg.CandidatePoolLimit)

	// Interest profiles
	profiles := profile.NewProvider(
		profile.NewPostgresStore(conn),
		profile.NewPostgresRecomputer(conn),
		profile.NewCache(time.Hour),
		logger,
	)

	// Feature extraction
	signals := feature.NewPostgresSignalStore(conn)
	extractor := feature.NewExtractor(signals, signals, signals, logger)

	// Tier-2 rerank (optional)
	var reranker *rerank.Reranker
	if cfg.LLMEnabled {
		client := rerank.NewHTTPClient(rerank.ClientConfig{
			APIURL: cfg.LLMAPIURL,
			APIKey: cfg.LLMAPIKey,
		})
		reranker = rerank.NewReranker(client, cfg.LLMModel, logger)
		reranker.SetTopK(cfg.RerankTopK)
	}

	// Feed cache: Redis when available, Postgres otherwise
	var cacheStore feedcache.Store
	if redisClient != nil {
		cacheStore = feedcache.NewRedisStore(redisClient)
	} else {
		cacheStore = feedcache.NewPostgresStore(conn)
	}
	feedCache := feedcache.NewCache(cacheStore, cfg.FeedCacheTTL, cfg.FeedPageSize, logger)

	// Realtime injection (optional)
	var injector *inject.Injector
	if cfg.InjectionEnabled {
		injector = inject.NewInjector(inject.NewPostgresRecentSource(conn), extractor, weights, logger)
	}

	// A/B experiments
	assignor := experiment.NewAssignor(
		experiment.NewPostgresStore(conn),
		experiment.NewPostgresAssignmentStore(conn),
		logger,
	)

	// Metrics
	registry := prometheus.NewRegistry()
	pipelineMetrics := pipeline.NewMetrics()
	if err := pipelineMetrics.Register(registry); err != nil {
		logger.Error("failed to register pipeline metrics", "error", err)
		os.Exit(1)
	}
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		logger.Error("failed to register http metrics", "error", err)
		os.Exit(1)
	}

	service := pipeline.NewService(pipeline.Config{
		Generator: generator,
		Profiles:  profiles,
		Extractor: extractor,
		Weights:   weights,
		Reranker:  reranker,
		Cache:     feedCache,
		Injector:  injector,
		Assignor:  assignor,
		Metrics:   pipelineMetrics,
		Logger:    logger,
	})

	// Handlers
	feedHandlers := api.NewFeedHandlers(service, logger)
	eventHandlers := api.NewEventHandlers(telemetry.NewPostgresEventStore(conn), logger)

	healthConfig := api.HealthHandlersConfig{
		DBChecker:      health.NewDBChecker(conn),
		MetricsEnabled: true,
	}
	if redisClient != nil {
		healthConfig.RedisChecker = health.NewRedisChecker(redisClient)
	}
	healthHandlers := api.NewHealthHandlers(healthConfig)

	// Rate limiting: Redis-backed when available so limits hold across
	// replicas, in-memory otherwise.
	var limitStore middleware.RateLimitStore
	if redisClient != nil {
		limitStore = middleware.NewRedisRateLimitStore(redisClient, httpMetrics, logger)
	} else {
		limitStore = middleware.NewInMemoryRateLimitStore()
	}
	feedLimit := middleware.RateLimiter(limitStore, middleware.DefaultFeedLimit(), middleware.UserKeyFunc(), httpMetrics)
	eventLimit := middleware.RateLimiter(limitStore, middleware.DefaultEventLimit(), middleware.UserKeyFunc(), httpMetrics)

	mux := http.NewServeMux()
	mux.Handle("/feed", feedLimit(http.HandlerFunc(feedHandlers.GetFeed)))
	mux.Handle("/feed/refresh", feedLimit(http.HandlerFunc(feedHandlers.RefreshFeed)))
	mux.Handle("/feed/invalidate", feedLimit(http.HandlerFunc(feedHandlers.InvalidateFeed)))
	mux.Handle("/events", eventLimit(http.HandlerFunc(eventHandlers.PostEvents)))
	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Only handle exact root path, everything else returns 404
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
			api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"driftfeed-api","version":"0.0.1"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	// Middleware chain: RequestID -> Tracing -> CORS -> Identity -> Logging -> HTTPMetrics
	var handler http.Handler = mux
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Identity()(handler)
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID", middleware.UserIDHeader},
		MaxAge:         300,
	})(handler)
	handler = middleware.Tracing("driftfeed-api")(handler)
	handler = middleware.RequestID(handler)

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
