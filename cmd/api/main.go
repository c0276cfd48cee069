// Package main is the entry point for the hunchrank API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/hunchrank/internal/api"
	"github.com/onnwee/hunchrank/internal/auth"
	"github.com/onnwee/hunchrank/internal/comparison"
	"github.com/onnwee/hunchrank/internal/config"
	"github.com/onnwee/hunchrank/internal/db"
	"github.com/onnwee/hunchrank/internal/health"
	"github.com/onnwee/hunchrank/internal/jobs"
	"github.com/onnwee/hunchrank/internal/middleware"
	"github.com/onnwee/hunchrank/internal/permission"
	"github.com/onnwee/hunchrank/internal/ranking"
	"github.com/onnwee/hunchrank/internal/tracing"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	shutdownTimeout     = 10 * time.Second
	rateLimitCleanupInt = time.Minute
)

func main() {
	configPath := flag.String("config", os.Getenv("HUNCHRANK_CONFIG"), "path to YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("hunchrank API server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// run wires the server from cfg and blocks until ctx is done or the
// listener fails.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting hunchrank", "version", version, "config", cfg.LogSummary())

	tp, err := tracing.NewProvider(ctx, tracing.Config{
		ServiceName:    tracing.ServiceName,
		ServiceVersion: version,
		Enabled:        cfg.TracingEnabled,
		Environment:    cfg.Env,
		ExporterType:   cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplingRate:   cfg.TracingSampleRate,
		InsecureMode:   cfg.Env == "development",
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("tracing shutdown failed", "error", err)
		}
	}()

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{})
	if err != nil {
		return err
	}
	defer pool.Close()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	} else {
		logger.Warn("REDIS_URL not set, using in-memory rate limiting")
	}

	cal, err := ranking.LoadCalibration(cfg.CalibrationPath)
	if err != nil {
		logger.Warn("using default ranking calibration", "path", cfg.CalibrationPath, "error", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	httpMetrics := middleware.NewMetrics()
	rankingMetrics := ranking.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	for _, m := range []interface{ Register(prometheus.Registerer) error }{httpMetrics, rankingMetrics, jobMetrics} {
		if err := m.Register(reg); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	store := comparison.NewPostgresStore(pool)
	recomputer := ranking.NewRecomputer(store, ranking.RecomputerConfig{
		Calibration: cal,
		Logger:      logger,
		Metrics:     rankingMetrics,
	})

	var scheduler jobs.Scheduler
	if cfg.TrainingAsync {
		queue := jobs.NewTrainingQueue(jobs.QueueConfig{
			MaxAttempts: cfg.TrainingMaxAttempts,
			Timeout:     cfg.TrainingTimeout,
			Logger:      logger,
			Metrics:     jobMetrics,
		}, recomputer.Recompute)
		defer queue.Stop()
		scheduler = queue
	} else {
		scheduler = jobs.NewInlineScheduler(recomputer.Recompute, logger, jobMetrics)
	}

	service := ranking.NewService(ranking.ServiceConfig{
		Store:       store,
		Authorizer:  permission.NewPostgresAuthorizer(pool),
		Recomputer:  recomputer,
		Scheduler:   scheduler,
		Calibration: cal,
		Logger:      logger,
	})

	deps := serverDeps{
		Service:     service,
		Tokens:      auth.NewJWTService(cfg.JWTSecret, auth.WithPreviousSecret(cfg.JWTPreviousSecret)),
		DBChecker:   health.NewDBChecker(pool),
		RateLimit:   middleware.RateLimitConfig{RequestsPerWindow: cfg.RateLimitPerMinute, WindowDuration: time.Minute},
		HTTPMetrics: httpMetrics,
		Gatherer:    reg,
		Logger:      logger,
	}
	if redisClient != nil {
		deps.RedisChecker = health.NewRedisChecker(redisClient)
		deps.RateLimitStore = middleware.NewRedisRateLimitStore(redisClient,
			middleware.WithRedisMetrics(httpMetrics),
			middleware.WithRedisLogger(logger))
	} else {
		memStore := middleware.NewInMemoryRateLimitStore()
		go cleanupLoop(ctx, memStore)
		deps.RateLimitStore = memStore
	}

	handler, err := buildHandler(deps)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return serve(ctx, server, logger)
}

func cleanupLoop(ctx context.Context, store *middleware.InMemoryRateLimitStore) {
	ticker := time.NewTicker(rateLimitCleanupInt)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.Cleanup()
		}
	}
}

// serverDeps are the collaborators of the HTTP handler tree.
type serverDeps struct {
	Service        api.RankingService
	Tokens         middleware.TokenValidator
	DBChecker      api.HealthChecker
	RedisChecker   api.HealthChecker // nil when Redis is not configured
	RateLimitStore middleware.RateLimitStore
	RateLimit      middleware.RateLimitConfig
	HTTPMetrics    *middleware.Metrics
	Gatherer       prometheus.Gatherer
	Logger         *slog.Logger
}

// buildHandler assembles routes and the middleware chain:
// RequestID -> Tracing -> HTTPMetrics -> Logging -> Authenticate -> mux.
// Score and hunch writes additionally require a user and are rate limited per user.
func buildHandler(d serverDeps) (http.Handler, error) {
	if err := d.RateLimit.Validate(); err != nil {
		return nil, fmt.Errorf("rate limit config: %w", err)
	}

	mux := http.NewServeMux()

	api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:    d.DBChecker,
		RedisChecker: d.RedisChecker,
	}).Register(mux)

	writeMW := func(next http.Handler) http.Handler {
		limited := middleware.RateLimiter(d.RateLimitStore, d.RateLimit, middleware.UserKeyFunc(), d.HTTPMetrics)(next)
		return middleware.RequireUser(api.WriteDomainError)(limited)
	}
	api.NewRankingHandlers(d.Service).Register(mux, writeMW)

	if d.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	var handler http.Handler = mux
	handler = middleware.Authenticate(d.Tokens, api.WriteDomainError)(handler)
	handler = middleware.Logging(d.Logger)(handler)
	if d.HTTPMetrics != nil {
		handler = middleware.HTTPMetrics(d.HTTPMetrics)(handler)
	}
	handler = middleware.Tracing(tracing.ServiceName)(handler)
	handler = middleware.RequestID(handler)
	return handler, nil
}

// serve runs server until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
