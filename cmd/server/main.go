package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/screenshot-api/internal/api"
	"github.com/onnwee/screenshot-api/internal/api/handlers"
	"github.com/onnwee/screenshot-api/internal/cache"
	"github.com/onnwee/screenshot-api/internal/circuitbreaker"
	"github.com/onnwee/screenshot-api/internal/config"
	"github.com/onnwee/screenshot-api/internal/dispatch"
	"github.com/onnwee/screenshot-api/internal/errorreporting"
	"github.com/onnwee/screenshot-api/internal/logger"
	"github.com/onnwee/screenshot-api/internal/metrics"
	"github.com/onnwee/screenshot-api/internal/middleware"
	"github.com/onnwee/screenshot-api/internal/queue"
	"github.com/onnwee/screenshot-api/internal/render"
	"github.com/onnwee/screenshot-api/internal/scheduler"
	"github.com/onnwee/screenshot-api/internal/secrets"
	"github.com/onnwee/screenshot-api/internal/tracing"
	"github.com/onnwee/screenshot-api/internal/worker"
)

// substrate is the queue as seen by the HTTP side.
type substrate interface {
	queue.Broker
	Depth(ctx context.Context) (int64, error)
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (falling back to system env)")
	}

	cfg := config.Load()
	logger.Init(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration rejected", "error", err)
		os.Exit(1)
	}
	logger.Info("Initializing screenshot API", "version", cfg.SentryRelease, "log_level", cfg.LogLevel)

	if err := errorreporting.Init(errorreporting.Options{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     cfg.SentryRelease,
		SampleRate:  cfg.SentrySampleRate,
	}); err != nil {
		logger.Warn("Failed to initialize error reporting", "error", err)
	} else if errorreporting.IsSentryEnabled() {
		logger.Info("Error reporting initialized", "environment", cfg.SentryEnvironment)
		defer errorreporting.Flush(2 * time.Second)
	}

	shutdownTracing, err := tracing.Init(tracing.Options{
		ServiceName: "screenshot-api",
		Version:     cfg.SentryRelease,
		Enabled:     cfg.OTELEnabled,
		Endpoint:    cfg.OTELEndpoint,
		SampleRate:  cfg.OTELSampleRate,
	})
	if err != nil {
		logger.Warn("Failed to initialize tracing", "error", err)
	} else {
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Error("Failed to shutdown tracer", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := cache.NewFileStore(cfg.CacheDir)
	if err != nil {
		logger.Error("Failed to open cache directory", "dir", cfg.CacheDir, "error", err)
		os.Exit(1)
	}
	limits := cache.JanitorConfig{
		TTL:             cfg.CacheTTL,
		MaxBytes:        cfg.MaxCacheSizeBytes,
		TargetFillRatio: cfg.CacheTargetFillRatio,
	}
	logger.Info("Cache configured",
		"dir", cfg.CacheDir,
		"ttl", cfg.CacheTTL,
		"max_bytes", cfg.MaxCacheSizeBytes,
		"target_bytes", cfg.TargetCacheBytes())
	sweeps, err := scheduler.NewService(cache.NewJanitor(store, limits), cfg.JanitorSchedule)
	if err != nil {
		logger.Error("Invalid janitor schedule", "schedule", cfg.JanitorSchedule, "error", err)
		os.Exit(1)
	}
	go sweeps.Start(ctx)
	defer sweeps.Stop()

	ready := map[string]handlers.Check{
		"cache": func(ctx context.Context) error {
			_, _, err := store.Stats(ctx)
			return err
		},
	}

	var q substrate
	var inProcess *worker.Worker
	switch cfg.QueueBackend {
	case config.QueueBackendRedis:
		rq, err := queue.NewRedisQueueFromURL(cfg.RedisURL, queue.RedisOptions{
			ResultTTL:    cfg.ResultTTL,
			ConsumerName: cfg.WorkerName,
		})
		if err != nil {
			logger.Error("Failed to configure redis queue", "url", secrets.MaskURL(cfg.RedisURL), "error", err)
			os.Exit(1)
		}
		defer rq.Close()
		logger.Info("Using redis job queue", "url", secrets.MaskURL(cfg.RedisURL))
		ready["queue"] = rq.Ping
		q = rq
	default:
		mq := queue.NewMemoryQueue(cfg.ResultTTL)
		logger.Info("Using in-memory job queue with an in-process worker")
		inProcess = worker.New(mq, store, render.ChromeFactory(render.ChromeConfig{
			ExecPath:         cfg.ChromePath,
			NoSandbox:        os.Geteuid() == 0,
			MaxCaptureHeight: cfg.MaxCaptureHeight,
		}), worker.Config{
			Concurrency:         cfg.WorkerConcurrency,
			SoftTimeLimit:       cfg.TaskSoftTimeLimit,
			HardTimeLimit:       cfg.TaskTimeLimit,
			MaxTasksPerRenderer: cfg.WorkerMaxTasksPerChild,
		})
		q = mq
	}

	workerDone := make(chan struct{})
	if inProcess != nil {
		go func() {
			inProcess.Run(ctx)
			close(workerDone)
		}()
	} else {
		close(workerDone)
	}

	collector := metrics.NewCollector(store, q, 15*time.Second)
	go collector.Start(ctx)
	defer collector.Stop()

	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:             "queue-submit",
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          10 * time.Second,
	})

	if cfg.AdminAPIToken != "" {
		logger.Info("Admin endpoints enabled", "token", secrets.Mask(cfg.AdminAPIToken))
	} else {
		logger.Warn("ADMIN_API_TOKEN not set, admin endpoints will answer 503")
	}

	opts := api.Options{
		AdminToken:  cfg.AdminAPIToken,
		CORSOrigins: cfg.CORSAllowedOrigins,
	}
	if cfg.EnableRateLimit {
		limiter := middleware.NewRateLimiter(cfg.RateLimitGlobal, cfg.RateLimitGlobalBurst, cfg.RateLimitPerIP, cfg.RateLimitPerIPBurst)
		defer limiter.Stop()
		opts.RateLimiter = limiter
		logger.Info("Rate limiting enabled",
			"global_rps", cfg.RateLimitGlobal,
			"per_ip_rps", cfg.RateLimitPerIP)
	}

	handler := api.NewHandler(api.Deps{
		Dispatcher: dispatch.NewDispatcher(store, q, dispatch.Options{
			CacheTTL: cfg.CacheTTL,
			Janitor:  sweeps,
			Breaker:  breaker,
		}),
		Resolver:   dispatch.NewResolver(q, store, cfg.CacheTTL),
		CacheStats: store,
		Sweeper:    sweeps,
		Limits:     limits,
		Ready:      ready,
	}, opts)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serveErr:
		if err != nil {
			logger.Error("Server failed", "error", err)
			errorreporting.CaptureError(err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
	<-workerDone
	logger.Info("Server stopped")
}
