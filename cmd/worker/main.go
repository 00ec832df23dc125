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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/screenshot-api/internal/cache"
	"github.com/onnwee/screenshot-api/internal/config"
	"github.com/onnwee/screenshot-api/internal/errorreporting"
	"github.com/onnwee/screenshot-api/internal/logger"
	"github.com/onnwee/screenshot-api/internal/metrics"
	"github.com/onnwee/screenshot-api/internal/queue"
	"github.com/onnwee/screenshot-api/internal/render"
	"github.com/onnwee/screenshot-api/internal/secrets"
	"github.com/onnwee/screenshot-api/internal/tracing"
	"github.com/onnwee/screenshot-api/internal/worker"
)

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
	if cfg.QueueBackend != config.QueueBackendRedis {
		logger.Error("The standalone worker needs the redis queue backend", "queue_backend", cfg.QueueBackend)
		os.Exit(1)
	}
	logger.Info("Initializing render worker", "worker", cfg.WorkerName, "version", cfg.SentryRelease)

	if err := errorreporting.Init(errorreporting.Options{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     cfg.SentryRelease,
		SampleRate:  cfg.SentrySampleRate,
	}); err != nil {
		logger.Warn("Failed to initialize error reporting", "error", err)
	} else if errorreporting.IsSentryEnabled() {
		defer errorreporting.Flush(2 * time.Second)
	}

	shutdownTracing, err := tracing.Init(tracing.Options{
		ServiceName: "screenshot-worker",
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

	q, err := queue.NewRedisQueueFromURL(cfg.RedisURL, queue.RedisOptions{
		ResultTTL:    cfg.ResultTTL,
		ConsumerName: cfg.WorkerName,
	})
	if err != nil {
		logger.Error("Failed to configure redis queue", "url", secrets.MaskURL(cfg.RedisURL), "error", err)
		os.Exit(1)
	}
	defer q.Close()

	// Jobs this worker held when it last died go back on the queue.
	if n, err := q.Recover(ctx); err != nil {
		logger.Warn("Failed to recover in-flight jobs", "error", err)
	} else if n > 0 {
		logger.Info("Requeued jobs from a previous run", "count", n)
	}

	collector := metrics.NewCollector(nil, q, 15*time.Second)
	go collector.Start(ctx)
	defer collector.Stop()

	if cfg.WorkerMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			logger.Info("Serving worker metrics", "addr", cfg.WorkerMetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics listener failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	w := worker.New(q, store, render.ChromeFactory(render.ChromeConfig{
		ExecPath:         cfg.ChromePath,
		NoSandbox:        os.Geteuid() == 0,
		MaxCaptureHeight: cfg.MaxCaptureHeight,
	}), worker.Config{
		Concurrency:         cfg.WorkerConcurrency,
		SoftTimeLimit:       cfg.TaskSoftTimeLimit,
		HardTimeLimit:       cfg.TaskTimeLimit,
		MaxTasksPerRenderer: cfg.WorkerMaxTasksPerChild,
	})
	w.Run(ctx)
	logger.Info("Worker stopped", "worker", cfg.WorkerName)
}
