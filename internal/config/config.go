package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/onnwee/screenshot-api/internal/utils"
)

// Queue backends understood by the server and worker binaries.
const (
	QueueBackendRedis  = "redis"
	QueueBackendMemory = "memory"
)

// Config holds application configuration derived from environment variables.
// It is built once at process start and passed explicitly to the components that need it.
type Config struct {
	HTTPAddr string
	// Job queue substrate
	QueueBackend string // redis or memory
	RedisURL     string
	ResultTTL    time.Duration // how long terminal job states stay resolvable
	// Screenshot cache
	CacheDir             string
	MaxCacheSizeBytes    int64
	CacheTTL             time.Duration
	CacheTargetFillRatio float64 // size sweep evicts down to MaxCacheSizeBytes * ratio
	JanitorSchedule      string  // @every / @hourly style expression
	// Worker limits
	WorkerConcurrency      int
	TaskTimeLimit          time.Duration // hard limit per render job
	TaskSoftTimeLimit      time.Duration // deadline handed to the renderer
	WorkerMaxTasksPerChild int           // renderer recycled after this many jobs
	ChromePath             string
	MaxCaptureHeight       int    // full-page clip in CSS px, negative disables
	WorkerName             string // identifies this worker's processing list in redis
	WorkerMetricsAddr      string // standalone worker serves /metrics here when set
	// Admin API token for gating admin endpoints (Bearer token)
	AdminAPIToken string
	// Security settings
	RateLimitGlobal      float64  // requests per second globally
	RateLimitGlobalBurst int      // burst size for global rate limit
	RateLimitPerIP       float64  // requests per second per IP
	RateLimitPerIPBurst  int      // burst size for per-IP rate limit
	CORSAllowedOrigins   []string // allowed CORS origins
	EnableRateLimit      bool     // enable rate limiting middleware
	// Observability settings
	LogLevel          string  // log level: debug, info, warn, error
	OTELEnabled       bool    // enable OpenTelemetry tracing
	OTELEndpoint      string  // OpenTelemetry collector endpoint
	OTELSampleRate    float64 // trace sampling rate (0.0 to 1.0)
	SentryDSN         string  // Sentry DSN for error reporting
	SentryEnvironment string  // Sentry environment (dev, staging, production)
	SentryRelease     string  // Sentry release version
	SentrySampleRate  float64 // Sentry error sampling rate (0.0 to 1.0)
}

// Load reads the environment into a new Config.
func Load() *Config {
	cfg := &Config{
		HTTPAddr:     utils.GetEnvAsString("HTTP_ADDR", ":8000"),
		QueueBackend: strings.ToLower(utils.GetEnvAsString("QUEUE_BACKEND", QueueBackendRedis)),
		RedisURL:     utils.GetEnvAsString("REDIS_URL", "redis://localhost:6379/0"),
		ResultTTL:    utils.GetEnvAsSeconds("RESULT_TTL_SECONDS", 24*time.Hour),
		// Cache defaults: 2GB budget leaves room for the browser on small hosts, entries live 12h
		CacheDir:             utils.GetEnvAsString("CACHE_DIR", "/tmp/screenshot_cache"),
		MaxCacheSizeBytes:    utils.GetEnvAsInt64("MAX_CACHE_SIZE_BYTES", 2*1024*1024*1024),
		CacheTTL:             utils.GetEnvAsSeconds("CACHE_TTL_SECONDS", 12*time.Hour),
		CacheTargetFillRatio: utils.GetEnvAsFloat("CACHE_TARGET_FILL_RATIO", 0.8),
		JanitorSchedule:      utils.GetEnvAsString("JANITOR_SCHEDULE", "@every 10m"),
		// One headless browser at a time keeps memory bounded
		WorkerConcurrency:      utils.GetEnvAsInt("WORKER_CONCURRENCY", 1),
		TaskTimeLimit:          utils.GetEnvAsSeconds("TASK_TIME_LIMIT_SECONDS", 3*time.Minute),
		TaskSoftTimeLimit:      utils.GetEnvAsSeconds("TASK_SOFT_TIME_LIMIT_SECONDS", 170*time.Second),
		WorkerMaxTasksPerChild: utils.GetEnvAsInt("WORKER_MAX_TASKS_PER_CHILD", 30),
		ChromePath:             strings.TrimSpace(os.Getenv("CHROME_PATH")),
		MaxCaptureHeight:       utils.GetEnvAsInt("MAX_CAPTURE_HEIGHT", 16384),
		WorkerName:             strings.TrimSpace(os.Getenv("WORKER_NAME")),
		WorkerMetricsAddr:      strings.TrimSpace(os.Getenv("WORKER_METRICS_ADDR")),
		AdminAPIToken:          strings.TrimSpace(os.Getenv("ADMIN_API_TOKEN")),
		// Security settings with sensible defaults
		RateLimitGlobal:      utils.GetEnvAsFloat("RATE_LIMIT_GLOBAL", 100.0),
		RateLimitGlobalBurst: utils.GetEnvAsInt("RATE_LIMIT_GLOBAL_BURST", 200),
		RateLimitPerIP:       utils.GetEnvAsFloat("RATE_LIMIT_PER_IP", 10.0),
		RateLimitPerIPBurst:  utils.GetEnvAsInt("RATE_LIMIT_PER_IP_BURST", 20),
		EnableRateLimit:      utils.GetEnvAsBool("ENABLE_RATE_LIMIT", true),
		CORSAllowedOrigins: utils.GetEnvAsSlice("CORS_ALLOWED_ORIGINS",
			[]string{"http://localhost:5173", "http://localhost:3000"}, ","),
		// Observability settings
		LogLevel:          strings.ToLower(utils.GetEnvAsString("LOG_LEVEL", "info")),
		OTELEnabled:       utils.GetEnvAsBool("OTEL_ENABLED", false),
		OTELEndpoint:      strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTELSampleRate:    utils.GetEnvAsFloat("OTEL_TRACE_SAMPLE_RATE", 0.1),
		SentryDSN:         strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		SentryEnvironment: strings.TrimSpace(os.Getenv("SENTRY_ENVIRONMENT")),
		SentryRelease:     utils.GetEnvAsString("SENTRY_RELEASE", os.Getenv("SERVICE_VERSION")),
		SentrySampleRate:  utils.GetEnvAsFloat("SENTRY_SAMPLE_RATE", 1.0),
	}
	if cfg.WorkerName == "" {
		cfg.WorkerName, _ = os.Hostname()
	}
	if cfg.WorkerName == "" {
		cfg.WorkerName = "default"
	}
	if cfg.SentryEnvironment == "" {
		cfg.SentryEnvironment = utils.GetEnvAsString("ENV", "development")
	}
	return cfg
}

// Validate reports configuration values that would make the service misbehave.
func (c *Config) Validate() error {
	var problems []string
	switch c.QueueBackend {
	case QueueBackendRedis:
		if c.RedisURL == "" {
			problems = append(problems, "REDIS_URL is required for the redis queue backend")
		}
	case QueueBackendMemory:
	default:
		problems = append(problems, fmt.Sprintf("unknown QUEUE_BACKEND %q", c.QueueBackend))
	}
	if c.CacheDir == "" {
		problems = append(problems, "CACHE_DIR must not be empty")
	}
	if c.MaxCacheSizeBytes <= 0 {
		problems = append(problems, "MAX_CACHE_SIZE_BYTES must be positive")
	}
	if c.CacheTTL <= 0 {
		problems = append(problems, "CACHE_TTL_SECONDS must be positive")
	}
	if c.CacheTargetFillRatio <= 0 || c.CacheTargetFillRatio > 1 {
		problems = append(problems, "CACHE_TARGET_FILL_RATIO must be in (0, 1]")
	}
	if c.WorkerConcurrency < 1 {
		problems = append(problems, "WORKER_CONCURRENCY must be at least 1")
	}
	if c.TaskTimeLimit <= 0 {
		problems = append(problems, "TASK_TIME_LIMIT_SECONDS must be positive")
	}
	if c.TaskSoftTimeLimit <= 0 || c.TaskSoftTimeLimit > c.TaskTimeLimit {
		problems = append(problems, "TASK_SOFT_TIME_LIMIT_SECONDS must be positive and not exceed the hard limit")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// TargetCacheBytes is the size the janitor evicts down to once the budget is exceeded.
func (c *Config) TargetCacheBytes() int64 {
	return int64(float64(c.MaxCacheSizeBytes) * c.CacheTargetFillRatio)
}
