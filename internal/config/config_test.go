package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// ensure defaults kick in with empty env
	for _, key := range []string{
		"QUEUE_BACKEND", "REDIS_URL", "CACHE_DIR", "MAX_CACHE_SIZE_BYTES", "CACHE_TTL_SECONDS",
		"CACHE_TARGET_FILL_RATIO", "WORKER_CONCURRENCY", "TASK_TIME_LIMIT_SECONDS",
		"TASK_SOFT_TIME_LIMIT_SECONDS", "WORKER_MAX_TASKS_PER_CHILD", "SENTRY_ENVIRONMENT", "ENV", "WORKER_NAME",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.QueueBackend != QueueBackendRedis {
		t.Fatalf("expected redis backend by default, got %q", cfg.QueueBackend)
	}
	if cfg.CacheDir != "/tmp/screenshot_cache" {
		t.Fatalf("unexpected cache dir %q", cfg.CacheDir)
	}
	if cfg.MaxCacheSizeBytes != 2*1024*1024*1024 {
		t.Fatalf("expected 2GiB cache budget, got %d", cfg.MaxCacheSizeBytes)
	}
	if cfg.CacheTTL != 12*time.Hour {
		t.Fatalf("expected 12h TTL, got %v", cfg.CacheTTL)
	}
	if cfg.WorkerConcurrency != 1 || cfg.WorkerMaxTasksPerChild != 30 {
		t.Fatalf("unexpected worker defaults: concurrency=%d max_tasks=%d", cfg.WorkerConcurrency, cfg.WorkerMaxTasksPerChild)
	}
	if cfg.TaskTimeLimit != 3*time.Minute || cfg.TaskSoftTimeLimit >= cfg.TaskTimeLimit {
		t.Fatalf("unexpected time limits: hard=%v soft=%v", cfg.TaskTimeLimit, cfg.TaskSoftTimeLimit)
	}
	if cfg.WorkerName == "" {
		t.Fatal("expected worker name to fall back to the hostname")
	}
	if cfg.SentryEnvironment != "development" {
		t.Fatalf("expected development sentry environment, got %q", cfg.SentryEnvironment)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("QUEUE_BACKEND", "MEMORY")
	t.Setenv("CACHE_TTL_SECONDS", "60")
	t.Setenv("MAX_CACHE_SIZE_BYTES", "1000")
	t.Setenv("CACHE_TARGET_FILL_RATIO", "0.5")
	t.Setenv("WORKER_NAME", "render-1")

	cfg := Load()
	if cfg.QueueBackend != QueueBackendMemory {
		t.Errorf("expected memory backend, got %q", cfg.QueueBackend)
	}
	if cfg.CacheTTL != time.Minute {
		t.Errorf("expected 1m TTL, got %v", cfg.CacheTTL)
	}
	if cfg.WorkerName != "render-1" {
		t.Errorf("expected worker name render-1, got %q", cfg.WorkerName)
	}
	if got := cfg.TargetCacheBytes(); got != 500 {
		t.Errorf("expected target of 500 bytes, got %d", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"unknown backend", func(c *Config) { c.QueueBackend = "kafka" }, "unknown QUEUE_BACKEND"},
		{"zero budget", func(c *Config) { c.MaxCacheSizeBytes = 0 }, "MAX_CACHE_SIZE_BYTES"},
		{"ratio above one", func(c *Config) { c.CacheTargetFillRatio = 1.5 }, "CACHE_TARGET_FILL_RATIO"},
		{"no workers", func(c *Config) { c.WorkerConcurrency = 0 }, "WORKER_CONCURRENCY"},
		{"soft above hard", func(c *Config) { c.TaskSoftTimeLimit = c.TaskTimeLimit + time.Second }, "TASK_SOFT_TIME_LIMIT_SECONDS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}
