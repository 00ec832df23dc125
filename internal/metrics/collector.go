package metrics

import (
	"context"
	"time"

	"github.com/onnwee/screenshot-api/internal/logger"
)

// CacheSource reports the cache directory's current size.
type CacheSource interface {
	Stats(ctx context.Context) (entries int, bytes int64, err error)
}

// QueueSource reports how many jobs are waiting.
type QueueSource interface {
	Depth(ctx context.Context) (int64, error)
}

// Collector periodically collects and updates Prometheus gauges
type Collector struct {
	cache    CacheSource
	queue    QueueSource
	interval time.Duration
	stop     chan struct{}
}

// NewCollector creates a new metrics collector. Either source may be nil.
func NewCollector(cache CacheSource, queue QueueSource, interval time.Duration) *Collector {
	return &Collector{
		cache:    cache,
		queue:    queue,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Collect initial metrics
	c.collect(ctx)

	for {
		select {
		case <-ticker.C:
			c.collect(ctx)
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the metrics collector
func (c *Collector) Stop() {
	close(c.stop)
}

func (c *Collector) collect(ctx context.Context) {
	c.collectCacheStats(ctx)
	c.collectQueueDepth(ctx)
}

func (c *Collector) collectCacheStats(ctx context.Context) {
	if c.cache == nil {
		return
	}
	entries, size, err := c.cache.Stats(ctx)
	if err != nil {
		logger.Warn("Error collecting cache stats", "error", err)
		MetricsCollectionErrors.WithLabelValues("cache").Inc()
		// Signal stale data
		CacheSizeBytes.Set(-1)
		CacheEntries.Set(-1)
		return
	}
	CacheSizeBytes.Set(float64(size))
	CacheEntries.Set(float64(entries))
}

func (c *Collector) collectQueueDepth(ctx context.Context) {
	if c.queue == nil {
		return
	}
	depth, err := c.queue.Depth(ctx)
	if err != nil {
		logger.Warn("Error collecting queue depth", "error", err)
		MetricsCollectionErrors.WithLabelValues("queue").Inc()
		QueueDepth.Set(-1)
		return
	}
	QueueDepth.Set(float64(depth))
}
