package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/screenshot-api/internal/logger"
	"github.com/onnwee/screenshot-api/internal/screenshot"
)

// RedisOptions tunes key naming and timing of a RedisQueue.
type RedisOptions struct {
	// Prefix namespaces every key. Defaults to "screenshot".
	Prefix    string
	ResultTTL time.Duration
	// ConsumerName names this worker's processing list. Jobs left on it by a
	// crashed worker with the same name are requeued by Recover.
	ConsumerName string
	// BlockTimeout bounds a single blocking pop so Next can observe ctx.
	BlockTimeout time.Duration
}

func (o *RedisOptions) applyDefaults() {
	if o.Prefix == "" {
		o.Prefix = "screenshot"
	}
	if o.ResultTTL <= 0 {
		o.ResultTTL = DefaultResultTTL
	}
	if o.ConsumerName == "" {
		o.ConsumerName = "default"
	}
	if o.BlockTimeout < time.Second {
		o.BlockTimeout = 2 * time.Second
	}
}

// RedisQueue implements Broker and Consumer on Redis.
//
// Pending jobs live on a list. Next moves a job atomically onto the consumer's
// processing list, and a terminal Update removes it from there. Each job's
// status is a hash that expires ResultTTL after its last update.
type RedisQueue struct {
	client *redis.Client
	opts   RedisOptions
	log    *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	inflight map[string]string // job id -> raw payload on the processing list
}

// NewRedisQueue wraps an existing client.
func NewRedisQueue(client *redis.Client, opts RedisOptions) *RedisQueue {
	opts.applyDefaults()
	return &RedisQueue{
		client:   client,
		opts:     opts,
		log:      logger.WithComponent("redis-queue"),
		now:      time.Now,
		inflight: make(map[string]string),
	}
}

// NewRedisQueueFromURL connects using a redis:// or rediss:// URL.
func NewRedisQueueFromURL(url string, opts RedisOptions) (*RedisQueue, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisQueue(redis.NewClient(redisOpts), opts), nil
}

// Close closes the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// Ping checks if Redis is available.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) queueKey() string      { return q.opts.Prefix + ":queue" }
func (q *RedisQueue) processingKey() string { return q.opts.Prefix + ":processing:" + q.opts.ConsumerName }
func (q *RedisQueue) jobKey(id string) string {
	return q.opts.Prefix + ":job:" + id
}

func (q *RedisQueue) Submit(ctx context.Context, req screenshot.Request, key screenshot.CacheKey) (Job, error) {
	now := q.now()
	job := newJob(ctx, req, key, now)
	payload, err := json.Marshal(job)
	if err != nil {
		return Job{}, fmt.Errorf("encode job: %w", err)
	}

	jobKey := q.jobKey(job.ID)
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, jobKey,
			"state", string(StatePending),
			"key", string(key),
			"updated_at", now.UTC().Format(time.RFC3339Nano),
		)
		pipe.Expire(ctx, jobKey, q.opts.ResultTTL)
		pipe.LPush(ctx, q.queueKey(), payload)
		return nil
	})
	if err != nil {
		return Job{}, fmt.Errorf("submit job: %w", err)
	}
	return job, nil
}

func (q *RedisQueue) Status(ctx context.Context, id string) (Status, error) {
	if !validID(id) {
		return Status{}, ErrUnknownJob
	}
	vals, err := q.client.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return Status{}, fmt.Errorf("get job status: %w", err)
	}
	if len(vals) == 0 {
		return Status{}, ErrUnknownJob
	}

	st := Status{
		ID:        id,
		State:     State(vals["state"]),
		ResultKey: screenshot.CacheKey(vals["result_key"]),
		Error:     vals["error"],
	}
	if ts, err := time.Parse(time.RFC3339Nano, vals["updated_at"]); err == nil {
		st.UpdatedAt = ts
	}
	return st, nil
}

func (q *RedisQueue) Next(ctx context.Context) (Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}
		raw, err := q.client.BLMove(ctx, q.queueKey(), q.processingKey(), "RIGHT", "LEFT", q.opts.BlockTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Job{}, ctxErr
			}
			return Job{}, fmt.Errorf("pop job: %w", err)
		}

		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil || job.ID == "" {
			q.log.Error("dropping malformed job payload", "error", err)
			q.client.LRem(ctx, q.processingKey(), 1, raw)
			continue
		}

		q.mu.Lock()
		q.inflight[job.ID] = raw
		q.mu.Unlock()
		return job, nil
	}
}

func (q *RedisQueue) Update(ctx context.Context, st Status) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = q.now()
	}
	q.mu.Lock()
	raw, tracked := q.inflight[st.ID]
	q.mu.Unlock()

	jobKey := q.jobKey(st.ID)
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, jobKey,
			"state", string(st.State),
			"result_key", string(st.ResultKey),
			"error", st.Error,
			"updated_at", st.UpdatedAt.UTC().Format(time.RFC3339Nano),
		)
		pipe.Expire(ctx, jobKey, q.opts.ResultTTL)
		if st.State.Terminal() && tracked {
			pipe.LRem(ctx, q.processingKey(), 1, raw)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}

	if st.State.Terminal() && tracked {
		q.mu.Lock()
		delete(q.inflight, st.ID)
		q.mu.Unlock()
	}
	return nil
}

// Recover moves jobs stranded on this consumer's processing list back onto the
// pending list. Call it once at worker start, before Next.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.processingKey(), q.queueKey(), "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("recover processing list: %w", err)
		}
		moved++
	}
}

// Depth returns the number of jobs waiting for a consumer.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueKey()).Result()
}
