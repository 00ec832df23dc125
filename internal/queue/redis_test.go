package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/screenshot-api/internal/screenshot"
)

func newTestRedisQueue(t *testing.T, opts RedisOptions) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewRedisQueue(client, opts)
	t.Cleanup(func() { q.Close() })
	return q, mr
}

func TestRedisQueue_Lifecycle(t *testing.T) {
	q, _ := newTestRedisQueue(t, RedisOptions{})
	exerciseLifecycle(t, q)
}

func TestRedisQueue_Unknown(t *testing.T) {
	q, _ := newTestRedisQueue(t, RedisOptions{})
	exerciseUnknown(t, q)
}

func TestRedisQueue_UniqueIDs(t *testing.T) {
	q, _ := newTestRedisQueue(t, RedisOptions{})
	exerciseUniqueIDs(t, q)
}

func TestRedisQueue_ResultExpiry(t *testing.T) {
	q, mr := newTestRedisQueue(t, RedisOptions{ResultTTL: time.Hour})
	ctx := context.Background()

	req := screenshot.NewRequest("https://example.com")
	job, err := q.Submit(ctx, req, screenshot.Key(req))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := q.Next(ctx); err != nil {
		t.Fatal(err)
	}
	if err := q.Update(ctx, Status{ID: job.ID, State: StateSucceeded, ResultKey: job.Key}); err != nil {
		t.Fatal(err)
	}

	mr.FastForward(59 * time.Minute)
	if _, err := q.Status(ctx, job.ID); err != nil {
		t.Fatalf("expected status before expiry, got %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := q.Status(ctx, job.ID); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("expected ErrUnknownJob after expiry, got %v", err)
	}
}

func TestRedisQueue_TerminalUpdateClearsProcessingList(t *testing.T) {
	q, mr := newTestRedisQueue(t, RedisOptions{ConsumerName: "w1"})
	ctx := context.Background()

	req := screenshot.NewRequest("https://example.com")
	job, _ := q.Submit(ctx, req, screenshot.Key(req))
	if _, err := q.Next(ctx); err != nil {
		t.Fatal(err)
	}

	processing, _ := mr.List(q.processingKey())
	if len(processing) != 1 {
		t.Fatalf("expected job on processing list, got %d entries", len(processing))
	}

	if err := q.Update(ctx, Status{ID: job.ID, State: StateRunning}); err != nil {
		t.Fatal(err)
	}
	if processing, _ := mr.List(q.processingKey()); len(processing) != 1 {
		t.Error("non-terminal update should keep the job on the processing list")
	}

	if err := q.Update(ctx, Status{ID: job.ID, State: StateFailed, Error: "navigation failed"}); err != nil {
		t.Fatal(err)
	}
	if mr.Exists(q.processingKey()) {
		processing, _ := mr.List(q.processingKey())
		if len(processing) != 0 {
			t.Errorf("expected processing list to be empty, got %d", len(processing))
		}
	}
}

func TestRedisQueue_RecoverRequeuesStrandedJobs(t *testing.T) {
	crashed, mr := newTestRedisQueue(t, RedisOptions{ConsumerName: "w1"})
	ctx := context.Background()

	req := screenshot.NewRequest("https://example.com")
	job, _ := crashed.Submit(ctx, req, screenshot.Key(req))
	if _, err := crashed.Next(ctx); err != nil {
		t.Fatal(err)
	}

	// a restarted worker with the same name shares the processing list
	restarted := NewRedisQueue(redis.NewClient(&redis.Options{Addr: mr.Addr()}), RedisOptions{ConsumerName: "w1"})
	defer restarted.Close()

	moved, err := restarted.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if moved != 1 {
		t.Errorf("Recover moved %d jobs, want 1", moved)
	}

	got, err := restarted.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != job.ID {
		t.Errorf("recovered job %s, want %s", got.ID, job.ID)
	}
}

func TestRedisQueue_SubmitFailsWhenRedisDown(t *testing.T) {
	q, mr := newTestRedisQueue(t, RedisOptions{})
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req := screenshot.NewRequest("https://example.com")
	if _, err := q.Submit(ctx, req, screenshot.Key(req)); err == nil {
		t.Error("expected Submit to fail with redis down")
	}
}

func TestRedisQueue_NextHonorsCanceledContext(t *testing.T) {
	q, _ := newTestRedisQueue(t, RedisOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewRedisQueueFromURL(t *testing.T) {
	if _, err := NewRedisQueueFromURL("not a url", RedisOptions{}); err == nil {
		t.Error("expected invalid URL to fail")
	}
	q, err := NewRedisQueueFromURL("redis://localhost:6379/2", RedisOptions{Prefix: "test"})
	if err != nil {
		t.Fatalf("NewRedisQueueFromURL: %v", err)
	}
	defer q.Close()
	if q.queueKey() != "test:queue" {
		t.Errorf("unexpected queue key %s", q.queueKey())
	}
}
