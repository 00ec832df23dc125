package queue

import (
	"context"
	"sync"
	"time"

	"github.com/onnwee/screenshot-api/internal/screenshot"
)

type memoryRecord struct {
	status    Status
	expiresAt time.Time
}

// MemoryQueue is an in-process Broker and Consumer for single-process
// deployments and tests. Nothing survives a restart.
type MemoryQueue struct {
	mu        sync.Mutex
	pending   []Job
	records   map[string]memoryRecord
	notify    chan struct{}
	resultTTL time.Duration
	now       func() time.Time
}

// NewMemoryQueue returns an empty queue whose job states expire after resultTTL.
func NewMemoryQueue(resultTTL time.Duration) *MemoryQueue {
	if resultTTL <= 0 {
		resultTTL = DefaultResultTTL
	}
	return &MemoryQueue{
		records:   make(map[string]memoryRecord),
		notify:    make(chan struct{}, 1),
		resultTTL: resultTTL,
		now:       time.Now,
	}
}

func (q *MemoryQueue) Submit(ctx context.Context, req screenshot.Request, key screenshot.CacheKey) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	now := q.now()
	job := newJob(ctx, req, key, now)

	q.mu.Lock()
	q.pruneLocked(now)
	q.pending = append(q.pending, job)
	q.records[job.ID] = memoryRecord{
		status:    Status{ID: job.ID, State: StatePending, UpdatedAt: now.UTC()},
		expiresAt: now.Add(q.resultTTL),
	}
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return job, nil
}

func (q *MemoryQueue) Status(ctx context.Context, id string) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, ok := q.records[id]
	if !ok {
		return Status{}, ErrUnknownJob
	}
	if !q.now().Before(rec.expiresAt) {
		delete(q.records, id)
		return Status{}, ErrUnknownJob
	}
	return rec.status, nil
}

func (q *MemoryQueue) Next(ctx context.Context) (Job, error) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			job := q.pending[0]
			q.pending[0] = Job{}
			q.pending = q.pending[1:]
			more := len(q.pending) > 0
			q.mu.Unlock()
			if more {
				// wake another consumer for the remaining jobs
				select {
				case q.notify <- struct{}{}:
				default:
				}
			}
			return job, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return Job{}, ctx.Err()
		}
	}
}

func (q *MemoryQueue) Update(ctx context.Context, st Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := q.now()
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = now.UTC()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.records[st.ID] = memoryRecord{status: st, expiresAt: now.Add(q.resultTTL)}
	return nil
}

// Depth returns the number of jobs waiting for a consumer.
func (q *MemoryQueue) Depth(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.pending)), nil
}

// pruneLocked drops expired records. Must be called with mu held.
func (q *MemoryQueue) pruneLocked(now time.Time) {
	for id, rec := range q.records {
		if !now.Before(rec.expiresAt) {
			delete(q.records, id)
		}
	}
}
