package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/onnwee/screenshot-api/internal/screenshot"
)

// flakyStore fails deletes for selected keys and can fail listing.
type flakyStore struct {
	*FileStore
	failDelete map[screenshot.CacheKey]bool
	failList   bool
}

func (f *flakyStore) Delete(ctx context.Context, key screenshot.CacheKey) error {
	if f.failDelete[key] {
		return errors.New("permission denied")
	}
	return f.FileStore.Delete(ctx, key)
}

func (f *flakyStore) List(ctx context.Context) ([]Entry, error) {
	if f.failList {
		return nil, errors.New("io error")
	}
	return f.FileStore.List(ctx)
}

// seed writes n entries of size bytes each; entry i is (n-i) hours old.
func seed(t *testing.T, s *FileStore, n, size int) []screenshot.CacheKey {
	t.Helper()
	keys := make([]screenshot.CacheKey, n)
	for i := 0; i < n; i++ {
		keys[i] = testKey(i)
		if err := s.Write(context.Background(), keys[i], make([]byte, size)); err != nil {
			t.Fatal(err)
		}
		backdate(t, s, keys[i], time.Duration(n-i)*time.Hour)
	}
	return keys
}

func TestExpireSweep(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	keys := seed(t, s, 5, 100) // ages 5h..1h
	j := NewJanitor(s, JanitorConfig{})

	ttl := 150 * time.Minute
	report, err := j.ExpireSweep(ctx, ttl)
	if err != nil {
		t.Fatalf("ExpireSweep: %v", err)
	}
	if report.Scanned != 5 || report.Deleted != 3 || report.FreedBytes != 300 {
		t.Errorf("unexpected report %+v", report)
	}

	for i, key := range keys {
		ok, _ := s.Exists(ctx, key)
		if want := i >= 3; ok != want {
			t.Errorf("entry %d exists=%v, want %v", i, ok, want)
		}
	}
	entries, _ := s.List(ctx)
	for _, e := range entries {
		if age, _ := s.Age(ctx, e.Key); age > ttl {
			t.Errorf("entry %s survived with age %v", e.Key, age)
		}
	}
}

func TestSizeSweep(t *testing.T) {
	tests := []struct {
		name        string
		n, size     int
		max         int64
		ratio       float64
		wantDeleted int
	}{
		{"under budget", 4, 100, 1000, 0.8, 0},
		{"at budget", 4, 100, 400, 0.8, 0},
		{"over budget evicts to ratio", 10, 100, 800, 0.8, 4},
		{"ratio one", 10, 100, 800, 1.0, 2},
		{"invalid ratio uses default", 10, 100, 800, 0, 4},
		{"tiny budget empties store", 5, 100, 50, 0.5, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := newTestStore(t)
			keys := seed(t, s, tt.n, tt.size)
			j := NewJanitor(s, JanitorConfig{})

			report, err := j.SizeSweep(ctx, tt.max, tt.ratio)
			if err != nil {
				t.Fatalf("SizeSweep: %v", err)
			}
			if report.Deleted != tt.wantDeleted {
				t.Errorf("deleted %d, want %d", report.Deleted, tt.wantDeleted)
			}

			total, _ := s.TotalSize(ctx)
			ratio := tt.ratio
			if ratio <= 0 {
				ratio = DefaultTargetFillRatio
			}
			if tt.wantDeleted > 0 && total > int64(float64(tt.max)*ratio) && total != 0 {
				t.Errorf("total %d exceeds target", total)
			}

			// oldest entries go first
			for i := 0; i < tt.wantDeleted; i++ {
				if ok, _ := s.Exists(ctx, keys[i]); ok {
					t.Errorf("expected oldest entry %d to be evicted", i)
				}
			}
			for i := tt.wantDeleted; i < tt.n; i++ {
				if ok, _ := s.Exists(ctx, keys[i]); !ok {
					t.Errorf("expected entry %d to survive", i)
				}
			}
		})
	}
}

func TestSizeSweep_SkipsFailedDeletes(t *testing.T) {
	ctx := context.Background()
	fs := newTestStore(t)
	keys := seed(t, fs, 10, 100)
	s := &flakyStore{FileStore: fs, failDelete: map[screenshot.CacheKey]bool{keys[0]: true}}
	j := NewJanitor(s, JanitorConfig{})

	report, err := j.SizeSweep(ctx, 800, 0.8)
	if err != nil {
		t.Fatalf("SizeSweep: %v", err)
	}
	if report.Failures != 1 {
		t.Errorf("expected 1 failure, got %d", report.Failures)
	}
	if report.Deleted != 4 {
		t.Errorf("expected 4 deletions past the failing entry, got %d", report.Deleted)
	}
	if ok, _ := fs.Exists(ctx, keys[0]); !ok {
		t.Error("entry with failing delete should remain")
	}
	if ok, _ := fs.Exists(ctx, keys[4]); ok {
		t.Error("sweep should have continued past the failure")
	}
}

func TestSweep_ListFailureIsReported(t *testing.T) {
	s := &flakyStore{FileStore: newTestStore(t), failList: true}
	j := NewJanitor(s, JanitorConfig{TTL: time.Hour, MaxBytes: 100})

	if _, err := j.ExpireSweep(context.Background(), time.Hour); err == nil {
		t.Error("expected ExpireSweep to report listing failure")
	}
	if _, err := j.SizeSweep(context.Background(), 100, 0.8); err == nil {
		t.Error("expected SizeSweep to report listing failure")
	}
	if _, err := j.Sweep(context.Background()); err == nil {
		t.Error("expected Sweep to report listing failure")
	}
}

func TestSweep_RunsBoth(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s, 10, 100) // ages 10h..1h
	j := NewJanitor(s, JanitorConfig{TTL: 150 * time.Minute, MaxBytes: 150, TargetFillRatio: 0.8})

	report, err := j.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	// expiry leaves the two youngest, size sweep trims to one
	if report.Deleted != 9 {
		t.Errorf("expected 9 deletions, got %+v", report)
	}
	total, _ := s.TotalSize(ctx)
	if total > 120 {
		t.Errorf("total %d exceeds target", total)
	}
}
