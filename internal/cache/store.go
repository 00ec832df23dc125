// Package cache stores rendered screenshots on disk and keeps the directory
// within its age and size budget.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/onnwee/screenshot-api/internal/screenshot"
)

const fileExt = ".jpg"

// ErrNotFound is returned when no entry exists for a key.
var ErrNotFound = errors.New("cache entry not found")

// Entry describes one stored screenshot.
type Entry struct {
	Key     screenshot.CacheKey
	Size    int64
	ModTime time.Time
}

// Store is a key addressed blob store for encoded screenshots.
// Implementations must be safe for concurrent use; writes to the same key race and the last one wins.
type Store interface {
	Exists(ctx context.Context, key screenshot.CacheKey) (bool, error)
	// Read returns ErrNotFound if the key is absent.
	Read(ctx context.Context, key screenshot.CacheKey) ([]byte, error)
	// Write replaces any existing entry atomically.
	Write(ctx context.Context, key screenshot.CacheKey, data []byte) error
	// Age returns how long ago the entry was last written, or ErrNotFound.
	Age(ctx context.Context, key screenshot.CacheKey) (time.Duration, error)
	// Delete removes the entry. Deleting an absent key is not an error.
	Delete(ctx context.Context, key screenshot.CacheKey) error
	List(ctx context.Context) ([]Entry, error)
	TotalSize(ctx context.Context) (int64, error)
	// Path is the location a finished job records for its result.
	Path(key screenshot.CacheKey) string
}

// FileStore keeps one file per key in a single directory.
type FileStore struct {
	dir string
	now func() time.Time
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("cache directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

// Dir returns the directory backing the store.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) Path(key screenshot.CacheKey) string {
	return filepath.Join(s.dir, string(key)+fileExt)
}

func (s *FileStore) stat(ctx context.Context, key screenshot.CacheKey) (fs.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !screenshot.ValidKey(string(key)) {
		return nil, fmt.Errorf("invalid cache key %q", key)
	}
	info, err := os.Stat(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("stat cache entry: %w", err)
	}
	return info, nil
}

func (s *FileStore) Exists(ctx context.Context, key screenshot.CacheKey) (bool, error) {
	_, err := s.stat(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *FileStore) Read(ctx context.Context, key screenshot.CacheKey) ([]byte, error) {
	if _, err := s.stat(ctx, key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		// removed between stat and read
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read cache entry: %w", err)
	}
	return data, nil
}

func (s *FileStore) Write(ctx context.Context, key screenshot.CacheKey, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !screenshot.ValidKey(string(key)) {
		return fmt.Errorf("invalid cache key %q", key)
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-"+string(key)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit cache entry: %w", err)
	}
	return nil
}

func (s *FileStore) Age(ctx context.Context, key screenshot.CacheKey) (time.Duration, error) {
	info, err := s.stat(ctx, key)
	if err != nil {
		return 0, err
	}
	age := s.now().Sub(info.ModTime())
	if age < 0 {
		age = 0
	}
	return age, nil
}

func (s *FileStore) Delete(ctx context.Context, key screenshot.CacheKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !screenshot.ValidKey(string(key)) {
		return fmt.Errorf("invalid cache key %q", key)
	}
	err := os.Remove(s.Path(key))
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("delete cache entry: %w", err)
}

// List returns every committed entry. Temp files and foreign files are skipped.
func (s *FileStore) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list cache dir: %w", err)
	}
	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		name := d.Name()
		key, ok := strings.CutSuffix(name, fileExt)
		if !ok || !screenshot.ValidKey(key) {
			continue
		}
		info, err := d.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
		entries = append(entries, Entry{
			Key:     screenshot.CacheKey(key),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return entries, nil
}

func (s *FileStore) TotalSize(ctx context.Context) (int64, error) {
	_, total, err := s.Stats(ctx)
	return total, err
}

// Stats returns the number of entries and their combined size.
func (s *FileStore) Stats(ctx context.Context) (int, int64, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return 0, 0, err
	}
	var total int64
	for _, e := range entries {
		total += e.Size
	}
	return len(entries), total, nil
}
