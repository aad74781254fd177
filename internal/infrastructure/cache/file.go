package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/hszk-dev/vidrelay/internal/domain/model"
	"github.com/hszk-dev/vidrelay/internal/domain/repository"
)

const (
	entryExt      = ".json"
	tempExt       = ".tmp"
	sweepLockName = ".sweep.lock"
)

// errInvalidKey is returned for ids that cannot be used as a file name.
var errInvalidKey = errors.New("item id is not a safe file name")

// FileStore implements repository.MetadataStore with one file per item.
// The file's modification time is the entry's creation time.
type FileStore struct {
	dir    string // Absolute path to cache directory
	logger *slog.Logger
}

// Compile-time verification that FileStore implements repository.MetadataStore.
var _ repository.MetadataStore = (*FileStore)(nil)

// NewFileStore creates the cache directory if needed and returns a store rooted there.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{dir: absDir, logger: logger}, nil
}

// Dir returns the cache directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Ping checks that the cache directory is still present.
func (s *FileStore) Ping(ctx context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("stat cache directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cache path %s is not a directory", s.dir)
	}
	return nil
}

// Load reads the entry for id. The entry's CreatedAt is the file's mtime.
func (s *FileStore) Load(ctx context.Context, id model.ItemID) (*model.CacheEntry, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, repository.ErrEntryNotFound
		}
		return nil, fmt.Errorf("open cache file: %w", err)
	}
	defer func() { _ = f.Close() }()

	// Stat the open handle so mtime and content come from the same file
	// even if a concurrent Save renames a new one into place.
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat cache file: %w", err)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read cache file: %w", err)
	}

	result, err := DecodeResult(data)
	if err != nil {
		return nil, err
	}

	return &model.CacheEntry{
		ID:        id,
		Result:    *result,
		CreatedAt: info.ModTime(),
	}, nil
}

// Save writes the entry to a temp file, stamps its mtime and renames it into place.
func (s *FileStore) Save(ctx context.Context, entry *model.CacheEntry) error {
	path, err := s.path(entry.ID)
	if err != nil {
		return err
	}

	data, err := EncodeResult(&entry.Result)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	tmpPath := filepath.Join(s.dir, "."+string(entry.ID)+"."+uuid.NewString()+tempExt)
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Chtimes(tmpPath, entry.CreatedAt, entry.CreatedAt); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("set entry mtime: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename cache file: %w", err)
	}

	return nil
}

// Delete removes the entry for id.
func (s *FileStore) Delete(ctx context.Context, id model.ItemID) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove cache file: %w", err)
	}
	return nil
}

// Sweep removes entry files, and temp files left by interrupted writes, whose mtime is
// at or before cutoff. If another process holds the sweep lock the pass is skipped.
func (s *FileStore) Sweep(ctx context.Context, cutoff time.Time) (repository.SweepResult, error) {
	var res repository.SweepResult

	// A fresh Flock per pass: flock(2) locks belong to the open file description,
	// so concurrent passes inside one process also exclude each other.
	lock := flock.New(filepath.Join(s.dir, sweepLockName))
	locked, err := lock.TryLock()
	if err != nil {
		return res, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !locked {
		s.logger.Debug("cache sweep already running elsewhere, skipping")
		return res, nil
	}
	defer func() { _ = lock.Unlock() }()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return res, fmt.Errorf("read cache directory: %w", err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		name := e.Name()
		if e.IsDir() || name == sweepLockName {
			continue
		}
		if !strings.HasSuffix(name, entryExt) && !strings.HasSuffix(name, tempExt) {
			continue
		}
		res.Scanned++

		info, err := e.Info()
		if err != nil {
			// Removed concurrently.
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			res.Failed++
			s.logger.Warn("failed to remove expired cache file",
				slog.String("file", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		res.Removed++
	}

	return res, nil
}

// path maps id to its entry file, rejecting ids that could escape the cache directory.
func (s *FileStore) path(id model.ItemID) (string, error) {
	key := string(id)
	if key == "" || strings.HasPrefix(key, ".") || strings.ContainsAny(key, `/\`) || filepath.Base(key) != key {
		return "", fmt.Errorf("%w: %q", errInvalidKey, key)
	}
	return filepath.Join(s.dir, key+entryExt), nil
}
