package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hszk-dev/vidrelay/internal/domain/model"
	"github.com/hszk-dev/vidrelay/internal/domain/repository"
)

// discardLogger keeps test output quiet.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockResolver provides a configurable mock for repository.Resolver.
// Without overrides it accepts any non-empty reference and uses it as the id.
type mockResolver struct {
	validateFn    func(reference string) bool
	canonicalIDFn func(reference string) (model.ItemID, error)
	resolveFn     func(ctx context.Context, reference string) (*model.ResolutionResult, error)
	resolveCount  atomic.Int32
}

func (m *mockResolver) Validate(reference string) bool {
	if m.validateFn != nil {
		return m.validateFn(reference)
	}
	return reference != ""
}

func (m *mockResolver) CanonicalID(reference string) (model.ItemID, error) {
	if m.canonicalIDFn != nil {
		return m.canonicalIDFn(reference)
	}
	return model.ItemID(reference), nil
}

func (m *mockResolver) Resolve(ctx context.Context, reference string) (*model.ResolutionResult, error) {
	m.resolveCount.Add(1)
	if m.resolveFn != nil {
		return m.resolveFn(ctx, reference)
	}
	return sampleResult(), nil
}

// memStore is an in-memory repository.MetadataStore.
type memStore struct {
	mu      sync.Mutex
	entries map[model.ItemID]model.CacheEntry
	saveErr error
	deleted []model.ItemID
	sweepFn func(ctx context.Context, cutoff time.Time) (repository.SweepResult, error)
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[model.ItemID]model.CacheEntry)}
}

func (m *memStore) Load(ctx context.Context, id model.ItemID) (*model.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, repository.ErrEntryNotFound
	}
	return &e, nil
}

func (m *memStore) Save(ctx context.Context, entry *model.CacheEntry) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.ID] = *entry
	return nil
}

func (m *memStore) Delete(ctx context.Context, id model.ItemID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *memStore) Sweep(ctx context.Context, cutoff time.Time) (repository.SweepResult, error) {
	if m.sweepFn != nil {
		return m.sweepFn(ctx, cutoff)
	}
	return repository.SweepResult{}, nil
}

// mockLookupService provides a configurable mock for LookupService.
type mockLookupService struct {
	normalizeFn  func(reference string) (model.ItemID, error)
	resolveFn    func(ctx context.Context, reference string) (*model.ResolutionResult, error)
	invalidateFn func(ctx context.Context, id model.ItemID) error

	mu          sync.Mutex
	invalidated []model.ItemID
}

func (m *mockLookupService) Normalize(reference string) (model.ItemID, error) {
	if m.normalizeFn != nil {
		return m.normalizeFn(reference)
	}
	return model.ItemID(reference), nil
}

func (m *mockLookupService) Resolve(ctx context.Context, reference string) (*model.ResolutionResult, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, reference)
	}
	return sampleResult(), nil
}

func (m *mockLookupService) Invalidate(ctx context.Context, id model.ItemID) error {
	m.mu.Lock()
	m.invalidated = append(m.invalidated, id)
	m.mu.Unlock()
	if m.invalidateFn != nil {
		return m.invalidateFn(ctx, id)
	}
	return nil
}

// mockTaskQueue provides a configurable mock for repository.TaskQueue.
type mockTaskQueue struct {
	publishFn func(ctx context.Context, task repository.SweepTask) error
	consumeFn func(ctx context.Context, handler func(task repository.SweepTask) error) error
}

func (m *mockTaskQueue) PublishSweepTask(ctx context.Context, task repository.SweepTask) error {
	if m.publishFn != nil {
		return m.publishFn(ctx, task)
	}
	return nil
}

func (m *mockTaskQueue) ConsumeSweepTasks(ctx context.Context, handler func(task repository.SweepTask) error) error {
	if m.consumeFn != nil {
		return m.consumeFn(ctx, handler)
	}
	return nil
}

func (m *mockTaskQueue) Close() error {
	return nil
}

// countingSweeper records Trigger calls.
type countingSweeper struct {
	count atomic.Int32
}

func (c *countingSweeper) Trigger() {
	c.count.Add(1)
}

func sampleResult() *model.ResolutionResult {
	return &model.ResolutionResult{
		Metadata: model.ItemMetadata{
			Title:           "Sample Item",
			Author:          "Uploader",
			DurationSeconds: 212,
			ThumbnailURL:    "https://i.example.com/t.jpg",
		},
		Variants: []model.Variant{
			{Tag: "22", QualityLabel: "720p", Container: "mp4", HasAudio: true, HasVideo: true, URL: "https://cdn.example.com/22", MimeType: "video/mp4"},
			{Tag: "140", Container: "m4a", HasAudio: true, URL: "https://cdn.example.com/140", MimeType: "audio/mp4"},
		},
	}
}
