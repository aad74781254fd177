package repository

import (
	"context"
	"time"

	"github.com/hszk-dev/vidrelay/internal/domain/model"
)

// SweepResult summarizes one pass over persisted cache entries.
type SweepResult struct {
	Scanned int
	Removed int
	Failed  int
}

// MetadataStore persists cache entries keyed by item id.
// Implementations are provided by the infrastructure layer (filesystem, Redis, PostgreSQL, MinIO).
// No locking is required of implementations: concurrent saves of the same id are last-write-wins.
type MetadataStore interface {
	// Load retrieves the entry for id.
	// Returns ErrEntryNotFound on a miss and ErrCorruptEntry when the entry cannot be decoded.
	Load(ctx context.Context, id model.ItemID) (*model.CacheEntry, error)

	// Save persists entry, replacing any existing entry with the same id.
	// entry.CreatedAt is the authoritative creation time.
	Save(ctx context.Context, entry *model.CacheEntry) error

	// Delete removes the entry for id. Returns nil if it did not exist.
	Delete(ctx context.Context, id model.ItemID) error

	// Sweep removes every entry created at or before cutoff.
	// Individual delete failures are counted in SweepResult.Failed and do not abort the pass.
	Sweep(ctx context.Context, cutoff time.Time) (SweepResult, error)
}
