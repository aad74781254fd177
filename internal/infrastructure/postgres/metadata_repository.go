package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hszk-dev/vidrelay/internal/domain/model"
	"github.com/hszk-dev/vidrelay/internal/domain/repository"
	"github.com/hszk-dev/vidrelay/internal/infrastructure/cache"
)

// DBTX is an interface that abstracts pgxpool.Pool and pgx.Tx for testability.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// MetadataRepository implements repository.MetadataStore on the item_cache table.
type MetadataRepository struct {
	db DBTX
}

// NewMetadataRepository creates a new MetadataRepository instance.
func NewMetadataRepository(db DBTX) *MetadataRepository {
	return &MetadataRepository{db: db}
}

// Load retrieves the entry for id.
func (r *MetadataRepository) Load(ctx context.Context, id model.ItemID) (*model.CacheEntry, error) {
	const query = `SELECT payload, created_at FROM item_cache WHERE item_id = $1`

	var (
		payload   []byte
		createdAt time.Time
	)
	if err := r.db.QueryRow(ctx, query, id.String()).Scan(&payload, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to load cache entry: %w", err)
	}

	result, err := cache.DecodeResult(payload)
	if err != nil {
		return nil, err
	}

	return &model.CacheEntry{
		ID:        id,
		Result:    *result,
		CreatedAt: createdAt,
	}, nil
}

// Save upserts the entry, replacing payload and creation time of any existing row.
func (r *MetadataRepository) Save(ctx context.Context, entry *model.CacheEntry) error {
	const query = `INSERT INTO item_cache (item_id, payload, created_at) VALUES ($1, $2, $3) ON CONFLICT (item_id) DO UPDATE SET payload = EXCLUDED.payload, created_at = EXCLUDED.created_at`

	payload, err := cache.EncodeResult(&entry.Result)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	if _, err := r.db.Exec(ctx, query, entry.ID.String(), payload, entry.CreatedAt); err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}

	return nil
}

// Delete removes the entry for id.
func (r *MetadataRepository) Delete(ctx context.Context, id model.ItemID) error {
	const query = `DELETE FROM item_cache WHERE item_id = $1`

	if _, err := r.db.Exec(ctx, query, id.String()); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}

	return nil
}

// Sweep deletes every row created at or before cutoff in one statement.
func (r *MetadataRepository) Sweep(ctx context.Context, cutoff time.Time) (repository.SweepResult, error) {
	const query = `DELETE FROM item_cache WHERE created_at <= $1`

	tag, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return repository.SweepResult{}, fmt.Errorf("failed to sweep cache entries: %w", err)
	}

	removed := int(tag.RowsAffected())
	return repository.SweepResult{Scanned: removed, Removed: removed}, nil
}

// Compile-time verification that MetadataRepository implements repository.MetadataStore.
var _ repository.MetadataStore = (*MetadataRepository)(nil)
