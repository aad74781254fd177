package cache

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/vidrelay/internal/domain/model"
	"github.com/hszk-dev/vidrelay/internal/domain/repository"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return client, mr, cleanup
}

func TestRedisStore_RoundTrip(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewRedisStore(client, 24*time.Hour, nil)
	ctx := context.Background()
	created := time.Now().Truncate(time.Microsecond)

	entry := &model.CacheEntry{ID: "dQw4w9WgXcQ", Result: *sampleResult(), CreatedAt: created}
	if err := store.Save(ctx, entry); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Load(ctx, "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}
	if !reflect.DeepEqual(got.Result, entry.Result) {
		t.Errorf("Result = %+v, want %+v", got.Result, entry.Result)
	}
}

func TestRedisStore_Load_Miss(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewRedisStore(client, time.Hour, nil)

	_, err := store.Load(context.Background(), "dQw4w9WgXcQ")
	if !errors.Is(err, repository.ErrEntryNotFound) {
		t.Errorf("Load() error = %v, want %v", err, repository.ErrEntryNotFound)
	}
}

func TestRedisStore_Load_Corrupt(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewRedisStore(client, time.Hour, nil)
	if err := mr.Set("item:dQw4w9WgXcQ", "not json"); err != nil {
		t.Fatalf("miniredis Set failed: %v", err)
	}

	_, err := store.Load(context.Background(), "dQw4w9WgXcQ")
	if !errors.Is(err, repository.ErrCorruptEntry) {
		t.Errorf("Load() error = %v, want %v", err, repository.ErrCorruptEntry)
	}
}

func TestRedisStore_Save_SetsRetentionTTL(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewRedisStore(client, 24*time.Hour, nil)
	ctx := context.Background()

	entry := &model.CacheEntry{ID: "dQw4w9WgXcQ", Result: *sampleResult(), CreatedAt: time.Now()}
	if err := store.Save(ctx, entry); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if ttl := mr.TTL("item:dQw4w9WgXcQ"); ttl != 24*time.Hour {
		t.Errorf("TTL = %v, want %v", ttl, 24*time.Hour)
	}

	mr.FastForward(25 * time.Hour)

	if _, err := store.Load(ctx, "dQw4w9WgXcQ"); !errors.Is(err, repository.ErrEntryNotFound) {
		t.Errorf("Load() after expiry error = %v, want %v", err, repository.ErrEntryNotFound)
	}
}

func TestRedisStore_Delete(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewRedisStore(client, time.Hour, nil)
	ctx := context.Background()

	entry := &model.CacheEntry{ID: "dQw4w9WgXcQ", Result: *sampleResult(), CreatedAt: time.Now()}
	if err := store.Save(ctx, entry); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Delete(ctx, "dQw4w9WgXcQ"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load(ctx, "dQw4w9WgXcQ"); !errors.Is(err, repository.ErrEntryNotFound) {
		t.Errorf("Load() error = %v, want %v", err, repository.ErrEntryNotFound)
	}

	// Delete non-existent entry should not error
	if err := store.Delete(ctx, "dQw4w9WgXcQ"); err != nil {
		t.Fatalf("Delete failed for non-existent key: %v", err)
	}
}

func TestRedisStore_Sweep(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	// No native expiry so the sweep alone decides.
	store := NewRedisStore(client, 0, nil)
	ctx := context.Background()
	cutoff := time.Now().Add(-24 * time.Hour)

	entries := []*model.CacheEntry{
		{ID: "oldAAAAAAAA", Result: *sampleResult(), CreatedAt: cutoff.Add(-time.Minute)},
		{ID: "edgeBBBBBBB", Result: *sampleResult(), CreatedAt: cutoff},
		{ID: "newCCCCCCCC", Result: *sampleResult(), CreatedAt: cutoff.Add(time.Minute)},
	}
	for _, e := range entries {
		if err := store.Save(ctx, e); err != nil {
			t.Fatalf("Save(%s) failed: %v", e.ID, err)
		}
	}
	if err := mr.Set("unrelated", "value"); err != nil {
		t.Fatalf("miniredis Set failed: %v", err)
	}

	res, err := store.Sweep(ctx, cutoff)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if res.Removed != 2 {
		t.Errorf("Removed = %d, want 2", res.Removed)
	}
	if res.Scanned != 3 {
		t.Errorf("Scanned = %d, want 3", res.Scanned)
	}
	if _, err := store.Load(ctx, "newCCCCCCCC"); err != nil {
		t.Errorf("expected newest entry to survive: %v", err)
	}
	if !mr.Exists("unrelated") {
		t.Error("sweep must not touch keys outside the item prefix")
	}
}

func TestRedisStore_buildKey(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewRedisStore(client, time.Hour, nil)

	key := store.buildKey("dQw4w9WgXcQ")
	expected := "item:dQw4w9WgXcQ"

	if key != expected {
		t.Errorf("buildKey() = %v, want %v", key, expected)
	}
}
