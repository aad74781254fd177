package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/hszk-dev/vidrelay/internal/domain/model"
	"github.com/hszk-dev/vidrelay/internal/domain/repository"
)

const samplePayload = `{"metadata":{"title":"Sample","author":"Uploader","duration_seconds":212,"thumbnail_url":"https://i.example.com/t.jpg"},"variants":[{"tag":"22","quality_label":"720p","container":"mp4","has_audio":true,"has_video":true,"url":"https://cdn.example.com/22","mime_type":"video/mp4"}]}`

func TestMetadataRepository_Load(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		mockFn    func(mock pgxmock.PgxPoolIface)
		wantTitle string
		wantErr   error
	}{
		{
			name: "successful retrieval",
			mockFn: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows([]string{"payload", "created_at"}).
					AddRow([]byte(samplePayload), now)
				mock.ExpectQuery("SELECT payload, created_at FROM item_cache WHERE item_id").
					WithArgs("dQw4w9WgXcQ").
					WillReturnRows(rows)
			},
			wantTitle: "Sample",
		},
		{
			name: "entry not found",
			mockFn: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("SELECT payload, created_at FROM item_cache WHERE item_id").
					WithArgs("dQw4w9WgXcQ").
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: repository.ErrEntryNotFound,
		},
		{
			name: "corrupt payload",
			mockFn: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows([]string{"payload", "created_at"}).
					AddRow([]byte(`{"metadata":{}}`), now)
				mock.ExpectQuery("SELECT payload, created_at FROM item_cache WHERE item_id").
					WithArgs("dQw4w9WgXcQ").
					WillReturnRows(rows)
			},
			wantErr: repository.ErrCorruptEntry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer mock.Close()

			tt.mockFn(mock)

			repo := NewMetadataRepository(mock)
			got, err := repo.Load(context.Background(), "dQw4w9WgXcQ")

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("Load() unexpected error = %v", err)
			}
			if got.Result.Metadata.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", got.Result.Metadata.Title, tt.wantTitle)
			}
			if !got.CreatedAt.Equal(now) {
				t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now)
			}
			if len(got.Result.Variants) != 1 || got.Result.Variants[0].Tag != "22" {
				t.Errorf("Variants = %+v, want one variant tagged 22", got.Result.Variants)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestMetadataRepository_Save(t *testing.T) {
	created := time.Now()
	entry := &model.CacheEntry{
		ID: "dQw4w9WgXcQ",
		Result: model.ResolutionResult{
			Metadata: model.ItemMetadata{Title: "Sample"},
			Variants: []model.Variant{{Tag: "22", URL: "https://cdn.example.com/22"}},
		},
		CreatedAt: created,
	}

	tests := []struct {
		name    string
		mockFn  func(mock pgxmock.PgxPoolIface)
		wantErr bool
	}{
		{
			name: "successful upsert",
			mockFn: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec("INSERT INTO item_cache").
					WithArgs("dQw4w9WgXcQ", pgxmock.AnyArg(), created).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "database error",
			mockFn: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec("INSERT INTO item_cache").
					WithArgs("dQw4w9WgXcQ", pgxmock.AnyArg(), created).
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer mock.Close()

			tt.mockFn(mock)

			repo := NewMetadataRepository(mock)
			err = repo.Save(context.Background(), entry)

			if (err != nil) != tt.wantErr {
				t.Errorf("Save() error = %v, wantErr %v", err, tt.wantErr)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestMetadataRepository_Delete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer mock.Close()

	// Deleting a missing row is not an error.
	mock.ExpectExec("DELETE FROM item_cache WHERE item_id").
		WithArgs("dQw4w9WgXcQ").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	repo := NewMetadataRepository(mock)
	if err := repo.Delete(context.Background(), "dQw4w9WgXcQ"); err != nil {
		t.Errorf("Delete() unexpected error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestMetadataRepository_Sweep(t *testing.T) {
	cutoff := time.Now().Add(-24 * time.Hour)

	tests := []struct {
		name        string
		mockFn      func(mock pgxmock.PgxPoolIface)
		wantRemoved int
		wantErr     bool
	}{
		{
			name: "removes expired rows",
			mockFn: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec("DELETE FROM item_cache WHERE created_at").
					WithArgs(cutoff).
					WillReturnResult(pgxmock.NewResult("DELETE", 3))
			},
			wantRemoved: 3,
		},
		{
			name: "database error",
			mockFn: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec("DELETE FROM item_cache WHERE created_at").
					WithArgs(cutoff).
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer mock.Close()

			tt.mockFn(mock)

			repo := NewMetadataRepository(mock)
			got, err := repo.Sweep(context.Background(), cutoff)

			if (err != nil) != tt.wantErr {
				t.Fatalf("Sweep() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got.Removed != tt.wantRemoved {
				t.Errorf("Sweep() removed = %d, want %d", got.Removed, tt.wantRemoved)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}
