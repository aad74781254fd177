package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hszk-dev/vidrelay/internal/domain/repository"
)

// mockExpirySweeper provides a configurable mock for ExpirySweeper.
type mockExpirySweeper struct {
	sweepFn func(ctx context.Context) (repository.SweepResult, error)
	calls   int
}

func (m *mockExpirySweeper) SweepExpired(ctx context.Context) (repository.SweepResult, error) {
	m.calls++
	if m.sweepFn != nil {
		return m.sweepFn(ctx)
	}
	return repository.SweepResult{}, nil
}

func TestSweepService_ProcessTask(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		requestedAt time.Time
		sweepErr    error
		wantCalls   int
		wantErr     bool
	}{
		{
			name:        "recent task sweeps",
			requestedAt: now.Add(-time.Second),
			wantCalls:   1,
		},
		{
			name:        "outdated task is skipped",
			requestedAt: now.Add(-time.Hour),
			wantCalls:   0,
		},
		{
			name:      "task without timestamp sweeps",
			wantCalls: 1,
		},
		{
			name:        "sweep error propagates",
			requestedAt: now,
			sweepErr:    errors.New("redis unavailable"),
			wantCalls:   1,
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sweeper := &mockExpirySweeper{
				sweepFn: func(ctx context.Context) (repository.SweepResult, error) {
					return repository.SweepResult{Scanned: 3, Removed: 1}, tt.sweepErr
				},
			}
			svc := NewSweepService(sweeper, 10*time.Minute, discardLogger())
			svc.(*sweepService).now = func() time.Time { return now }

			err := svc.ProcessTask(context.Background(), repository.SweepTask{
				ID:          uuid.New(),
				RequestedAt: tt.requestedAt,
				Reason:      "lookup",
			})

			if (err != nil) != tt.wantErr {
				t.Errorf("ProcessTask() error = %v, wantErr %v", err, tt.wantErr)
			}
			if sweeper.calls != tt.wantCalls {
				t.Errorf("SweepExpired called %d times, want %d", sweeper.calls, tt.wantCalls)
			}
		})
	}
}
