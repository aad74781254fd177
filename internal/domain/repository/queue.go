package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SweepTask asks a worker to purge cache entries past the retention window.
type SweepTask struct {
	ID          uuid.UUID `json:"id"`
	RequestedAt time.Time `json:"requested_at"`
	// Reason records what triggered the sweep (e.g. "lookup").
	Reason string `json:"reason"`
}

// TaskQueue defines the interface for message queue operations.
// Implementations should be provided by the infrastructure layer (e.g., RabbitMQ).
type TaskQueue interface {
	// PublishSweepTask sends a sweep task to the queue.
	// Used by the API server when sweeps are delegated to the worker.
	PublishSweepTask(ctx context.Context, task SweepTask) error

	// ConsumeSweepTasks starts consuming sweep tasks from the queue.
	// The handler function is called for each received task.
	// Blocks until ctx is cancelled or the delivery channel closes.
	ConsumeSweepTasks(ctx context.Context, handler func(task SweepTask) error) error

	// Close gracefully closes the connection to the message queue.
	Close() error
}
