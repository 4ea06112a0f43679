package storage

import (
	"context"

	"github.com/sathwikvintha/release-automation/internal/model"
)

// StatusRepository is the persisted record of every step's latest status.
type StatusRepository interface {
	// Initialize seeds the record with every known step IDLE, replacing any previous content.
	Initialize(ctx context.Context) error
	// Read returns the full record, a missing record returns the default one.
	Read(ctx context.Context) (model.StatusRecord, error)
	// Write sets the status of a single step keeping the rest of the record.
	Write(ctx context.Context, step string, status model.StepStatus) error
}

// RunRepository stores the history of step dispatches.
type RunRepository interface {
	CreateRun(ctx context.Context, r model.Run) error
	CompleteRun(ctx context.Context, r model.Run) error
	// ListRuns returns the runs of a step, newest first. A limit <= 0 returns all of them.
	ListRuns(ctx context.Context, step string, limit int) ([]model.Run, error)
}
