package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sathwikvintha/release-automation/internal/log"
	"github.com/sathwikvintha/release-automation/internal/model"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.StatusRepository and storage.RunRepository.
type Repository struct {
	// status is nil until initialized or written, reads fall back to the defaults.
	status model.StatusRecord
	runs   map[string]model.Run
	mu     sync.RWMutex
	logger log.Logger
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		runs:   make(map[string]model.Run),
		logger: cfg.Logger,
	}, nil
}

// Initialize resets every known step to IDLE.
func (r *Repository) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status = model.DefaultStatusRecord()
	r.logger.Debugf("Initialized status record")

	return nil
}

// Read returns a copy of the status record.
func (r *Repository) Read(ctx context.Context) (model.StatusRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.status == nil {
		return model.DefaultStatusRecord(), nil
	}

	return r.status.Clone(), nil
}

// Write sets a step status.
func (r *Repository) Write(ctx context.Context, step string, status model.StepStatus) error {
	if err := status.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == nil {
		r.status = model.DefaultStatusRecord()
	}
	r.status[step] = status
	r.logger.Debugf("Step %s status set to %s", step, status)

	return nil
}

// CreateRun stores a new run.
func (r *Repository) CreateRun(ctx context.Context, run model.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if run.ID == "" {
		return fmt.Errorf("run id is required: %w", model.ErrNotValid)
	}
	if _, ok := r.runs[run.ID]; ok {
		return fmt.Errorf("run %s: %w", run.ID, model.ErrAlreadyExists)
	}

	r.runs[run.ID] = run

	return nil
}

// CompleteRun updates an existing run with its final state.
func (r *Repository) CompleteRun(ctx context.Context, run model.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.runs[run.ID]; !ok {
		return fmt.Errorf("run %s: %w", run.ID, model.ErrNotFound)
	}

	r.runs[run.ID] = run

	return nil
}

// ListRuns returns the runs of a step, newest first.
func (r *Repository) ListRuns(ctx context.Context, step string, limit int) ([]model.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runs := []model.Run{}
	for _, run := range r.runs {
		if run.Step == step {
			runs = append(runs, run)
		}
	}

	// ULIDs sort by creation time.
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID > runs[j].ID })

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	return runs, nil
}
