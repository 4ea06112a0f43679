package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/sathwikvintha/release-automation/internal/log"
	"github.com/sathwikvintha/release-automation/internal/model"
)

// RepositoryConfig is the configuration for the JSON file status repository.
type RepositoryConfig struct {
	Path   string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Path == "" {
		return fmt.Errorf("path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.File"})
	return nil
}

// Repository is a storage.StatusRepository that keeps the whole record as a
// single JSON object on disk. Every read loads the full file and every write
// rewrites it.
type Repository struct {
	path   string
	mu     sync.Mutex
	logger log.Logger
}

// NewRepository creates a new file repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		path:   cfg.Path,
		logger: cfg.Logger,
	}, nil
}

// Initialize overwrites the record with every known step IDLE.
func (r *Repository) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.save(model.DefaultStatusRecord()); err != nil {
		return err
	}
	r.logger.Debugf("Initialized status record at %s", r.path)

	return nil
}

// Read loads the record from disk.
func (r *Repository) Read(ctx context.Context) (model.StatusRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.load()
}

// Write sets a step status. The read-modify-write cycle is serialized so
// concurrent writers in the same process never lose updates.
func (r *Repository) Write(ctx context.Context, step string, status model.StepStatus) error {
	if err := status.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, err := r.load()
	if err != nil {
		return err
	}
	record[step] = status

	if err := r.save(record); err != nil {
		return err
	}
	r.logger.Debugf("Step %s status set to %s", step, status)

	return nil
}

func (r *Repository) load() (model.StatusRecord, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.DefaultStatusRecord(), nil
		}
		return nil, fmt.Errorf("could not read status file: %w", err)
	}

	record := model.StatusRecord{}
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("could not decode status file %s: %w", r.path, err)
	}

	return record, nil
}

// save writes to a temporary file and renames it so readers never see a partial record.
func (r *Repository) save(record model.StatusRecord) error {
	// Map keys are marshaled sorted, the output is stable for the same record.
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("could not encode status record: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("could not create status directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".pipeline_state-*.json")
	if err != nil {
		return fmt.Errorf("could not create temporary status file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("could not write status file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close status file: %w", err)
	}

	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("could not replace status file: %w", err)
	}

	return nil
}
