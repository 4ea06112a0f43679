package status

import (
	"context"
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/sathwikvintha/release-automation/internal/log"
	"github.com/sathwikvintha/release-automation/internal/model"
	"github.com/sathwikvintha/release-automation/internal/storage"
)

// ServiceConfig is the configuration for the status service.
type ServiceConfig struct {
	Repository storage.StatusRepository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Status"})

	return nil
}

// Service retrieves the pipeline status.
type Service struct {
	repo   storage.StatusRepository
	logger log.Logger
}

// NewService creates a new status service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Response is the pipeline status.
type Response struct {
	// Record is the persisted status record.
	Record model.StatusRecord
	// Steps are the record entries, known steps first in pipeline order and the
	// rest sorted by name.
	Steps []model.StepState
}

// Run returns the status of every step. It doesn't fail when the record can't
// be read, the dashboard keeps polling so the default record is returned.
func (s *Service) Run(ctx context.Context) (*Response, error) {
	record, err := s.repo.Read(ctx)
	if err != nil {
		s.logger.Warningf("could not read status record, using defaults: %s", err)
		record = model.DefaultStatusRecord()
	}

	known := model.KnownSteps()
	extra := lo.Without(lo.Keys(record), known...)
	sort.Strings(extra)

	steps := make([]model.StepState, 0, len(record))
	for _, name := range append(known, extra...) {
		st, ok := record[name]
		if !ok {
			continue
		}
		steps = append(steps, model.StepState{Step: name, Status: st})
	}

	return &Response{Record: record, Steps: steps}, nil
}
