package history

import (
	"context"
	"fmt"

	"github.com/sathwikvintha/release-automation/internal/log"
	"github.com/sathwikvintha/release-automation/internal/model"
	"github.com/sathwikvintha/release-automation/internal/storage"
)

// DefaultLimit is the number of runs returned when no limit is requested.
const DefaultLimit = 20

// ServiceConfig is the configuration for the history service.
type ServiceConfig struct {
	Repository storage.RunRepository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.History"})

	return nil
}

// Service lists the runs of a step.
type Service struct {
	repo   storage.RunRepository
	logger log.Logger
}

// NewService creates a new history service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the history request parameters.
type Request struct {
	Step string
	// Limit is the maximum number of runs, 0 uses DefaultLimit and a negative
	// value returns every run.
	Limit int
}

// Run returns the runs of a step, newest first.
func (s *Service) Run(ctx context.Context, req Request) ([]model.Run, error) {
	if err := model.ValidateStepName(req.Step); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	limit := req.Limit
	switch {
	case limit == 0:
		limit = DefaultLimit
	case limit < 0:
		limit = 0
	}

	runs, err := s.repo.ListRuns(ctx, req.Step, limit)
	if err != nil {
		return nil, fmt.Errorf("could not list runs: %w", err)
	}

	s.logger.Debugf("found %d runs of %s", len(runs), req.Step)
	return runs, nil
}
