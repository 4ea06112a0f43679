package initialize

import (
	"context"
	"fmt"

	"github.com/sathwikvintha/release-automation/internal/log"
	"github.com/sathwikvintha/release-automation/internal/storage"
)

// ServiceConfig is the configuration for the initialize service.
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Initialize"})

	return nil
}

// Service resets the pipeline status record.
type Service struct {
	repo   storage.StatusRepository
	logger log.Logger
}

// NewService creates a new initialize service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Run sets every known step to IDLE, steps outside the vocabulary are dropped.
func (s *Service) Run(ctx context.Context) error {
	if err := s.repo.Initialize(ctx); err != nil {
		return fmt.Errorf("could not initialize status record: %w", err)
	}

	s.logger.Infof("Pipeline status initialized")
	return nil
}
