package logs

import (
	"context"
	"fmt"

	"github.com/sathwikvintha/release-automation/internal/log"
	"github.com/sathwikvintha/release-automation/internal/model"
)

// LogReader reads step logs by sink name.
type LogReader interface {
	Read(name string) (string, error)
}

// SinkResolver returns the log sink a step writes to.
type SinkResolver interface {
	SinkFor(step string) string
}

// ServiceConfig is the configuration for the logs service.
type ServiceConfig struct {
	Reader   LogReader
	Resolver SinkResolver
	Logger   log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Reader == nil {
		return fmt.Errorf("log reader is required")
	}

	if c.Resolver == nil {
		return fmt.Errorf("sink resolver is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Logs"})

	return nil
}

// Service returns step logs.
type Service struct {
	reader   LogReader
	resolver SinkResolver
	logger   log.Logger
}

// NewService creates a new logs service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		reader:   cfg.Reader,
		resolver: cfg.Resolver,
		logger:   cfg.Logger,
	}, nil
}

// Request are the logs request parameters.
type Request struct {
	Step string
}

// Response is a step log.
type Response struct {
	Step string
	// Sink is the log the step writes to, steps of the same family share it.
	Sink string
	// Logs is the full log content, empty when the step never ran.
	Logs string
}

// Run returns the current content of the step log.
func (s *Service) Run(ctx context.Context, req Request) (*Response, error) {
	if err := model.ValidateStepName(req.Step); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	sink := s.resolver.SinkFor(req.Step)
	data, err := s.reader.Read(sink)
	if err != nil {
		return nil, fmt.Errorf("could not read %s log: %w", sink, err)
	}

	s.logger.Debugf("read %d bytes from %s log", len(data), sink)

	return &Response{Step: req.Step, Sink: sink, Logs: data}, nil
}
