package runstep

import (
	"context"
	"fmt"

	"github.com/sathwikvintha/release-automation/internal/log"
	"github.com/sathwikvintha/release-automation/internal/model"
	"github.com/sathwikvintha/release-automation/internal/step"
)

// Dispatcher starts steps in the background.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, inputs model.StepInput) (*step.Future, error)
}

// ServiceConfig is the configuration for the run step service.
type ServiceConfig struct {
	Dispatcher Dispatcher
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Dispatcher == nil {
		return fmt.Errorf("dispatcher is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.RunStep"})

	return nil
}

// Service triggers pipeline steps.
type Service struct {
	dispatcher Dispatcher
	logger     log.Logger
}

// NewService creates a new run step service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		dispatcher: cfg.Dispatcher,
		logger:     cfg.Logger,
	}, nil
}

// Request are the parameters of a step trigger.
type Request struct {
	Step   string
	Inputs model.StepInput
}

func (r Request) validate() error {
	if err := model.ValidateStepName(r.Step); err != nil {
		return err
	}

	for k := range r.Inputs {
		if k == "" {
			return fmt.Errorf("input names can't be empty: %w", model.ErrNotValid)
		}
	}

	return nil
}

// Response is the accepted step run.
type Response struct {
	RunID string
	Step  string
	// Future resolves when the run has finished.
	Future *step.Future
}

// Run starts the step and returns without waiting for it. Execution failures
// are only visible in the status record and the step log.
func (s *Service) Run(ctx context.Context, req Request) (*Response, error) {
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	f, err := s.dispatcher.Dispatch(ctx, req.Step, req.Inputs)
	if err != nil {
		return nil, fmt.Errorf("could not dispatch step %q: %w", req.Step, err)
	}

	s.logger.Debugf("step %s started with run %s", req.Step, f.ID())

	return &Response{
		RunID:  f.ID(),
		Step:   req.Step,
		Future: f,
	}, nil
}
