package step

import (
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/sathwikvintha/release-automation/internal/logsink"
	"github.com/sathwikvintha/release-automation/internal/model"
)

// Definition is how a step runs and where its output goes.
type Definition struct {
	Name     string
	Strategy Strategy
	// Sink is the log the step writes to, several steps may share one.
	Sink string
	Mode logsink.Mode
}

func (d Definition) validate() error {
	if err := model.ValidateStepName(d.Name); err != nil {
		return err
	}
	if d.Strategy == nil {
		return fmt.Errorf("step %q strategy is required: %w", d.Name, model.ErrNotValid)
	}
	if err := model.ValidateStepName(d.Sink); err != nil {
		return fmt.Errorf("step %q sink: %w", d.Name, err)
	}
	return nil
}

// Registry maps step names to their definitions. Unknown names resolve through
// the fallback.
type Registry struct {
	steps    map[string]Definition
	fallback func(name string) Definition
	mu       sync.RWMutex
}

// NewRegistry returns an empty registry, fallback is required.
func NewRegistry(fallback func(name string) Definition) (*Registry, error) {
	if fallback == nil {
		return nil, fmt.Errorf("fallback is required: %w", model.ErrNotValid)
	}

	return &Registry{
		steps:    map[string]Definition{},
		fallback: fallback,
	}, nil
}

// Register adds a step definition.
func (r *Registry) Register(d Definition) error {
	if d.Sink == "" {
		d.Sink = d.Name
	}
	if err := d.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.steps[d.Name]; ok {
		return fmt.Errorf("step %q: %w", d.Name, model.ErrAlreadyExists)
	}
	r.steps[d.Name] = d

	return nil
}

// Resolve returns the definition of a step.
func (r *Registry) Resolve(name string) Definition {
	r.mu.RLock()
	d, ok := r.steps[name]
	r.mu.RUnlock()
	if ok {
		return d
	}

	d = r.fallback(name)
	d.Name = name
	if d.Sink == "" {
		d.Sink = name
	}
	return d
}

// SinkFor returns the log sink name of a step.
func (r *Registry) SinkFor(name string) string {
	return r.Resolve(name).Sink
}

// Steps returns the registered step names sorted.
func (r *Registry) Steps() []string {
	r.mu.RLock()
	names := lo.Keys(r.steps)
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}
