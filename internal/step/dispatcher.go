package step

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sathwikvintha/release-automation/internal/log"
	"github.com/sathwikvintha/release-automation/internal/logsink"
	"github.com/sathwikvintha/release-automation/internal/model"
	"github.com/sathwikvintha/release-automation/internal/storage"
)

// ErrDispatcherClosed is returned when dispatching after the dispatcher stopped.
var ErrDispatcherClosed = errors.New("dispatcher is closed")

// DispatcherConfig is the configuration of the Dispatcher.
type DispatcherConfig struct {
	Registry         *Registry
	StatusRepository storage.StatusRepository
	// RunRepository is optional, without it no run history is kept.
	RunRepository storage.RunRepository
	Sinks         *logsink.Manager
	// AllowConcurrent lets the same step be dispatched while it is running.
	AllowConcurrent bool
	// StepTimeout bounds every run, 0 means no timeout.
	StepTimeout time.Duration
	Logger      log.Logger
}

func (c *DispatcherConfig) defaults() error {
	if c.Registry == nil {
		return fmt.Errorf("registry is required")
	}

	if c.StatusRepository == nil {
		return fmt.Errorf("status repository is required")
	}

	if c.Sinks == nil {
		return fmt.Errorf("log sinks are required")
	}

	if c.StepTimeout < 0 {
		return fmt.Errorf("step timeout can't be negative")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "step.Dispatcher"})

	return nil
}

// Future is the pending outcome of a dispatched step.
type Future struct {
	id     string
	step   string
	done   chan struct{}
	status model.StepStatus
}

func newFuture(id, step string) *Future {
	return &Future{id: id, step: step, done: make(chan struct{}), status: model.StepStatusRunning}
}

// ID returns the run ID.
func (f *Future) ID() string { return f.id }

// Step returns the step name.
func (f *Future) Step() string { return f.step }

// Done is closed once the terminal status has been recorded.
func (f *Future) Done() <-chan struct{} { return f.done }

// Status returns the terminal status after Done is closed, RUNNING before.
func (f *Future) Status() model.StepStatus {
	select {
	case <-f.done:
		return f.status
	default:
		return model.StepStatusRunning
	}
}

// Wait blocks until the step finished or the context is done.
func (f *Future) Wait(ctx context.Context) (model.StepStatus, error) {
	select {
	case <-f.done:
		return f.status, nil
	case <-ctx.Done():
		return model.StepStatusRunning, ctx.Err()
	}
}

func (f *Future) resolve(s model.StepStatus) {
	f.status = s
	close(f.done)
}

type completion struct {
	run    model.Run
	result model.ExecutionResult
	future *Future
}

// Dispatcher runs steps asynchronously. Workers execute the strategies and a
// single completion loop records their outcome.
type Dispatcher struct {
	registry        *Registry
	statusRepo      storage.StatusRepository
	runRepo         storage.RunRepository
	sinks           *logsink.Manager
	allowConcurrent bool
	stepTimeout     time.Duration
	logger          log.Logger

	completions chan completion
	inflight    sync.WaitGroup
	execCtx     context.Context
	execCancel  context.CancelFunc

	mu      sync.Mutex
	running map[string]int
	closed  bool
}

// NewDispatcher returns a new Dispatcher. Run must be started for dispatched
// steps to complete.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		registry:        cfg.Registry,
		statusRepo:      cfg.StatusRepository,
		runRepo:         cfg.RunRepository,
		sinks:           cfg.Sinks,
		allowConcurrent: cfg.AllowConcurrent,
		stepTimeout:     cfg.StepTimeout,
		logger:          cfg.Logger,
		completions:     make(chan completion, 64),
		execCtx:         ctx,
		execCancel:      cancel,
		running:         map[string]int{},
	}, nil
}

// Dispatch marks the step RUNNING and starts it in the background. The returned
// error only reports a dispatch that was not accepted, execution failures are
// recorded as the FAILED status.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, inputs model.StepInput) (*Future, error) {
	if err := model.ValidateStepName(name); err != nil {
		return nil, err
	}

	def := d.registry.Resolve(name)

	if err := d.acquire(name); err != nil {
		return nil, err
	}

	if err := d.statusRepo.Write(ctx, name, model.StepStatusRunning); err != nil {
		d.release(name)
		return nil, fmt.Errorf("could not mark step %q running: %w", name, err)
	}

	run := model.Run{
		ID:        ulid.Make().String(),
		Step:      name,
		Sink:      def.Sink,
		Strategy:  def.Strategy.Kind(),
		Status:    model.StepStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	logger := d.logger.WithValues(log.Kv{"step": name, "run": run.ID})

	if d.runRepo != nil {
		if err := d.runRepo.CreateRun(ctx, run); err != nil {
			logger.Warningf("Could not store run: %s", err)
		}
	}

	// Inputs are copied so the caller can't change them while the step runs.
	in := make(model.StepInput, len(inputs))
	for k, v := range inputs {
		in[k] = v
	}

	f := newFuture(run.ID, name)
	go d.execute(def, run, in, f, logger)

	logger.Infof("Step %s dispatched", name)

	return f, nil
}

func (d *Dispatcher) acquire(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	if !d.allowConcurrent && d.running[name] > 0 {
		return fmt.Errorf("step %q: %w", name, model.ErrStepRunning)
	}

	d.running[name]++
	d.inflight.Add(1)

	return nil
}

func (d *Dispatcher) release(name string) {
	d.clearRunning(name)
	d.inflight.Done()
}

func (d *Dispatcher) clearRunning(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.running[name]--
	if d.running[name] <= 0 {
		delete(d.running, name)
	}
}

// Running returns true when the step has a run in progress.
func (d *Dispatcher) Running(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.running[name] > 0
}

func (d *Dispatcher) execute(def Definition, run model.Run, inputs model.StepInput, f *Future, logger log.Logger) {
	res := d.runStrategy(def, inputs, logger)
	d.completions <- completion{run: run, result: res, future: f}
}

func (d *Dispatcher) runStrategy(def Definition, inputs model.StepInput, logger log.Logger) (res model.ExecutionResult) {
	sink, err := d.sinks.Open(def.Sink, def.Mode)
	if err != nil {
		logger.Errorf("Could not open step log: %s", err)
		return model.ExecutionResult{ExitCode: -1, Err: err}
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warningf("Could not close step log: %s", err)
		}
	}()

	out := teeOutput{sink: sink, logger: logger}

	ctx := d.execCtx
	if d.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.stepTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			res = failed(out, fmt.Errorf("step panicked: %v", r))
		}
	}()

	res = def.Strategy.Execute(ctx, inputs, out)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res = failed(out, fmt.Errorf("step timed out after %s", d.stepTimeout))
	}

	return res
}

// Run is the completion loop, it records the outcome of every finished step.
// When the context is done the running steps are cancelled and the loop
// returns once all of them have been recorded.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case c := <-d.completions:
			d.complete(c)
		case <-ctx.Done():
			d.drain()
			return nil
		}
	}
}

func (d *Dispatcher) drain() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.execCancel()

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	for {
		select {
		case c := <-d.completions:
			d.complete(c)
		case <-done:
			return
		}
	}
}

// Wait blocks until every dispatched step has been recorded.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

func (d *Dispatcher) complete(c completion) {
	run := c.run
	status := c.result.Status()
	logger := d.logger.WithValues(log.Kv{"step": run.Step, "run": run.ID})

	// Recording must not be cut short by the shutdown of the caller context.
	ctx := context.Background()

	if err := d.statusRepo.Write(ctx, run.Step, status); err != nil {
		logger.Errorf("Could not store step status %s: %s", status, err)
	}

	if d.runRepo != nil {
		finished := time.Now().UTC()
		run.Status = status
		run.ExitCode = c.result.ExitCode
		run.FinishedAt = &finished
		if c.result.Err != nil {
			run.Error = c.result.Err.Error()
		}
		if err := d.runRepo.CompleteRun(ctx, run); err != nil {
			logger.Warningf("Could not store run: %s", err)
		}
	}

	logger.Infof("Step %s finished with status %s (exit code %d)", run.Step, status, c.result.ExitCode)

	d.clearRunning(run.Step)
	c.future.resolve(status)
	d.inflight.Done()
}
