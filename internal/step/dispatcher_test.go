package step_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sathwikvintha/release-automation/internal/log"
	"github.com/sathwikvintha/release-automation/internal/logsink"
	"github.com/sathwikvintha/release-automation/internal/model"
	"github.com/sathwikvintha/release-automation/internal/step"
	"github.com/sathwikvintha/release-automation/internal/storage/memory"
	"github.com/sathwikvintha/release-automation/internal/storage/storagemock"
)

// transitionRepo records every status write on top of the memory repository.
type transitionRepo struct {
	*memory.Repository
	mu     sync.Mutex
	writes map[string][]model.StepStatus
}

func (r *transitionRepo) Write(ctx context.Context, s string, status model.StepStatus) error {
	r.mu.Lock()
	r.writes[s] = append(r.writes[s], status)
	r.mu.Unlock()
	return r.Repository.Write(ctx, s, status)
}

func (r *transitionRepo) Transitions(s string) []model.StepStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.StepStatus{}, r.writes[s]...)
}

type testDispatcher struct {
	d     *step.Dispatcher
	repo  *transitionRepo
	sinks *logsink.Manager
}

// newTestDispatcher returns a dispatcher, its completion loop is not started.
func newTestDispatcher(t *testing.T, reg *step.Registry, modify func(*step.DispatcherConfig)) testDispatcher {
	t.Helper()

	mem, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)
	repo := &transitionRepo{Repository: mem, writes: map[string][]model.StepStatus{}}
	require.NoError(t, repo.Initialize(context.TODO()))

	sinks, err := logsink.NewManager(t.TempDir(), 0)
	require.NoError(t, err)

	cfg := step.DispatcherConfig{
		Registry:         reg,
		StatusRepository: repo,
		RunRepository:    mem,
		Sinks:            sinks,
		Logger:           log.Noop,
	}
	if modify != nil {
		modify(&cfg)
	}

	d, err := step.NewDispatcher(cfg)
	require.NoError(t, err)

	return testDispatcher{d: d, repo: repo, sinks: sinks}
}

func startDispatcher(t *testing.T, d *step.Dispatcher) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitFuture(t *testing.T, f *step.Future) model.StepStatus {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	status, err := f.Wait(ctx)
	require.NoError(t, err)
	return status
}

func newFuncRegistry(t *testing.T, steps map[string]step.Strategy) *step.Registry {
	t.Helper()

	reg, err := step.NewRegistry(func(name string) step.Definition {
		return step.Definition{Strategy: strategyFunc(func(ctx context.Context, _ model.StepInput, out step.Output) model.ExecutionResult {
			_ = out.WriteLine("fallback " + name)
			return model.ExecutionResult{}
		})}
	})
	require.NoError(t, err)
	for name, s := range steps {
		require.NoError(t, reg.Register(step.Definition{Name: name, Strategy: s}))
	}
	return reg
}

func TestDispatcherDispatch(t *testing.T) {
	tests := map[string]struct {
		step           string
		inputs         model.StepInput
		runner         *fakeRunner
		dialer         *fakeDialer
		expStatus      model.StepStatus
		expLogContains []string
		expCommands    int
	}{
		"A report with a successful process should succeed with a non empty log.": {
			step: model.StepReport,
			inputs: model.StepInput{
				"jsonFile":      "r1.json",
				"title":         "T",
				"release":       "26.1",
				"subtitle":      "S",
				"versionNumber": "1.0",
				"versionDate":   "2024-01-01",
			},
			runner:         &fakeRunner{output: "Document generated\n"},
			expStatus:      model.StepStatusSuccess,
			expLogContains: []string{"Document generated"},
			expCommands:    1,
		},

		"A local step with a failing process should fail.": {
			step:           model.StepCommit,
			runner:         &fakeRunner{output: "fatal: not a git repository\n", exitCode: 128},
			expStatus:      model.StepStatusFailed,
			expLogContains: []string{"fatal: not a git repository"},
			expCommands:    1,
		},

		"A zip without inputs should fail without spawning a process.": {
			step:           model.StepZip,
			inputs:         model.StepInput{},
			runner:         &fakeRunner{},
			expStatus:      model.StepStatusFailed,
			expLogContains: []string{"Missing releaseVersion or baseDir"},
		},

		"An email without inputs should fail without spawning a process.": {
			step:           model.StepEmail,
			runner:         &fakeRunner{},
			expStatus:      model.StepStatusFailed,
			expLogContains: []string{"Missing releaseVersion or baseFolder"},
		},

		"A remote step that can't connect should fail with an error line.": {
			step: model.StepSecurity,
			inputs: model.StepInput{
				"RemoteAppName":        "orm",
				"RemoteReleaseVersion": "R26",
				"username":             "u",
				"password":             "p",
			},
			runner:         &fakeRunner{},
			dialer:         &fakeDialer{dialErr: errTest},
			expStatus:      model.StepStatusFailed,
			expLogContains: []string{"Connecting to server...", "ERROR: whatever"},
		},

		"An unknown step should run the pipeline script.": {
			step:        "attach",
			runner:      &fakeRunner{output: "attached\n"},
			expStatus:   model.StepStatusSuccess,
			expCommands: 1,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			dialer := test.dialer
			if dialer == nil {
				dialer = &fakeDialer{}
			}
			reg := newTestPipeline(t, t.TempDir(), test.runner, dialer)
			td := newTestDispatcher(t, reg, nil)

			f, err := td.d.Dispatch(context.TODO(), test.step, test.inputs)
			require.NoError(err)

			// Nothing is recorded until the completion loop runs.
			rec, err := td.repo.Read(context.TODO())
			require.NoError(err)
			assert.Equal(model.StepStatusRunning, rec[test.step])
			assert.Equal(model.StepStatusRunning, f.Status())

			startDispatcher(t, td.d)
			status := waitFuture(t, f)

			assert.Equal(test.expStatus, status)
			assert.Equal([]model.StepStatus{model.StepStatusRunning, test.expStatus}, td.repo.Transitions(test.step))
			assert.Len(test.runner.Commands(), test.expCommands)

			rec, err = td.repo.Read(context.TODO())
			require.NoError(err)
			assert.Equal(test.expStatus, rec[test.step])

			logs, err := td.sinks.Read(reg.SinkFor(test.step))
			require.NoError(err)
			assert.NotEmpty(logs)
			for _, exp := range test.expLogContains {
				assert.Contains(logs, exp)
			}

			runs, err := td.repo.ListRuns(context.TODO(), test.step, 0)
			require.NoError(err)
			require.Len(runs, 1)
			assert.Equal(f.ID(), runs[0].ID)
			assert.Equal(test.expStatus, runs[0].Status)
			assert.NotNil(runs[0].FinishedAt)
		})
	}
}

func TestDispatcherInvalidStep(t *testing.T) {
	td := newTestDispatcher(t, newFuncRegistry(t, nil), nil)

	_, err := td.d.Dispatch(context.TODO(), "../etc/passwd", nil)
	assert.ErrorIs(t, err, model.ErrNotValid)
	assert.Empty(t, td.repo.Transitions("../etc/passwd"))
}

func TestDispatcherConcurrentSameStep(t *testing.T) {
	tests := map[string]struct {
		allowConcurrent bool
		expErr          error
	}{
		"A running step should not be dispatched again.": {
			expErr: model.ErrStepRunning,
		},

		"A running step should be dispatched again when concurrency is allowed.": {
			allowConcurrent: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			release := make(chan struct{})
			blocking := strategyFunc(func(ctx context.Context, _ model.StepInput, out step.Output) model.ExecutionResult {
				<-release
				return model.ExecutionResult{}
			})
			td := newTestDispatcher(t, newFuncRegistry(t, map[string]step.Strategy{"build": blocking}), func(c *step.DispatcherConfig) {
				c.AllowConcurrent = test.allowConcurrent
			})
			startDispatcher(t, td.d)

			f1, err := td.d.Dispatch(context.TODO(), "build", nil)
			require.NoError(err)
			assert.True(td.d.Running("build"))

			f2, err := td.d.Dispatch(context.TODO(), "build", nil)
			if test.expErr != nil {
				assert.ErrorIs(err, test.expErr)
			} else {
				require.NoError(err)
			}

			close(release)
			assert.Equal(model.StepStatusSuccess, waitFuture(t, f1))
			if f2 != nil {
				assert.Equal(model.StepStatusSuccess, waitFuture(t, f2))
			}
			td.d.Wait()
			assert.False(td.d.Running("build"))

			// Once finished it can be dispatched again.
			f3, err := td.d.Dispatch(context.TODO(), "build", nil)
			require.NoError(err)
			assert.Equal(model.StepStatusSuccess, waitFuture(t, f3))
		})
	}
}

func TestDispatcherStrategyFailures(t *testing.T) {
	tests := map[string]struct {
		strategy       step.Strategy
		timeout        time.Duration
		expLogContains string
	}{
		"A panicking strategy should fail the step.": {
			strategy: strategyFunc(func(context.Context, model.StepInput, step.Output) model.ExecutionResult {
				panic("boom")
			}),
			expLogContains: "ERROR: step panicked: boom",
		},

		"A strategy exceeding the timeout should fail the step.": {
			strategy: strategyFunc(func(ctx context.Context, _ model.StepInput, _ step.Output) model.ExecutionResult {
				<-ctx.Done()
				return model.ExecutionResult{}
			}),
			timeout:        10 * time.Millisecond,
			expLogContains: "ERROR: step timed out after 10ms",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			td := newTestDispatcher(t, newFuncRegistry(t, map[string]step.Strategy{"build": test.strategy}), func(c *step.DispatcherConfig) {
				c.StepTimeout = test.timeout
			})
			startDispatcher(t, td.d)

			f, err := td.d.Dispatch(context.TODO(), "build", nil)
			require.NoError(err)
			assert.Equal(model.StepStatusFailed, waitFuture(t, f))

			logs, err := td.sinks.Read("build")
			require.NoError(err)
			assert.Contains(logs, test.expLogContains)
		})
	}
}

func TestDispatcherStatusWriteError(t *testing.T) {
	require := require.New(t)

	mrepo := storagemock.NewMockStatusRepository(t)
	mrepo.On("Write", mock.Anything, "build", model.StepStatusRunning).Once().Return(errTest)

	sinks, err := logsink.NewManager(t.TempDir(), 0)
	require.NoError(err)
	d, err := step.NewDispatcher(step.DispatcherConfig{
		Registry:         newFuncRegistry(t, nil),
		StatusRepository: mrepo,
		Sinks:            sinks,
	})
	require.NoError(err)

	_, err = d.Dispatch(context.TODO(), "build", nil)
	assert.ErrorIs(t, err, errTest)
	assert.False(t, d.Running("build"))
}

func TestDispatcherShutdown(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	started := make(chan struct{})
	blocking := strategyFunc(func(ctx context.Context, _ model.StepInput, out step.Output) model.ExecutionResult {
		close(started)
		<-ctx.Done()
		return model.ExecutionResult{ExitCode: -1, Err: ctx.Err()}
	})
	td := newTestDispatcher(t, newFuncRegistry(t, map[string]step.Strategy{"build": blocking}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = td.d.Run(ctx)
		close(done)
	}()

	f, err := td.d.Dispatch(context.TODO(), "build", nil)
	require.NoError(err)
	<-started

	cancel()
	<-done

	assert.Equal(model.StepStatusFailed, f.Status())
	rec, err := td.repo.Read(context.TODO())
	require.NoError(err)
	assert.Equal(model.StepStatusFailed, rec["build"])

	_, err = td.d.Dispatch(context.TODO(), "build", nil)
	assert.ErrorIs(err, step.ErrDispatcherClosed)
}

func TestDispatcherConfig(t *testing.T) {
	sinks, err := logsink.NewManager(t.TempDir(), 0)
	require.NoError(t, err)
	mem, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)
	reg := newFuncRegistry(t, nil)

	tests := map[string]struct {
		cfg step.DispatcherConfig
	}{
		"Missing registry.":      {cfg: step.DispatcherConfig{StatusRepository: mem, Sinks: sinks}},
		"Missing status store.":  {cfg: step.DispatcherConfig{Registry: reg, Sinks: sinks}},
		"Missing sinks.":         {cfg: step.DispatcherConfig{Registry: reg, StatusRepository: mem}},
		"Negative step timeout.": {cfg: step.DispatcherConfig{Registry: reg, StatusRepository: mem, Sinks: sinks, StepTimeout: -1}},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := step.NewDispatcher(test.cfg)
			assert.Error(t, err)
		})
	}
}
