package step_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sathwikvintha/release-automation/internal/model"
	"github.com/sathwikvintha/release-automation/internal/step"
)

// recordOutput is an in memory step output.
type recordOutput struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordOutput) WriteLine(line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, strings.TrimRight(line, "\n"))
	return nil
}

func (r *recordOutput) Error(err error) error {
	return r.WriteLine(fmt.Sprintf("ERROR: %s", err))
}

func (r *recordOutput) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.lines...)
}

// fakeRunner records the started commands and replies with a canned process.
type fakeRunner struct {
	mu       sync.Mutex
	commands []step.Command
	output   string
	exitCode int
	startErr error
	waitErr  error
}

func (f *fakeRunner) Start(ctx context.Context, cmd step.Command) (step.Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	if f.startErr != nil {
		return nil, f.startErr
	}
	return fakeProcess{out: strings.NewReader(f.output), exitCode: f.exitCode, err: f.waitErr}, nil
}

func (f *fakeRunner) Commands() []step.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]step.Command{}, f.commands...)
}

type fakeProcess struct {
	out      io.Reader
	exitCode int
	err      error
}

func (p fakeProcess) Output() io.Reader  { return p.out }
func (p fakeProcess) Wait() (int, error) { return p.exitCode, p.err }

// fakeDialer opens fake remote sessions.
type fakeDialer struct {
	dialErr error
	session *fakeSession
	targets []step.RemoteTarget
}

func (f *fakeDialer) Dial(ctx context.Context, t step.RemoteTarget) (step.RemoteSession, error) {
	f.targets = append(f.targets, t)
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	return f.session, nil
}

type fakeSession struct {
	output   string
	exitCode int
	execErr  error
	copyErr  error
	commands []string
	copies   [][2]string
	closed   bool
	// lastOut is the writer of the last exec, to write output after it returned.
	lastOut io.Writer
}

func (f *fakeSession) Exec(ctx context.Context, command string, out io.Writer) (int, error) {
	f.commands = append(f.commands, command)
	f.lastOut = out
	if f.output != "" {
		// Written in two chunks to split a line.
		half := len(f.output) / 2
		_, _ = out.Write([]byte(f.output[:half]))
		_, _ = out.Write([]byte(f.output[half:]))
	}
	return f.exitCode, f.execErr
}

func (f *fakeSession) CopyFrom(ctx context.Context, src, dst string) error {
	f.copies = append(f.copies, [2]string{src, dst})
	return f.copyErr
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

// strategyFunc is a Strategy from a function.
type strategyFunc func(ctx context.Context, inputs model.StepInput, out step.Output) model.ExecutionResult

func (s strategyFunc) Kind() string { return "test" }
func (s strategyFunc) Execute(ctx context.Context, inputs model.StepInput, out step.Output) model.ExecutionResult {
	return s(ctx, inputs, out)
}

var errTest = errors.New("whatever")
