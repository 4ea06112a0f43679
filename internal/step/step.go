// Package step runs release pipeline steps.
//
// A step name resolves through a Registry to a Definition: the Strategy that
// executes it and the log sink its output goes to. The Dispatcher runs
// definitions asynchronously, keeps the status record up to date and reports
// completion through a Future.
package step

import (
	"context"
	"fmt"
	"strings"

	"github.com/sathwikvintha/release-automation/internal/log"
	"github.com/sathwikvintha/release-automation/internal/model"
)

// Strategy kinds.
const (
	KindLocal     = "local"
	KindRemote    = "remote"
	KindValidated = "validated"
)

// Output receives the output of a running step line by line.
type Output interface {
	WriteLine(line string) error
	// Error writes the error as an "ERROR:" line.
	Error(err error) error
}

// Strategy executes a step. Execution problems are reported through the
// result, never as a panic or an error return.
type Strategy interface {
	Kind() string
	Execute(ctx context.Context, inputs model.StepInput, out Output) model.ExecutionResult
}

func printf(out Output, format string, args ...any) {
	_ = out.WriteLine(fmt.Sprintf(format, args...))
}

func failed(out Output, err error) model.ExecutionResult {
	_ = out.Error(err)
	return model.ExecutionResult{ExitCode: -1, Err: err}
}

// sinkWriter is the part of a log sink the dispatcher writes to.
type sinkWriter interface {
	WriteLine(line string) error
	Error(err error) error
}

// teeOutput writes every line to the step log first and then mirrors it to
// the application logger.
type teeOutput struct {
	sink   sinkWriter
	logger log.Logger
}

func (t teeOutput) WriteLine(line string) error {
	err := t.sink.WriteLine(line)
	if err != nil {
		t.logger.Warningf("Could not write step log: %s", err)
	}
	t.logger.Infof("%s", strings.TrimRight(line, "\r\n"))
	return err
}

func (t teeOutput) Error(e error) error {
	err := t.sink.Error(e)
	if err != nil {
		t.logger.Warningf("Could not write step log: %s", err)
	}
	t.logger.Errorf("%s", e)
	return err
}
