package model

import "time"

// Run is the history entry of a single step dispatch.
type Run struct {
	ID         string
	Step       string
	Sink       string
	Strategy   string
	Status     StepStatus
	ExitCode   int
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// ExecutionResult is the outcome of executing a step strategy.
type ExecutionResult struct {
	// ExitCode of the local process or remote command, -1 when it never ran.
	ExitCode int
	// Err is set when the execution could not complete (validation, transport...).
	Err error
}

// Status resolves the terminal step status of the result.
func (r ExecutionResult) Status() StepStatus {
	if r.Err != nil || r.ExitCode != 0 {
		return StepStatusFailed
	}
	return StepStatusSuccess
}
