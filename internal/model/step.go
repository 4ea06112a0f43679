package model

import (
	"fmt"
	"regexp"
)

// StepStatus represents the lifecycle state of a pipeline step.
type StepStatus string

const (
	StepStatusIdle    StepStatus = "IDLE"
	StepStatusRunning StepStatus = "RUNNING"
	StepStatusSuccess StepStatus = "SUCCESS"
	StepStatusFailed  StepStatus = "FAILED"
)

// IsTerminal returns true when the status can only be left by a new dispatch.
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusSuccess || s == StepStatusFailed
}

// Validate checks the status is one of the known literals.
func (s StepStatus) Validate() error {
	switch s {
	case StepStatusIdle, StepStatusRunning, StepStatusSuccess, StepStatusFailed:
		return nil
	}
	return fmt.Errorf("unknown step status %q: %w", s, ErrNotValid)
}

// Known pipeline steps.
const (
	StepAngular       = "angular"
	StepIncrementals  = "incrementals"
	StepCommit        = "commit"
	StepReport        = "report"
	StepZip           = "zip"
	StepEmail         = "email"
	StepSecurity      = "security"
	StepStaasSubmit   = "staas-submit"
	StepStaasStatus   = "staas-status"
	StepStaasDownload = "staas-download"
)

var knownSteps = []string{
	StepAngular,
	StepIncrementals,
	StepCommit,
	StepReport,
	StepZip,
	StepEmail,
	StepSecurity,
	StepStaasSubmit,
	StepStaasStatus,
	StepStaasDownload,
}

// KnownSteps returns the fixed step vocabulary in pipeline order.
func KnownSteps() []string {
	steps := make([]string, len(knownSteps))
	copy(steps, knownSteps)
	return steps
}

// Step names end up as log file names, so they are restricted to a safe charset.
var stepNameRegexp = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateStepName checks a step name can be dispatched.
func ValidateStepName(name string) error {
	if name == "" {
		return fmt.Errorf("step name is required: %w", ErrNotValid)
	}
	if name == "." || name == ".." || !stepNameRegexp.MatchString(name) {
		return fmt.Errorf("invalid step name %q: %w", name, ErrNotValid)
	}
	return nil
}

// StepState is the status of a single step.
type StepState struct {
	Step   string
	Status StepStatus
}

// StatusRecord maps step names to their latest status.
type StatusRecord map[string]StepStatus

// DefaultStatusRecord returns the record with every known step IDLE.
func DefaultStatusRecord() StatusRecord {
	r := make(StatusRecord, len(knownSteps))
	for _, s := range knownSteps {
		r[s] = StepStatusIdle
	}
	return r
}

// Clone returns a copy of the record.
func (r StatusRecord) Clone() StatusRecord {
	c := make(StatusRecord, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}
