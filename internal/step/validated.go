package step

import (
	"context"
	"fmt"
	"strings"

	"github.com/sathwikvintha/release-automation/internal/model"
)

// Validated fails fast when a required input is missing, the wrapped strategy
// is only executed with a complete set of inputs.
type Validated struct {
	Required []string
	// Message is written to the step log when an input is missing.
	Message string
	Next    Strategy
}

// Kind returns the strategy kind.
func (v Validated) Kind() string { return KindValidated }

// Execute checks the required inputs and runs the wrapped strategy.
func (v Validated) Execute(ctx context.Context, inputs model.StepInput, out Output) model.ExecutionResult {
	missing := inputs.Missing(v.Required...)
	if len(missing) > 0 {
		msg := v.Message
		if msg == "" {
			msg = fmt.Sprintf("Missing %s", strings.Join(missing, ", "))
		}
		_ = out.WriteLine(msg)
		return model.ExecutionResult{
			ExitCode: -1,
			Err:      fmt.Errorf("missing required inputs %s: %w", strings.Join(missing, ", "), model.ErrNotValid),
		}
	}

	return v.Next.Execute(ctx, inputs, out)
}
