package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/sathwikvintha/release-automation/internal/model"
)

// JSONPrinter prints pipeline information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// stepOutput represents a step in the status output.
type stepOutput struct {
	Step   string `json:"step"`
	Status string `json:"status"`
}

// runOutput represents a step run output.
type runOutput struct {
	ID         string     `json:"id"`
	Step       string     `json:"step"`
	Sink       string     `json:"sink"`
	Strategy   string     `json:"strategy"`
	Status     string     `json:"status"`
	ExitCode   int        `json:"exit_code"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintStatus prints the status of every step in JSON format.
func (j *JSONPrinter) PrintStatus(steps []model.StepState) error {
	items := make([]stepOutput, len(steps))
	for i, s := range steps {
		items[i] = stepOutput{Step: s.Step, Status: string(s.Status)}
	}

	return j.encode(items)
}

func newRunOutput(r model.Run) runOutput {
	output := runOutput{
		ID:        r.ID,
		Step:      r.Step,
		Sink:      r.Sink,
		Strategy:  r.Strategy,
		Status:    string(r.Status),
		ExitCode:  r.ExitCode,
		Error:     r.Error,
		StartedAt: r.StartedAt.UTC(),
	}

	if r.FinishedAt != nil {
		utcTime := r.FinishedAt.UTC()
		output.FinishedAt = &utcTime
	}

	return output
}

// PrintRuns prints step runs in JSON format.
func (j *JSONPrinter) PrintRuns(runs []model.Run) error {
	items := make([]runOutput, len(runs))
	for i, r := range runs {
		items[i] = newRunOutput(r)
	}

	return j.encode(items)
}

// PrintRun prints a single run in JSON format.
func (j *JSONPrinter) PrintRun(r model.Run) error {
	return j.encode(newRunOutput(r))
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}
