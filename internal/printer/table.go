package printer

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/sathwikvintha/release-automation/internal/model"
)

// TablePrinter prints pipeline information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintStatus prints the status of every step.
func (t *TablePrinter) PrintStatus(steps []model.StepState) error {
	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "STEP\tSTATUS")
	for _, s := range steps {
		fmt.Fprintf(tw, "%s\t%s\n", s.Step, s.Status)
	}

	return nil
}

// PrintRuns prints step runs in a table format.
func (t *TablePrinter) PrintRuns(runs []model.Run) error {
	if len(runs) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tSTATUS\tEXIT CODE\tSTARTED\tDURATION")
	for _, r := range runs {
		duration := "-"
		if r.FinishedAt != nil {
			duration = FormatDuration(r.FinishedAt.Sub(r.StartedAt))
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			r.ID,
			r.Status,
			r.ExitCode,
			TimeAgo(r.StartedAt),
			duration,
		)
	}

	return nil
}

// PrintRun prints the details of a single run.
func (t *TablePrinter) PrintRun(r model.Run) error {
	fmt.Fprintf(t.writer, "Run:        %s\n", r.ID)
	fmt.Fprintf(t.writer, "Step:       %s\n", r.Step)
	fmt.Fprintf(t.writer, "Status:     %s\n", r.Status)
	fmt.Fprintf(t.writer, "Exit code:  %d\n", r.ExitCode)
	fmt.Fprintf(t.writer, "Started:    %s\n", FormatTimestamp(r.StartedAt))

	if r.FinishedAt != nil {
		fmt.Fprintf(t.writer, "Finished:   %s\n", FormatTimestamp(*r.FinishedAt))
		fmt.Fprintf(t.writer, "Duration:   %s\n", FormatDuration(r.FinishedAt.Sub(r.StartedAt)))
	}

	if r.Error != "" {
		fmt.Fprintf(t.writer, "Error:      %s\n", r.Error)
	}

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}
