package printer

import "github.com/sathwikvintha/release-automation/internal/model"

// Printer knows how to print pipeline information in different formats.
type Printer interface {
	PrintStatus(steps []model.StepState) error
	PrintRuns(runs []model.Run) error
	PrintRun(run model.Run) error
	PrintMessage(msg string) error
}
