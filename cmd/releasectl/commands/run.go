package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/sathwikvintha/release-automation/internal/app/history"
	"github.com/sathwikvintha/release-automation/internal/app/runstep"
	"github.com/sathwikvintha/release-automation/internal/logsink"
	"github.com/sathwikvintha/release-automation/internal/model"
	"github.com/sathwikvintha/release-automation/internal/utils/input"
)

const followInterval = 250 * time.Millisecond

type RunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	step       string
	inputs     []string
	inputsFile string
	follow     bool
	format     string
}

// NewRunCommand returns the run command.
func NewRunCommand(rootCmd *RootCommand, app *kingpin.Application) *RunCommand {
	c := &RunCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("run", "Run a pipeline step and wait for it.")
	c.Cmd.Arg("step", "Step name (angular, incrementals, commit, report, zip, email, security, staas-submit, staas-status, staas-download...).").Required().StringVar(&c.step)
	c.Cmd.Flag("input", "Step input in KEY=VALUE format, a bare KEY is read from the environment (repeatable).").Short('i').StringsVar(&c.inputs)
	c.Cmd.Flag("inputs-file", "YAML or JSON file with the step inputs, flag inputs override it.").StringVar(&c.inputsFile)
	c.Cmd.Flag("follow", "Stream the step log to stderr while it runs.").Short('f').BoolVar(&c.follow)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c RunCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	inputs, err := loadInputs(c.inputsFile, c.inputs)
	if err != nil {
		return err
	}

	d, err := c.rootCmd.newDeps(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Warningf("Could not close stores: %s", err)
		}
	}()

	reg, err := c.rootCmd.newRegistry(d.cfg)
	if err != nil {
		return err
	}

	disp, err := c.rootCmd.newDispatcher(d, reg)
	if err != nil {
		return err
	}

	// The completion loop stops with the command, cancelling the step if it's still running.
	dispCtx, dispCancel := context.WithCancel(ctx)
	defer dispCancel()
	dispDone := make(chan struct{})
	go func() {
		defer close(dispDone)
		_ = disp.Run(dispCtx)
	}()

	runSvc, err := runstep.NewService(runstep.ServiceConfig{Dispatcher: disp, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	resp, err := runSvc.Run(ctx, runstep.Request{Step: c.step, Inputs: inputs})
	if err != nil {
		return err
	}

	if c.follow {
		followLog(ctx, d.sinks, reg.SinkFor(c.step), resp.Future.Done(), c.rootCmd.Stderr)
	}

	<-resp.Future.Done()
	dispCancel()
	<-dispDone
	status := resp.Future.Status()

	historySvc, err := history.NewService(history.ServiceConfig{Repository: d.runRepo, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	run, err := findRun(context.Background(), historySvc, c.step, resp.RunID)
	if err != nil {
		return err
	}

	if err := c.rootCmd.newPrinter(c.format).PrintRun(run); err != nil {
		return fmt.Errorf("could not print run: %w", err)
	}

	if status != model.StepStatusSuccess {
		return fmt.Errorf("step %q finished with status %s", c.step, status)
	}

	return nil
}

// loadInputs merges the inputs file with the flag inputs, flags win.
func loadInputs(file string, specs []string) (model.StepInput, error) {
	base := map[string]string{}
	if file != "" {
		m, err := input.LoadFile(file)
		if err != nil {
			return nil, fmt.Errorf("could not load inputs file: %w", err)
		}
		base = m
	}

	flags, err := input.ParseSpecs(specs)
	if err != nil {
		return nil, fmt.Errorf("invalid inputs: %w", err)
	}

	return model.StepInput(input.MergeMaps(base, flags)), nil
}

// followLog copies the new sink content to w until done is closed.
func followLog(ctx context.Context, sinks *logsink.Manager, sink string, done <-chan struct{}, w io.Writer) {
	var printed int

	flush := func() {
		content, err := sinks.Read(sink)
		if err != nil || len(content) < printed {
			return
		}
		_, _ = io.WriteString(w, content[printed:])
		printed = len(content)
	}

	t := time.NewTicker(followInterval)
	defer t.Stop()

	for {
		select {
		case <-done:
			flush()
			return
		case <-ctx.Done():
			return
		case <-t.C:
			flush()
		}
	}
}

// findRun returns the history entry of a run.
func findRun(ctx context.Context, svc *history.Service, step, id string) (model.Run, error) {
	runs, err := svc.Run(ctx, history.Request{Step: step})
	if err != nil {
		return model.Run{}, fmt.Errorf("could not list runs: %w", err)
	}

	for _, r := range runs {
		if r.ID == id {
			return r, nil
		}
	}

	return model.Run{}, fmt.Errorf("run %s: %w", id, model.ErrNotFound)
}
