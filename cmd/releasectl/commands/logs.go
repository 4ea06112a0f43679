package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/alecthomas/kingpin/v2"

	"github.com/sathwikvintha/release-automation/internal/app/logs"
)

type LogsCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	step string
}

// NewLogsCommand returns the logs command.
func NewLogsCommand(rootCmd *RootCommand, app *kingpin.Application) *LogsCommand {
	c := &LogsCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("logs", "Print the log of the last run of a step.")
	c.Cmd.Arg("step", "Step name.").Required().StringVar(&c.step)

	return c
}

func (c LogsCommand) Name() string { return c.Cmd.FullCommand() }

func (c LogsCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

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

	svc, err := logs.NewService(logs.ServiceConfig{
		Reader:   d.sinks,
		Resolver: reg,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	resp, err := svc.Run(ctx, logs.Request{Step: c.step})
	if err != nil {
		return fmt.Errorf("could not get logs: %w", err)
	}

	if _, err := io.WriteString(c.rootCmd.Stdout, resp.Logs); err != nil {
		return fmt.Errorf("could not print logs: %w", err)
	}

	return nil
}
