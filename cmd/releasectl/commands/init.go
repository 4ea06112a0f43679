package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/sathwikvintha/release-automation/internal/app/initialize"
)

type InitCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand
}

// NewInitCommand returns the init command.
func NewInitCommand(rootCmd *RootCommand, app *kingpin.Application) *InitCommand {
	c := &InitCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("init", "Reset every pipeline step to IDLE.")

	return c
}

func (c InitCommand) Name() string { return c.Cmd.FullCommand() }

func (c InitCommand) Run(ctx context.Context) error {
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

	svc, err := initialize.NewService(initialize.ServiceConfig{
		Repository: d.statusRepo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	if err := svc.Run(ctx); err != nil {
		return err
	}

	return c.rootCmd.newPrinter(formatTable).PrintMessage("Pipeline status initialized")
}
