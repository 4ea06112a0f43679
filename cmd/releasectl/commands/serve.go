package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"

	"github.com/sathwikvintha/release-automation/internal/app/artifacts"
	"github.com/sathwikvintha/release-automation/internal/app/history"
	"github.com/sathwikvintha/release-automation/internal/app/initialize"
	"github.com/sathwikvintha/release-automation/internal/app/logs"
	"github.com/sathwikvintha/release-automation/internal/app/runstep"
	"github.com/sathwikvintha/release-automation/internal/app/status"
	"github.com/sathwikvintha/release-automation/internal/conventions"
	"github.com/sathwikvintha/release-automation/internal/server"
)

const serverShutdownTimeout = 15 * time.Second

type ServeCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	listenAddress string
	staticDir     string
	templatesDir  string
}

// NewServeCommand returns the serve command.
func NewServeCommand(rootCmd *RootCommand, app *kingpin.Application) *ServeCommand {
	c := &ServeCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("serve", "Serve the release dashboard API.")
	c.Cmd.Flag("listen-address", "Address the API listens on (default :8000).").StringVar(&c.listenAddress)
	c.Cmd.Flag("static-dir", "Directory served under /static.").StringVar(&c.staticDir)
	c.Cmd.Flag("templates-dir", "Directory with the dashboard.html and staas.html pages served at / and /staas.").StringVar(&c.templatesDir)

	return c
}

func (c ServeCommand) Name() string { return c.Cmd.FullCommand() }

func (c ServeCommand) Run(ctx context.Context) error {
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

	if c.listenAddress != "" {
		d.cfg.Server.ListenAddress = c.listenAddress
	}
	if c.staticDir != "" {
		d.cfg.Server.StaticDir = c.staticDir
	}
	if c.templatesDir != "" {
		d.cfg.Server.TemplatesDir = c.templatesDir
	}

	// Startup resets the status record like a fresh dashboard.
	initSvc, err := initialize.NewService(initialize.ServiceConfig{
		Repository: d.statusRepo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}
	if err := initSvc.Run(ctx); err != nil {
		return fmt.Errorf("could not initialize status: %w", err)
	}

	reg, err := c.rootCmd.newRegistry(d.cfg)
	if err != nil {
		return err
	}

	disp, err := c.rootCmd.newDispatcher(d, reg)
	if err != nil {
		return err
	}

	runSvc, err := runstep.NewService(runstep.ServiceConfig{Dispatcher: disp, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}
	statusSvc, err := status.NewService(status.ServiceConfig{Repository: d.statusRepo, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}
	logsSvc, err := logs.NewService(logs.ServiceConfig{Reader: d.sinks, Resolver: reg, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}
	historySvc, err := history.NewService(history.ServiceConfig{Repository: d.runRepo, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}
	artifactsSvc, err := artifacts.NewService(artifacts.ServiceConfig{
		JSONDir:   conventions.JSONFilesPath(d.cfg.ProjectRoot),
		OutputDir: conventions.ReportOutputPath(d.cfg.ProjectRoot),
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	srv, err := server.New(server.Config{
		RunStep:      runSvc,
		Status:       statusSvc,
		Logs:         logsSvc,
		History:      historySvc,
		Artifacts:    artifactsSvc,
		StaticDir:    d.cfg.Server.StaticDir,
		TemplatesDir: d.cfg.Server.TemplatesDir,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("could not create server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              d.cfg.Server.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var g run.Group

	// Step completions.
	{
		dispCtx, dispCancel := context.WithCancel(context.Background())
		g.Add(
			func() error {
				return disp.Run(dispCtx)
			},
			func(_ error) {
				dispCancel()
			},
		)
	}

	// HTTP API.
	{
		g.Add(
			func() error {
				logger.Infof("Listening on %s", httpServer.Addr)
				err := httpServer.ListenAndServe()
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			},
			func(_ error) {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					logger.Errorf("Could not shut down server: %s", err)
				}
			},
		)
	}

	// Command context.
	{
		stopCtx, stopCancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				<-stopCtx.Done()
				return nil
			},
			func(_ error) {
				stopCancel()
			},
		)
	}

	if err := g.Run(); err != nil {
		return err
	}

	disp.Wait()
	logger.Infof("Server stopped")

	return nil
}
