package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"k8s.io/client-go/util/homedir"

	"github.com/sathwikvintha/release-automation/internal/conventions"
	"github.com/sathwikvintha/release-automation/internal/logsink"
	"github.com/sathwikvintha/release-automation/internal/model"
	"github.com/sathwikvintha/release-automation/internal/ssh"
	"github.com/sathwikvintha/release-automation/internal/step"
	"github.com/sathwikvintha/release-automation/internal/storage"
	"github.com/sathwikvintha/release-automation/internal/storage/file"
	storageio "github.com/sathwikvintha/release-automation/internal/storage/io"
	"github.com/sathwikvintha/release-automation/internal/storage/sqlite"
)

// loadConfig returns the pipeline configuration: flags over the config file
// over the defaults.
func (r *RootCommand) loadConfig(ctx context.Context) (model.PipelineConfig, error) {
	dataDir := r.DataDir
	if dataDir == "" {
		dataDir = filepath.Join(homedir.HomeDir(), conventions.DefaultDataDir)
	}

	cfgPath := r.ConfigPath
	explicit := cfgPath != ""
	if !explicit {
		cfgPath = conventions.ConfigFilePath(dataDir)
	}

	var cfg model.PipelineConfig
	absPath, err := filepath.Abs(cfgPath)
	if err != nil {
		return cfg, fmt.Errorf("invalid config path: %w", err)
	}

	repo := storageio.NewConfigYAMLRepository(os.DirFS(filepath.Dir(absPath)))
	cfg, err = repo.GetConfig(ctx, filepath.Base(absPath))
	switch {
	case err == nil:
		r.Logger.Debugf("Config loaded from %s", absPath)
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		cfg = model.PipelineConfig{}
	default:
		return cfg, fmt.Errorf("could not load config: %w", err)
	}

	if r.DataDir != "" || cfg.DataDir == "" {
		cfg.DataDir = dataDir
	}
	if r.ProjectRoot != "" {
		cfg.ProjectRoot = r.ProjectRoot
	}
	cfg.Defaults()

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// deps are the shared components of the commands.
type deps struct {
	cfg        model.PipelineConfig
	statusRepo storage.StatusRepository
	runRepo    storage.RunRepository
	sinks      *logsink.Manager
	closers    []func() error
}

// Close releases every opened resource.
func (d *deps) Close() error {
	var errs *multierror.Error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// newDeps opens the stores. The run history always lives in SQLite, the status
// record in the selected backend.
func (r *RootCommand) newDeps(ctx context.Context) (*deps, error) {
	cfg, err := r.loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create data dir: %w", err)
	}

	d := &deps{cfg: cfg}

	db, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: conventions.DBPath(cfg.DataDir),
		Logger: r.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create sqlite repository: %w", err)
	}
	d.closers = append(d.closers, db.Close)
	d.runRepo = db

	switch r.StatusBackend {
	case StatusBackendSQLite:
		d.statusRepo = db
	default:
		repo, err := file.NewRepository(file.RepositoryConfig{
			Path:   conventions.StatusFilePath(cfg.DataDir),
			Logger: r.Logger,
		})
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("could not create file repository: %w", err)
		}
		d.statusRepo = repo
	}

	d.sinks, err = logsink.NewManager(conventions.LogsPath(cfg.DataDir), cfg.Logs.MaxBytes)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("could not create log sinks: %w", err)
	}

	return d, nil
}

// newRegistry returns the pipeline step registry.
func (r *RootCommand) newRegistry(cfg model.PipelineConfig) (*step.Registry, error) {
	var key []byte
	if cfg.Remote.PrivateKeyPath != "" {
		k, err := ssh.ReadPrivateKey(cfg.Remote.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("could not load remote private key: %w", err)
		}
		key = k
	}

	reg, err := step.NewPipelineRegistry(step.PipelineConfig{
		Config:     cfg,
		PrivateKey: key,
		Logger:     r.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create step registry: %w", err)
	}

	return reg, nil
}

// newDispatcher returns a dispatcher over the shared components.
func (r *RootCommand) newDispatcher(d *deps, reg *step.Registry) (*step.Dispatcher, error) {
	disp, err := step.NewDispatcher(step.DispatcherConfig{
		Registry:         reg,
		StatusRepository: d.statusRepo,
		RunRepository:    d.runRepo,
		Sinks:            d.sinks,
		AllowConcurrent:  d.cfg.Dispatch.AllowConcurrent,
		StepTimeout:      d.cfg.Dispatch.StepTimeout,
		Logger:           r.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create dispatcher: %w", err)
	}

	return disp, nil
}
