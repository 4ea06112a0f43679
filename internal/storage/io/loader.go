package io

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sathwikvintha/release-automation/internal/model"
)

// ConfigYAMLRepository loads the pipeline configuration from YAML files.
type ConfigYAMLRepository struct {
	fs fs.FS
}

// NewConfigYAMLRepository creates a new YAML config repository.
func NewConfigYAMLRepository(filesystem fs.FS) *ConfigYAMLRepository {
	return &ConfigYAMLRepository{fs: filesystem}
}

// GetConfig loads a pipeline configuration from a YAML file and returns the domain model.
// Unset values are left empty, callers apply model.PipelineConfig.Defaults.
func (r *ConfigYAMLRepository) GetConfig(ctx context.Context, path string) (model.PipelineConfig, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return model.PipelineConfig{}, fmt.Errorf("reading config file: %w", err)
	}

	if ctx.Err() != nil {
		return model.PipelineConfig{}, ctx.Err()
	}

	var cfg PipelineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return model.PipelineConfig{}, fmt.Errorf("parsing YAML: %w", err)
	}

	m, err := cfg.toModel()
	if err != nil {
		return model.PipelineConfig{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return m, nil
}

// PipelineConfig represents the YAML structure for the pipeline configuration.
type PipelineConfig struct {
	ProjectRoot string         `yaml:"project_root"`
	DataDir     string         `yaml:"data_dir"`
	Local       LocalConfig    `yaml:"local"`
	Remote      RemoteConfig   `yaml:"remote"`
	Logs        LogsConfig     `yaml:"logs"`
	Dispatch    DispatchConfig `yaml:"dispatch"`
	Server      ServerConfig   `yaml:"server"`
}

// LocalConfig represents the YAML structure for local step execution.
type LocalConfig struct {
	PowerShell     string `yaml:"powershell"`
	Python         string `yaml:"python"`
	PipelineScript string `yaml:"pipeline_script"`
}

// RemoteConfig represents the YAML structure for the remote scan host.
type RemoteConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	ConnectTimeout  string `yaml:"connect_timeout"`
	ScriptsDir      string `yaml:"scripts_dir"`
	ReportsDir      string `yaml:"reports_dir"`
	StaasReportsDir string `yaml:"staas_reports_dir"`
	PrivateKeyPath  string `yaml:"private_key_path"`
}

// LogsConfig represents the YAML structure for step logs.
type LogsConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// DispatchConfig represents the YAML structure for the dispatcher.
type DispatchConfig struct {
	AllowConcurrent bool   `yaml:"allow_concurrent"`
	StepTimeout     string `yaml:"step_timeout"`
}

// ServerConfig represents the YAML structure for the dashboard API.
type ServerConfig struct {
	ListenAddress string `yaml:"listen_address"`
	StaticDir     string `yaml:"static_dir"`
	TemplatesDir  string `yaml:"templates_dir"`
}

func (c PipelineConfig) toModel() (model.PipelineConfig, error) {
	connectTimeout, err := parseDuration(c.Remote.ConnectTimeout)
	if err != nil {
		return model.PipelineConfig{}, fmt.Errorf("remote.connect_timeout: %w", err)
	}
	stepTimeout, err := parseDuration(c.Dispatch.StepTimeout)
	if err != nil {
		return model.PipelineConfig{}, fmt.Errorf("dispatch.step_timeout: %w", err)
	}
	if c.Remote.Port < 0 || c.Remote.Port > 65535 {
		return model.PipelineConfig{}, fmt.Errorf("remote.port out of range, got: %d", c.Remote.Port)
	}
	if c.Logs.MaxBytes < 0 {
		return model.PipelineConfig{}, fmt.Errorf("logs.max_bytes can't be negative, got: %d", c.Logs.MaxBytes)
	}

	return model.PipelineConfig{
		ProjectRoot: c.ProjectRoot,
		DataDir:     c.DataDir,
		Local: model.LocalConfig{
			PowerShell:     c.Local.PowerShell,
			Python:         c.Local.Python,
			PipelineScript: c.Local.PipelineScript,
		},
		Remote: model.RemoteConfig{
			Host:            c.Remote.Host,
			Port:            c.Remote.Port,
			ConnectTimeout:  connectTimeout,
			ScriptsDir:      c.Remote.ScriptsDir,
			ReportsDir:      c.Remote.ReportsDir,
			StaasReportsDir: c.Remote.StaasReportsDir,
			PrivateKeyPath:  c.Remote.PrivateKeyPath,
		},
		Logs: model.LogsConfig{
			MaxBytes: c.Logs.MaxBytes,
		},
		Dispatch: model.DispatchConfig{
			AllowConcurrent: c.Dispatch.AllowConcurrent,
			StepTimeout:     stepTimeout,
		},
		Server: model.ServerConfig{
			ListenAddress: c.Server.ListenAddress,
			StaticDir:     c.Server.StaticDir,
			TemplatesDir:  c.Server.TemplatesDir,
		},
	}, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration can't be negative, got: %s", s)
	}
	return d, nil
}
