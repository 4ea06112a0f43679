package model

import (
	"fmt"
	"path/filepath"
	"time"
)

// PipelineConfig is the configuration of the release pipeline toolkit.
type PipelineConfig struct {
	// ProjectRoot is the working directory of every local step, relative paths
	// inside the pipeline scripts resolve against it.
	ProjectRoot string
	// DataDir holds the status record, the run history and the step logs.
	DataDir  string
	Local    LocalConfig
	Remote   RemoteConfig
	Logs     LogsConfig
	Dispatch DispatchConfig
	Server   ServerConfig
}

// LocalConfig configures the local command strategies.
type LocalConfig struct {
	PowerShell     string
	Python         string
	PipelineScript string
}

// RemoteConfig configures the remote session strategies.
type RemoteConfig struct {
	Host            string
	Port            int
	ConnectTimeout  time.Duration
	ScriptsDir      string
	ReportsDir      string
	StaasReportsDir string
	// PrivateKeyPath is used when a dispatch doesn't carry a password.
	PrivateKeyPath string
}

// LogsConfig configures the step log sinks.
type LogsConfig struct {
	// MaxBytes caps a single run's log, 0 means unbounded.
	MaxBytes int64
}

// DispatchConfig configures the dispatcher.
type DispatchConfig struct {
	AllowConcurrent bool
	// StepTimeout bounds a single step run, 0 means no timeout.
	StepTimeout time.Duration
}

// ServerConfig configures the dashboard API.
type ServerConfig struct {
	ListenAddress string
	StaticDir     string
	TemplatesDir  string
}

// Defaults fills the unset fields with the toolkit defaults.
func (c *PipelineConfig) Defaults() {
	if c.ProjectRoot == "" {
		c.ProjectRoot = "."
	}
	if c.Local.PowerShell == "" {
		c.Local.PowerShell = "powershell"
	}
	if c.Local.Python == "" {
		c.Local.Python = "python"
	}
	if c.Local.PipelineScript == "" {
		c.Local.PipelineScript = "run_release.ps1"
	}
	if c.Remote.Host == "" {
		c.Remote.Host = "100.76.144.249"
	}
	if c.Remote.Port == 0 {
		c.Remote.Port = 22
	}
	if c.Remote.ConnectTimeout == 0 {
		c.Remote.ConnectTimeout = 10 * time.Second
	}
	if c.Remote.ScriptsDir == "" {
		c.Remote.ScriptsDir = "/scratch/softwares_2"
	}
	if c.Remote.ReportsDir == "" {
		c.Remote.ReportsDir = "/scratch/softwares_2/Reports-ALL"
	}
	if c.Remote.StaasReportsDir == "" {
		c.Remote.StaasReportsDir = "/scratch/softwares_2/STaaS-Reports"
	}
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = ":8000"
	}
}

// Validate checks the configuration is usable.
func (c PipelineConfig) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data dir is required: %w", ErrNotValid)
	}
	if c.Remote.Port <= 0 || c.Remote.Port > 65535 {
		return fmt.Errorf("invalid remote port %d: %w", c.Remote.Port, ErrNotValid)
	}
	if c.Logs.MaxBytes < 0 {
		return fmt.Errorf("logs max bytes can't be negative: %w", ErrNotValid)
	}
	if c.Dispatch.StepTimeout < 0 {
		return fmt.Errorf("step timeout can't be negative: %w", ErrNotValid)
	}
	return nil
}

// PipelineScriptPath returns the absolute-ish path of the pipeline runner script.
func (c PipelineConfig) PipelineScriptPath() string {
	if filepath.IsAbs(c.Local.PipelineScript) {
		return c.Local.PipelineScript
	}
	return filepath.Join(c.ProjectRoot, c.Local.PipelineScript)
}
