package commands

import (
	"context"
	"io"

	"github.com/alecthomas/kingpin/v2"

	"github.com/sathwikvintha/release-automation/internal/log"
	"github.com/sathwikvintha/release-automation/internal/printer"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"

	// StatusBackendFile stores the status record as a JSON file.
	StatusBackendFile = "file"
	// StatusBackendSQLite stores the status record in the SQLite database.
	StatusBackendSQLite = "sqlite"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug         bool
	NoLog         bool
	NoColor       bool
	LoggerType    string
	ConfigPath    string
	DataDir       string
	ProjectRoot   string
	StatusBackend string

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)
	app.Flag("config", "Path to the pipeline YAML config file (defaults to releasectl.yaml in the data dir when present).").StringVar(&c.ConfigPath)
	app.Flag("data-dir", "Directory for the status record, run history and step logs (default ~/.releasectl).").StringVar(&c.DataDir)
	app.Flag("project-root", "Release toolkit root the pipeline scripts run from.").StringVar(&c.ProjectRoot)
	app.Flag("status-backend", "Where the step status record is stored.").Default(StatusBackendFile).EnumVar(&c.StatusBackend, StatusBackendFile, StatusBackendSQLite)

	return c
}

const (
	formatTable = "table"
	formatJSON  = "json"
)

func (r *RootCommand) newPrinter(format string) printer.Printer {
	if format == formatJSON {
		return printer.NewJSONPrinter(r.Stdout)
	}
	return printer.NewTablePrinter(r.Stdout)
}
