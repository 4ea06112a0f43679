package conventions

import "path/filepath"

const (
	// DefaultDataDir is the default releasectl data directory name (relative to home).
	DefaultDataDir = ".releasectl"
	// DefaultConfigFile is the config file name inside the data directory.
	DefaultConfigFile = "releasectl.yaml"

	// StatusFile is the JSON status record file name.
	StatusFile = "pipeline_state.json"
	// DBFile is the SQLite database file name.
	DBFile = "releasectl.db"
	// LogsDir is the subdirectory for step logs.
	LogsDir = "logs"

	// Project layout, relative to the project root.

	// JSONFilesDir holds the commit summaries the release report is built from.
	JSONFilesDir = "python/release-report-generator/json_files"
	// ReportOutputDir holds the generated release documents.
	ReportOutputDir = "python/release-report-generator/output"
)

// StatusFilePath returns the path of the JSON status record.
func StatusFilePath(dataDir string) string {
	return filepath.Join(dataDir, StatusFile)
}

// DBPath returns the path of the SQLite database.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, DBFile)
}

// LogsPath returns the step logs directory.
func LogsPath(dataDir string) string {
	return filepath.Join(dataDir, LogsDir)
}

// ConfigFilePath returns the default config file path.
func ConfigFilePath(dataDir string) string {
	return filepath.Join(dataDir, DefaultConfigFile)
}

// JSONFilesPath returns the commit summaries directory of a project.
func JSONFilesPath(projectRoot string) string {
	return filepath.Join(projectRoot, filepath.FromSlash(JSONFilesDir))
}

// ReportOutputPath returns the generated documents directory of a project.
func ReportOutputPath(projectRoot string) string {
	return filepath.Join(projectRoot, filepath.FromSlash(ReportOutputDir))
}
