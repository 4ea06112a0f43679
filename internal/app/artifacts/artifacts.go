package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/sathwikvintha/release-automation/internal/log"
	"github.com/sathwikvintha/release-automation/internal/model"
)

// ServiceConfig is the configuration for the artifacts service.
type ServiceConfig struct {
	// JSONDir holds the commit summaries the report is generated from.
	JSONDir string
	// OutputDir holds the generated documents.
	OutputDir string
	Logger    log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.JSONDir == "" {
		return fmt.Errorf("json dir is required")
	}

	if c.OutputDir == "" {
		return fmt.Errorf("output dir is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Artifacts"})

	return nil
}

// Service gives access to the files the pipeline produces.
type Service struct {
	jsonDir   string
	outputDir string
	logger    log.Logger
}

// NewService creates a new artifacts service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		jsonDir:   cfg.JSONDir,
		outputDir: cfg.OutputDir,
		logger:    cfg.Logger,
	}, nil
}

// ListJSONFiles returns the sorted names of the commit summary files. A
// missing directory has no files.
func (s *Service) ListJSONFiles(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.jsonDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("could not list %s: %w", s.jsonDir, err)
	}

	files := lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		return e.Name(), e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".json")
	})
	sort.Strings(files)

	return files, nil
}

// ResolveDownload returns the path of a generated document. Only plain file
// names inside the output directory are accepted.
func (s *Service) ResolveDownload(ctx context.Context, filename string) (string, error) {
	if filename == "" || filename == "." || filename == ".." || filename != filepath.Base(filename) || strings.ContainsAny(filename, `/\`) {
		return "", fmt.Errorf("invalid file name %q: %w", filename, model.ErrNotValid)
	}

	p := filepath.Join(s.outputDir, filename)
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("file %q: %w", filename, model.ErrNotFound)
		}
		return "", fmt.Errorf("could not stat %s: %w", p, err)
	}

	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("file %q: %w", filename, model.ErrNotFound)
	}

	return p, nil
}
