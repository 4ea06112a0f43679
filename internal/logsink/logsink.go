package logsink

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sathwikvintha/release-automation/internal/model"
)

// Mode is how a sink is opened.
type Mode int

const (
	// ModeTruncate starts the sink empty.
	ModeTruncate Mode = iota
	// ModeAppend keeps previous content, used by multi-phase remote operations.
	ModeAppend
)

const logExtension = ".log"

// Manager hands out the per step log files of a directory.
type Manager struct {
	dir      string
	maxBytes int64
}

// NewManager returns a manager rooted at dir. maxBytes caps the bytes a single
// opened sink writes, 0 disables the cap.
func NewManager(dir string, maxBytes int64) (*Manager, error) {
	if dir == "" {
		return nil, fmt.Errorf("log directory is required: %w", model.ErrNotValid)
	}
	if maxBytes < 0 {
		return nil, fmt.Errorf("max bytes can't be negative: %w", model.ErrNotValid)
	}
	return &Manager{dir: dir, maxBytes: maxBytes}, nil
}

// Path returns the file path of a sink.
func (m *Manager) Path(name string) string {
	return filepath.Join(m.dir, name+logExtension)
}

// Open opens a sink for writing.
func (m *Manager) Open(name string, mode Mode) (*Sink, error) {
	if err := model.ValidateStepName(name); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create log directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY
	switch mode {
	case ModeAppend:
		flags |= os.O_APPEND
	default:
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(m.Path(name), flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not open log %s: %w", name, err)
	}

	return &Sink{name: name, f: f, maxBytes: m.maxBytes}, nil
}

// Read returns the full content of a sink, or "" when it doesn't exist yet.
func (m *Manager) Read(name string) (string, error) {
	if err := model.ValidateStepName(name); err != nil {
		return "", err
	}

	data, err := os.ReadFile(m.Path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("could not read log %s: %w", name, err)
	}

	return string(data), nil
}

// Sink is an open step log. Every line is synced to disk before WriteLine returns
// so concurrent readers see the output as it is produced.
type Sink struct {
	name      string
	f         *os.File
	maxBytes  int64
	written   int64
	truncated bool
	mu        sync.Mutex
}

// Name returns the sink name.
func (s *Sink) Name() string { return s.name }

// WriteLine writes a single line, a trailing newline is added when missing.
func (s *Sink) WriteLine(line string) error {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.truncated {
		return nil
	}

	if s.maxBytes > 0 && s.written+int64(len(line)) > s.maxBytes {
		s.truncated = true
		line = fmt.Sprintf("[log truncated: limit of %d bytes reached]\n", s.maxBytes)
	}

	n, err := s.f.WriteString(line)
	s.written += int64(n)
	if err != nil {
		return fmt.Errorf("could not write log %s: %w", s.name, err)
	}

	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("could not flush log %s: %w", s.name, err)
	}

	return nil
}

// Printf writes a formatted line.
func (s *Sink) Printf(format string, args ...any) error {
	return s.WriteLine(fmt.Sprintf(format, args...))
}

// Error writes an error line with the "ERROR:" prefix.
func (s *Sink) Error(err error) error {
	return s.WriteLine(fmt.Sprintf("ERROR: %s", err))
}

// Close closes the sink.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.f.Close()
}
