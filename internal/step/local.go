package step

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sathwikvintha/release-automation/internal/model"
)

// Command is a local process invocation.
type Command struct {
	Path string
	Args []string
	Dir  string
	// Env is appended to the current process environment.
	Env []string
	// Stdin is fed to the process standard input when not empty.
	Stdin string
}

// Process is a started local command.
type Process interface {
	// Output is the interleaved stdout and stderr stream of the process.
	Output() io.Reader
	// Wait waits for the process to exit and returns its exit code. It must be
	// called after Output has been consumed.
	Wait() (int, error)
}

// CommandRunner starts local commands.
type CommandRunner interface {
	Start(ctx context.Context, cmd Command) (Process, error)
}

// ExecRunner is a CommandRunner backed by os/exec.
type ExecRunner struct{}

// Start starts the command with stdout and stderr sharing one pipe so the
// output keeps the order the process produced it in.
func (ExecRunner) Start(ctx context.Context, c Command) (Process, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("could not create output pipe: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdout = pw
	cmd.Stderr = pw
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("could not start %s: %w", c.Path, err)
	}

	// The child holds its own copy, EOF arrives when it exits.
	pw.Close()

	return &execProcess{cmd: cmd, out: pr}, nil
}

type execProcess struct {
	cmd *exec.Cmd
	out *os.File
}

func (p *execProcess) Output() io.Reader { return p.out }

func (p *execProcess) Wait() (int, error) {
	defer p.out.Close()

	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}

	return -1, fmt.Errorf("could not wait for process: %w", err)
}

// ConfigEntry is a single KEY=VALUE line of a ConfigFile.
type ConfigEntry struct {
	Key   string
	Value string
}

// ConfigFile is a KEY=VALUE settings file written before a command starts, for
// commands that read their settings from disk instead of their arguments.
type ConfigFile struct {
	// Path of the file, relative paths resolve against the command directory.
	Path    string
	Entries func(inputs model.StepInput) []ConfigEntry
}

func (c ConfigFile) write(dir string, inputs model.StepInput) error {
	p := c.Path
	if !filepath.IsAbs(p) {
		p = filepath.Join(dir, p)
	}

	var b strings.Builder
	for _, e := range c.Entries(inputs) {
		if strings.ContainsAny(e.Key, "=\r\n") || strings.TrimSpace(e.Key) == "" {
			return fmt.Errorf("invalid config key %q: %w", e.Key, model.ErrNotValid)
		}
		if strings.ContainsAny(e.Value, "\r\n") {
			return fmt.Errorf("config value of %s can't span lines: %w", e.Key, model.ErrNotValid)
		}
		fmt.Fprintf(&b, "%s=%s\n", e.Key, e.Value)
	}

	if err := os.WriteFile(p, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("could not write %s: %w", p, err)
	}

	return nil
}

// LocalCommand runs a local process built from a fixed argument template.
type LocalCommand struct {
	Path string
	// Args builds the argument vector from the step inputs.
	Args func(inputs model.StepInput) []string
	// Stdin optionally builds the process standard input from the step inputs.
	Stdin func(inputs model.StepInput) string
	// Config is optionally written before the process starts.
	Config *ConfigFile
	Dir    string
	Env    []string
	Runner CommandRunner
}

// Kind returns the strategy kind.
func (l LocalCommand) Kind() string { return KindLocal }

// Execute runs the command streaming its output line by line as it is produced.
func (l LocalCommand) Execute(ctx context.Context, inputs model.StepInput, out Output) model.ExecutionResult {
	var args []string
	if l.Args != nil {
		args = l.Args(inputs)
	}

	var stdin string
	if l.Stdin != nil {
		stdin = l.Stdin(inputs)
	}

	if l.Config != nil && l.Config.Entries != nil {
		if err := l.Config.write(l.Dir, inputs); err != nil {
			return failed(out, err)
		}
	}

	runner := l.Runner
	if runner == nil {
		runner = ExecRunner{}
	}

	proc, err := runner.Start(ctx, Command{Path: l.Path, Args: args, Dir: l.Dir, Env: l.Env, Stdin: stdin})
	if err != nil {
		return failed(out, err)
	}

	streamErr := streamLines(proc.Output(), out)

	exitCode, err := proc.Wait()
	if err != nil {
		return failed(out, err)
	}
	if streamErr != nil {
		return failed(out, fmt.Errorf("could not read process output: %w", streamErr))
	}

	return model.ExecutionResult{ExitCode: exitCode}
}

// streamLines forwards every line of r to out before reading the next one.
func streamLines(r io.Reader, out Output) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			_ = out.WriteLine(strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}
