package step

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sathwikvintha/release-automation/internal/log"
	"github.com/sathwikvintha/release-automation/internal/model"
	"github.com/sathwikvintha/release-automation/internal/ssh"
)

// RemoteTarget is the host and the credentials of a remote session.
type RemoteTarget struct {
	Host           string
	Port           int
	User           string
	Password       string
	PrivateKey     []byte
	ConnectTimeout time.Duration
}

// RemoteSession is an authenticated session on a remote host.
type RemoteSession interface {
	// Exec runs the command with a terminal attached, its merged output is
	// written to out. It returns the remote exit code.
	Exec(ctx context.Context, command string, out io.Writer) (int, error)
	// CopyFrom copies a remote file or directory recursively to a local path.
	CopyFrom(ctx context.Context, srcRemote, dstLocal string) error
	Close() error
}

// RemoteDialer opens remote sessions.
type RemoteDialer interface {
	Dial(ctx context.Context, target RemoteTarget) (RemoteSession, error)
}

// SSHDialer is a RemoteDialer backed by the SSH client.
type SSHDialer struct {
	Logger log.Logger
}

// Dial opens an SSH session to the target.
func (d SSHDialer) Dial(ctx context.Context, t RemoteTarget) (RemoteSession, error) {
	c, err := ssh.NewClient(ctx, ssh.ClientConfig{
		Host:           t.Host,
		Port:           t.Port,
		User:           t.User,
		Password:       t.Password,
		PrivateKey:     t.PrivateKey,
		ConnectTimeout: t.ConnectTimeout,
		Logger:         d.Logger,
	})
	if err != nil {
		return nil, err
	}

	return sshSession{c: c}, nil
}

type sshSession struct {
	c *ssh.Client
}

func (s sshSession) Exec(ctx context.Context, command string, out io.Writer) (int, error) {
	return s.c.Exec(ctx, command, ssh.ExecOpts{Stdout: out, Stderr: out, PTY: true})
}

func (s sshSession) CopyFrom(ctx context.Context, srcRemote, dstLocal string) error {
	return s.c.CopyFrom(ctx, srcRemote, dstLocal)
}

func (s sshSession) Close() error { return s.c.Close() }

// RemoteFetch is a remote path copied to a local directory after the remote
// command finished.
type RemoteFetch struct {
	Remote string
	// LocalDir is created when missing, the remote path lands inside it
	// keeping its base name.
	LocalDir string
}

// RemoteCommand runs one composed command on a remote host and optionally
// downloads its results.
type RemoteCommand struct {
	Dialer         RemoteDialer
	Host           string
	Port           int
	ConnectTimeout time.Duration
	// PrivateKey authenticates the session when the inputs carry no password.
	PrivateKey []byte
	// Command builds the remote command line from the step inputs.
	Command func(inputs model.StepInput) (string, error)
	// Fetch optionally builds the download done after the command.
	Fetch func(inputs model.StepInput) (*RemoteFetch, error)
}

// Kind returns the strategy kind.
func (r RemoteCommand) Kind() string { return KindRemote }

// Execute runs the remote command. Any connect, exec or transfer error fails the
// step, the remote exit code is only reported.
func (r RemoteCommand) Execute(ctx context.Context, inputs model.StepInput, out Output) model.ExecutionResult {
	if r.Dialer == nil || r.Command == nil {
		return failed(out, fmt.Errorf("remote command is not configured: %w", model.ErrNotValid))
	}

	command, err := r.Command(inputs)
	if err != nil {
		return failed(out, err)
	}

	var fetch *RemoteFetch
	if r.Fetch != nil {
		fetch, err = r.Fetch(inputs)
		if err != nil {
			return failed(out, err)
		}
	}

	_ = out.WriteLine("Connecting to server...")
	sess, err := r.Dialer.Dial(ctx, RemoteTarget{
		Host:           r.Host,
		Port:           r.Port,
		User:           inputs.Get("username"),
		Password:       inputs.Get("password"),
		PrivateKey:     r.PrivateKey,
		ConnectTimeout: r.ConnectTimeout,
	})
	if err != nil {
		return failed(out, err)
	}
	defer sess.Close()
	_ = out.WriteLine("Connected successfully.")

	lw := &lineWriter{out: out}
	exitCode, err := sess.Exec(ctx, command, lw)
	lw.Close()
	if err != nil {
		return failed(out, err)
	}
	if exitCode != 0 {
		printf(out, "Remote command exited with code %d", exitCode)
	}

	if fetch != nil {
		_ = out.WriteLine("")
		_ = out.WriteLine("Downloading reports from server...")
		if err := os.MkdirAll(fetch.LocalDir, 0o755); err != nil {
			return failed(out, fmt.Errorf("could not create %s: %w", fetch.LocalDir, err))
		}
		dst := filepath.Join(fetch.LocalDir, path.Base(fetch.Remote))
		if err := sess.CopyFrom(ctx, fetch.Remote, dst); err != nil {
			return failed(out, err)
		}
		_ = out.WriteLine("Reports downloaded successfully.")
	}

	return model.ExecutionResult{ExitCode: 0}
}

// lineWriter splits a byte stream into lines for an Output. Writes after Close
// are dropped.
type lineWriter struct {
	out    Output
	buf    bytes.Buffer
	mu     sync.Mutex
	closed bool
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return len(p), nil
	}

	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := w.buf.Next(i + 1)
		_ = w.out.WriteLine(strings.TrimRight(string(line), "\r\n"))
	}

	return len(p), nil
}

// Close writes the pending partial line, if any, and stops forwarding.
func (w *lineWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true

	if w.buf.Len() == 0 {
		return
	}
	_ = w.out.WriteLine(strings.TrimRight(w.buf.String(), "\r\n"))
	w.buf.Reset()
}

// shellQuote quotes s as a single POSIX shell word.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// pathSegment checks v can be used as a single remote path element. An empty
// value is kept, the remote script decides what it means.
func pathSegment(key, v string) (string, error) {
	if v == "." || v == ".." || strings.ContainsAny(v, `/\`) {
		return "", fmt.Errorf("input %q must be a single path element: %w", key, model.ErrNotValid)
	}
	return v, nil
}
