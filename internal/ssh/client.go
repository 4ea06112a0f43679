package ssh

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/sathwikvintha/release-automation/internal/log"
)

const (
	// DefaultConnectTimeout is the default SSH connection timeout.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultSSHPort is the default SSH port.
	DefaultSSHPort = 22

	// cancelDrainTimeout bounds the wait for the session output after a cancelled exec.
	cancelDrainTimeout = 5 * time.Second
)

// ClientConfig holds the configuration for creating an SSH connection.
type ClientConfig struct {
	// Host is the IP address or hostname of the scan server.
	Host string
	// Port is the SSH port (default: 22).
	Port int
	// User is the SSH user.
	User string
	// Password authenticates with password and keyboard-interactive methods.
	Password string
	// PrivateKey is the PEM-encoded private key bytes.
	PrivateKey []byte
	// ConnectTimeout is the SSH connection timeout (default: 10s).
	ConnectTimeout time.Duration
	Logger         log.Logger
}

func (c *ClientConfig) defaults() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.Password == "" && len(c.PrivateKey) == 0 {
		return fmt.Errorf("password or private key is required")
	}
	if c.Port == 0 {
		c.Port = DefaultSSHPort
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "ssh.Client"})
	return nil
}

func (c ClientConfig) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if len(c.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(c.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("could not parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if c.Password != "" {
		password := c.Password
		methods = append(methods,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	return methods, nil
}

// Client wraps an SSH connection with the operations the remote steps need.
type Client struct {
	conn   *ssh.Client
	logger log.Logger
}

// NewClient dials the SSH server and returns a connected client.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid ssh client config: %w", err)
	}

	auth, err := cfg.authMethods()
	if err != nil {
		return nil, err
	}

	sshCfg := &ssh.ClientConfig{
		User: cfg.User,
		Auth: auth,
		// The scan host is reached on a private network and is not pinned.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         cfg.ConnectTimeout,
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var d net.Dialer
	netConn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("could not connect to %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, sshCfg)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("ssh handshake failed with %s: %w", addr, err)
	}

	cfg.Logger.Debugf("Connected to %s as %s", addr, cfg.User)

	return &Client{
		conn:   ssh.NewClient(sshConn, chans, reqs),
		logger: cfg.Logger,
	}, nil
}

// Close closes the SSH connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// ExecOpts are options for command execution.
type ExecOpts struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// PTY requests a pseudo terminal, the remote merges stderr into stdout.
	PTY bool
}

// Exec runs a command on the remote host and returns the exit code.
func (c *Client) Exec(ctx context.Context, command string, opts ExecOpts) (int, error) {
	if ctx.Err() != nil {
		return -1, ctx.Err()
	}

	session, err := c.conn.NewSession()
	if err != nil {
		return -1, fmt.Errorf("could not create ssh session: %w", err)
	}
	defer session.Close()

	if opts.PTY {
		modes := ssh.TerminalModes{
			ssh.ECHO:          0,
			ssh.TTY_OP_ISPEED: 14400,
			ssh.TTY_OP_OSPEED: 14400,
		}
		if err := session.RequestPty("xterm", 40, 200, modes); err != nil {
			return -1, fmt.Errorf("could not request pty: %w", err)
		}
	}

	if opts.Stdin != nil {
		session.Stdin = opts.Stdin
	}
	if opts.Stdout != nil {
		session.Stdout = opts.Stdout
	}
	if opts.Stderr != nil {
		session.Stderr = opts.Stderr
	}

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()

		// Run returns once the output copies ended, the writers are not used after that.
		select {
		case <-done:
		case <-time.After(cancelDrainTimeout):
			c.logger.Warningf("Remote session output did not finish after cancel")
		}

		return -1, ctx.Err()
	case err := <-done:
		if err != nil {
			if exitErr, ok := err.(*ssh.ExitError); ok {
				return exitErr.ExitStatus(), nil
			}
			return -1, fmt.Errorf("command execution failed: %w", err)
		}
		return 0, nil
	}
}

// CopyFrom copies a remote file or directory to the local host via SFTP.
// Missing local directories are created and existing files are overwritten.
func (c *Client) CopyFrom(ctx context.Context, srcRemote, dstLocal string) error {
	sftpClient, err := sftp.NewClient(c.conn)
	if err != nil {
		return fmt.Errorf("could not create sftp client: %w", err)
	}
	defer sftpClient.Close()

	srcInfo, err := sftpClient.Stat(srcRemote)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("remote path '%s' does not exist: %w", srcRemote, os.ErrNotExist)
		}
		return fmt.Errorf("could not stat remote source: %w", err)
	}

	if srcInfo.IsDir() {
		return c.copyDirFrom(ctx, sftpClient, srcRemote, dstLocal)
	}
	return c.copyFileFrom(ctx, sftpClient, srcRemote, dstLocal, srcInfo.Mode())
}

func (c *Client) copyFileFrom(ctx context.Context, sftpClient *sftp.Client, srcRemote, dstLocal string, mode fs.FileMode) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	src, err := sftpClient.Open(srcRemote)
	if err != nil {
		return fmt.Errorf("could not open remote file %s: %w", srcRemote, err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(dstLocal), 0755); err != nil {
		return fmt.Errorf("could not create local directory: %w", err)
	}

	dst, err := os.OpenFile(dstLocal, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm()|0200)
	if err != nil {
		return fmt.Errorf("could not create local file %s: %w", dstLocal, err)
	}
	defer dst.Close()

	n, err := io.Copy(dst, src)
	if err != nil {
		return fmt.Errorf("could not copy remote file %s: %w", srcRemote, err)
	}
	c.logger.Debugf("Fetched %s (%d bytes)", srcRemote, n)

	return nil
}

func (c *Client) copyDirFrom(ctx context.Context, sftpClient *sftp.Client, srcRemote, dstLocal string) error {
	walker := sftpClient.Walk(srcRemote)
	for walker.Step() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := walker.Err(); err != nil {
			return err
		}

		remotePath := walker.Path()
		relPath, err := filepath.Rel(srcRemote, remotePath)
		if err != nil {
			return err
		}
		localPath := filepath.Join(dstLocal, relPath)

		info := walker.Stat()
		switch {
		case info.Mode()&fs.ModeSymlink != 0:
			continue
		case info.IsDir():
			if err := os.MkdirAll(localPath, 0755); err != nil {
				return fmt.Errorf("could not create local directory %s: %w", localPath, err)
			}
		default:
			if err := c.copyFileFrom(ctx, sftpClient, remotePath, localPath, info.Mode()); err != nil {
				return err
			}
		}
	}

	return nil
}
