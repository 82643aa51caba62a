package drivers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/webpdtool/testcore/internal/instrument"
)

// defaultSSHTimeout is the implementation default for SSH command
// measurements when item.TimeoutMs is absent.
const defaultSSHTimeout = 5 * time.Second

// sshTerminateSignal is sent to the remote process when ctx is cancelled.
const sshTerminateSignal = ssh.SIGTERM

// SSHDriver is a command-exec driver over the connection pool's SSH
// transport (spec §3 InstrumentConnection SSH{host,user,key}). It runs one
// remote command per invocation and returns its trimmed stdout.
type SSHDriver struct {
	conn *instrument.Connection
}

// NewSSHDriver is an instrument.Factory for instrument types whose config
// uses an SSH connection.
func NewSSHDriver(conn *instrument.Connection) instrument.Driver {
	return &SSHDriver{conn: conn}
}

func (d *SSHDriver) Initialize(_ context.Context) error { return nil }
func (d *SSHDriver) Reset(_ context.Context) error      { return nil }
func (d *SSHDriver) Close() error                       { return nil }

// ExecuteCommand opens a new SSH session (sessions are not reusable once a
// command has run) and executes params["Command"], respecting ctx
// cancellation by closing the session early.
func (d *SSHDriver) ExecuteCommand(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	command, _ := params["Command"].(string)
	if command == "" {
		return nil, errors.New("Command parameter is required")
	}

	client := d.conn.SSH()
	if client == nil {
		return nil, fmt.Errorf("%w: no ssh client", instrument.ErrTransport)
	}

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("%w: new ssh session: %w", instrument.ErrTransport, err)
	}
	defer session.Close()

	runCtx, cancel := deadlineFromParams(ctx, params, defaultSSHTimeout)
	defer cancel()

	var stdout bytes.Buffer

	session.Stdout = &stdout

	done := make(chan error, 1)

	go func() { done <- session.Run(command) }()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("%w: %w", instrument.ErrTransport, err)
		}

		return strings.TrimSpace(stdout.String()), nil

	case <-runCtx.Done():
		_ = session.Signal(sshTerminateSignal)
		_ = session.Close()

		timeoutMs := defaultSSHTimeout.Milliseconds()
		if ms, ok := toMillis(params["Timeout"]); ok {
			timeoutMs = ms
		}

		return nil, fmt.Errorf("%w: timeout after %dms", instrument.ErrTimeout, timeoutMs)
	}
}
