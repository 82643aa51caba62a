package drivers

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/webpdtool/testcore/internal/instrument"
)

// defaultTCPIPTimeout is the implementation default for TCPIP command
// measurements when item.TimeoutMs is absent.
const defaultTCPIPTimeout = 5 * time.Second

// TCPIPDriver is a virtual command-exec driver: it sends Command over the
// already-dialed TCP connection and returns the decoded response (spec
// §4.2). Unlike the console/comport drivers it needs a dialed TCPIP-kind
// Connection; over a LOCAL one, such as the built-in tcpip_1, ExecuteCommand
// returns ErrTransport.
type TCPIPDriver struct {
	conn *instrument.Connection
}

// NewTCPIPDriver is an instrument.Factory for the built-in/"TCPIP" type.
func NewTCPIPDriver(conn *instrument.Connection) instrument.Driver {
	return &TCPIPDriver{conn: conn}
}

func (d *TCPIPDriver) Initialize(_ context.Context) error { return nil }
func (d *TCPIPDriver) Reset(_ context.Context) error      { return nil }
func (d *TCPIPDriver) Close() error                       { return nil }

// ExecuteCommand writes params["Command"] and reads one response line.
func (d *TCPIPDriver) ExecuteCommand(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	command, _ := params["Command"].(string)
	if command == "" {
		return nil, errors.New("Command parameter is required")
	}

	tcp := d.conn.TCP()
	if tcp == nil {
		return nil, fmt.Errorf("%w: no TCP connection", instrument.ErrTransport)
	}

	runCtx, cancel := deadlineFromParams(ctx, params, defaultTCPIPTimeout)
	defer cancel()

	if deadline, ok := runCtx.Deadline(); ok {
		_ = tcp.SetDeadline(deadline)
	}

	if _, err := tcp.Write([]byte(command + "\n")); err != nil {
		return nil, fmt.Errorf("%w: %w", instrument.ErrTransport, err)
	}

	reader := bufio.NewReader(tcp)

	line, err := reader.ReadString('\n')
	if err != nil {
		if runCtx.Err() != nil {
			timeoutMs := defaultTCPIPTimeout.Milliseconds()
			if ms, ok := toMillis(params["Timeout"]); ok {
				timeoutMs = ms
			}

			return nil, fmt.Errorf("%w: timeout after %dms", instrument.ErrTimeout, timeoutMs)
		}

		return nil, fmt.Errorf("%w: %w", instrument.ErrTransport, err)
	}

	return strings.TrimSpace(line), nil
}
