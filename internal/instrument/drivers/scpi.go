// Package drivers provides concrete Instrument Driver (C2) implementations:
// SCPI-over-TCP bench instruments (DAQ973A-style DMMs, programmable power
// supplies), the virtual command-exec drivers (console/comport/tcpip), and
// an SSH command driver. Spec §4.2.
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

// ErrNoTransport is returned when a SCPI driver is constructed over a
// Connection with no TCP transport (e.g. a VISA/GPIB/Serial bus type this
// build has no vendor backend for).
var ErrNoTransport = errors.New("instrument has no usable transport")

// scpiBench wraps a *instrument.Connection's TCP transport with line-based
// SCPI query/write semantics, shared by the DMM and power-supply drivers.
type scpiBench struct {
	conn *instrument.Connection
}

func (b *scpiBench) write(ctx context.Context, cmd string) error {
	tcp := b.conn.TCP()
	if tcp == nil {
		return ErrNoTransport
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = tcp.SetWriteDeadline(deadline)
	}

	_, err := tcp.Write([]byte(cmd + "\n"))

	return err
}

// query writes cmd and reads one newline-terminated response line.
func (b *scpiBench) query(ctx context.Context, cmd string) (string, error) {
	if err := b.write(ctx, cmd); err != nil {
		return "", err
	}

	tcp := b.conn.TCP()

	if deadline, ok := ctx.Deadline(); ok {
		_ = tcp.SetReadDeadline(deadline)
	}

	reader := bufio.NewReader(tcp)

	line, err := reader.ReadString('\n')
	if err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "", fmt.Errorf("%w", instrument.ErrTimeout)
		}

		return "", fmt.Errorf("%w: %w", instrument.ErrTransport, err)
	}

	return strings.TrimSpace(line), nil
}

// Initialize sends the SCPI clear-status command (*CLS).
func (b *scpiBench) Initialize(ctx context.Context) error {
	return b.write(ctx, "*CLS")
}

// Reset sends the SCPI device reset command.
func (b *scpiBench) Reset(ctx context.Context) error {
	return b.write(ctx, "*RST")
}

func (b *scpiBench) Close() error {
	return nil
}

// deadlineFromParams honours an optional per-call "Timeout" param (ms),
// falling back to def.
func deadlineFromParams(ctx context.Context, params map[string]interface{}, def time.Duration) (context.Context, context.CancelFunc) {
	d := def

	if raw, ok := params["Timeout"]; ok {
		if ms, ok := toMillis(raw); ok {
			d = time.Duration(ms) * time.Millisecond
		}
	}

	return context.WithTimeout(ctx, d)
}

func toMillis(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case string:
		var ms int64
		if _, err := fmt.Sscanf(n, "%d", &ms); err == nil {
			return ms, true
		}
	}

	return 0, false
}
