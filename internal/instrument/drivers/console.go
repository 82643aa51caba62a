package drivers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/webpdtool/testcore/internal/instrument"
)

// defaultConsoleTimeout is the implementation default for command
// measurements when item.TimeoutMs is absent (spec §4.5).
const defaultConsoleTimeout = 5 * time.Second

// ConsoleDriver is a virtual command-exec driver (spec §4.2): it runs a
// subprocess and returns its decoded stdout. It has no physical connection
// session — Connection.Kind is always LOCAL for this driver.
type ConsoleDriver struct{}

// NewConsoleDriver is an instrument.Factory for the built-in "console" type.
func NewConsoleDriver(_ *instrument.Connection) instrument.Driver {
	return &ConsoleDriver{}
}

func (d *ConsoleDriver) Initialize(_ context.Context) error { return nil }
func (d *ConsoleDriver) Reset(_ context.Context) error      { return nil }
func (d *ConsoleDriver) Close() error                       { return nil }

// ExecuteCommand runs params["Command"] as a shell command, killing it on
// ctx cancellation or the Timeout param, and returns its trimmed stdout
// (spec §4.2 console/comport/tcpip virtual drivers).
func (d *ConsoleDriver) ExecuteCommand(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	command, _ := params["Command"].(string)
	if command == "" {
		return nil, errors.New("Command parameter is required")
	}

	runCtx, cancel := deadlineFromParams(ctx, params, defaultConsoleTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command) //nolint:gosec // operator-authored test-bench commands

	var stdout bytes.Buffer

	cmd.Stdout = &stdout

	err := cmd.Run()
	if runCtx.Err() != nil {
		timeoutMs := defaultConsoleTimeout.Milliseconds()
		if ms, ok := toMillis(params["Timeout"]); ok {
			timeoutMs = ms
		}

		return nil, fmt.Errorf("%w: timeout after %dms", instrument.ErrTimeout, timeoutMs)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", instrument.ErrTransport, err)
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return "", nil
	}

	if lineCount, ok := params["ResponseLineCount"]; ok {
		out = firstNLines(out, lineCount)
	}

	return out, nil
}

// firstNLines limits out to the first n newline-separated lines, matching
// the ResponseLineCount parameter's intent for console/comport drivers.
func firstNLines(out string, n interface{}) string {
	count, ok := toMillis(n)
	if !ok || count <= 0 {
		return out
	}

	lines := strings.Split(out, "\n")
	if int64(len(lines)) <= count {
		return out
	}

	return strings.Join(lines[:count], "\n")
}
