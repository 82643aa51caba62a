package drivers

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/webpdtool/testcore/internal/instrument"
)

// defaultComPortTimeout is the implementation default for serial command
// measurements when item.TimeoutMs is absent.
const defaultComPortTimeout = 5 * time.Second

// SerialOpener opens a serial device for read/write. Production deployments
// inject a real serial backend (baud/parity aware); tests inject an
// in-memory pipe. Defaults to opening the device path as a plain file,
// which is sufficient for the pty/tty devices the factory bench exposes.
type SerialOpener func(port string, baud int) (io.ReadWriteCloser, error)

// defaultSerialOpener opens the OS device path directly.
func defaultSerialOpener(port string, _ int) (io.ReadWriteCloser, error) {
	return os.OpenFile(port, os.O_RDWR, 0)
}

// ComPortDriver is a virtual command-exec driver over a serial line (spec
// §4.2): it writes Command and reads back a decoded response.
type ComPortDriver struct {
	port string
	baud int
	open SerialOpener
}

// NewComPortDriver returns an instrument.Factory bound to opener (pass nil
// for the OS-file default).
func NewComPortDriver(opener SerialOpener) instrument.Factory {
	if opener == nil {
		opener = defaultSerialOpener
	}

	return func(conn *instrument.Connection) instrument.Driver {
		return &ComPortDriver{
			port: conn.Config.Connection.SerialPort,
			baud: conn.Config.Connection.Baud,
			open: opener,
		}
	}
}

func (d *ComPortDriver) Initialize(_ context.Context) error { return nil }
func (d *ComPortDriver) Reset(_ context.Context) error      { return nil }
func (d *ComPortDriver) Close() error                       { return nil }

// ExecuteCommand writes params["Command"] to the serial line and reads one
// response line, honouring ctx cancellation and the Timeout parameter.
func (d *ComPortDriver) ExecuteCommand(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	command, _ := params["Command"].(string)
	if command == "" {
		return nil, errors.New("Command parameter is required")
	}

	if d.port == "" {
		return nil, fmt.Errorf("%w: comport has no configured serial path", instrument.ErrTransport)
	}

	rwc, err := d.open(d.port, d.baud)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", instrument.ErrTransport, d.port, err)
	}
	defer rwc.Close()

	runCtx, cancel := deadlineFromParams(ctx, params, defaultComPortTimeout)
	defer cancel()

	resultCh := make(chan result, 1)

	go func() {
		if _, err := rwc.Write([]byte(command + "\n")); err != nil {
			resultCh <- result{err: fmt.Errorf("%w: %w", instrument.ErrTransport, err)}

			return
		}

		reader := bufio.NewReader(rwc)

		resp, err := reader.ReadString('\n')
		if err != nil {
			resultCh <- result{err: fmt.Errorf("%w: %w", instrument.ErrTransport, err)}

			return
		}

		resultCh <- result{value: strings.TrimSpace(resp)}
	}()

	select {
	case r := <-resultCh:
		return r.value, r.err
	case <-runCtx.Done():
		timeoutMs := defaultComPortTimeout.Milliseconds()
		if ms, ok := toMillis(params["Timeout"]); ok {
			timeoutMs = ms
		}

		return nil, fmt.Errorf("%w: timeout after %dms", instrument.ErrTimeout, timeoutMs)
	}
}

type result struct {
	value string
	err   error
}
