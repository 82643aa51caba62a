package drivers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/webpdtool/testcore/internal/instrument"
)

// defaultRelayTimeout bounds a single relay-actuation SCPI exchange.
const defaultRelayTimeout = 5 * time.Second

// RelayDriver actuates a named relay channel over SCPI-over-TCP, returning
// the string outcome "ON"/"OFF" (spec §4.5 Relay measurement).
type RelayDriver struct {
	scpiBench
}

// NewRelayDriver is an instrument.Factory for relay-switch instrument types.
func NewRelayDriver(conn *instrument.Connection) instrument.Driver {
	return &RelayDriver{scpiBench{conn: conn}}
}

// ExecuteCommand dispatches params.{RelayName,Action} to SetRelay.
func (d *RelayDriver) ExecuteCommand(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	name, _ := params["RelayName"].(string)

	action, _ := params["Action"].(string)
	on := strings.EqualFold(action, "ON")

	if err := d.SetRelay(ctx, name, on); err != nil {
		return nil, err
	}

	if on {
		return "ON", nil
	}

	return "OFF", nil
}

// SetRelay opens/closes the named relay channel.
func (d *RelayDriver) SetRelay(ctx context.Context, name string, on bool) error {
	ctx, cancel := context.WithTimeout(ctx, defaultRelayTimeout)
	defer cancel()

	state := "CLOS"
	if !on {
		state = "OPEN"
	}

	return d.write(ctx, fmt.Sprintf("ROUT:%s (@%s)", state, name))
}
