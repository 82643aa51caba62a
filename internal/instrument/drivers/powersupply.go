package drivers

import (
	"context"
	"fmt"
	"time"

	"github.com/webpdtool/testcore/internal/instrument"
)

// defaultPSUTimeout bounds a single SCPI exchange with a power supply.
const defaultPSUTimeout = 5 * time.Second

// PowerSupplyDriver drives a programmable DC power supply over SCPI-over-TCP.
// Implements instrument.Driver and instrument.OutputSetter (spec §4.5
// PowerSet).
type PowerSupplyDriver struct {
	scpiBench
}

// NewPowerSupplyDriver is an instrument.Factory for programmable-supply
// instrument types.
func NewPowerSupplyDriver(conn *instrument.Connection) instrument.Driver {
	return &PowerSupplyDriver{scpiBench{conn: conn}}
}

// ExecuteCommand applies params.{Channel,SetVolt,SetCurr} and returns the
// readback voltage (or the set voltage if the instrument has no readback).
func (d *PowerSupplyDriver) ExecuteCommand(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	channel, _ := toMillis(params["Channel"])
	volts := floatParam(params["SetVolt"])
	amps := floatParam(params["SetCurr"])

	return d.SetOutput(ctx, int(channel), volts, amps)
}

// SetOutput programs voltage/current on channel and returns the best
// available readback (spec §4.5: "readback if available, else set voltage").
func (d *PowerSupplyDriver) SetOutput(ctx context.Context, channel int, volts, amps float64) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultPSUTimeout)
	defer cancel()

	if err := d.write(ctx, fmt.Sprintf("APPL CH%d,%f,%f", channel, volts, amps)); err != nil {
		return 0, err
	}

	if err := d.write(ctx, fmt.Sprintf("OUTP CH%d,ON", channel)); err != nil {
		return 0, err
	}

	resp, err := d.query(ctx, fmt.Sprintf("MEAS:VOLT? CH%d", channel))
	if err != nil || resp == "" {
		return volts, nil // no readback available: report the commanded setpoint
	}

	var readback float64
	if _, scanErr := fmt.Sscanf(resp, "%f", &readback); scanErr != nil {
		return volts, nil
	}

	return readback, nil
}

func floatParam(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
