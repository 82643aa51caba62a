// Package instrument provides the Instrument Driver abstraction (C2), the
// Instrument Registry (C4), and the Connection Pool (C3) described in spec
// §4.2-§4.4.
package instrument

import (
	"context"
	"errors"
)

// Sentinel errors surfaced by drivers.
var (
	// ErrTransport is returned when the underlying transport (socket, serial,
	// subprocess) fails.
	ErrTransport = errors.New("instrument transport error")
	// ErrTimeout is returned when a driver operation exceeds its deadline.
	ErrTimeout = errors.New("instrument operation timed out")
	// ErrEmptyResponse is returned by a driver when real hardware produced
	// an empty response. Measurements translate this into the "No
	// instrument found" sentinel text rather than a bare ERROR (spec §4.2).
	ErrEmptyResponse = errors.New("empty response from instrument")
)

// Driver is the polymorphic capability set every instrument driver provides
// (spec §4.2): initialize, reset, generic command execution, and close.
// Drivers take a Connection as a constructor dependency — they never create
// or own the connection's lifetime (spec §9, inversion of ownership).
type Driver interface {
	Initialize(ctx context.Context) error
	Reset(ctx context.Context) error
	// ExecuteCommand runs one measurement-shaped command against the
	// instrument and returns a raw value: string, numeric, or nil.
	ExecuteCommand(ctx context.Context, params map[string]interface{}) (interface{}, error)
	Close() error
}

// VoltageReader is a capability extension for DMM/data-acquisition drivers
// that can read a scalar off one channel (spec §4.2 "measure_voltage").
type VoltageReader interface {
	MeasureVoltage(ctx context.Context, channel int, readType string) (float64, error)
}

// OutputSetter is a capability extension for power-supply drivers (spec
// §4.2 "set_output").
type OutputSetter interface {
	SetOutput(ctx context.Context, channel int, volts, amps float64) (readback float64, err error)
}

// RelayActuator is a capability extension for relay-switching drivers (spec
// §4.5 Relay measurement).
type RelayActuator interface {
	SetRelay(ctx context.Context, name string, on bool) error
}

// Factory constructs a Driver bound to a live Connection. Registered per
// instrument type in the Instrument Registry (C4).
type Factory func(conn *Connection) Driver
