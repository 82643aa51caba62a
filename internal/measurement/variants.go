package measurement

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/webpdtool/testcore/internal/instrument"
	"github.com/webpdtool/testcore/internal/instrument/drivers"
	"github.com/webpdtool/testcore/internal/testplan"
)

// noInstrumentFoundText is substituted for the measured value when a real
// instrument returns an unreadable/empty response (spec §4.2, §8 boundary
// behaviours). The Validator recognises this text (case-insensitively) and
// turns the item into an ERROR outcome whatever its limit rule.
const noInstrumentFoundText = "No instrument found"

// leaseAndDial acquires a Pool lease for instrumentID and dials the driver
// via registry-resolved factory, leaving the lease's release to the caller.
func leaseAndDial(ctx context.Context, pool *instrument.Pool, instrumentID string) (*instrument.Lease, instrument.Driver, error) {
	lease, err := pool.Acquire(ctx, instrumentID)
	if err != nil {
		if errors.Is(err, instrument.ErrConfigNotFound) {
			return nil, nil, fmt.Errorf("%w: %w", ErrInstrumentNotConfigured, err)
		}

		return nil, nil, err
	}

	driver, err := pool.Driver(instrumentID, lease)
	if err != nil {
		lease.Release()
		return nil, nil, err
	}

	return lease, driver, nil
}

func instrumentIDOf(params map[string]interface{}) (string, error) {
	id, _ := params["Instrument"].(string)
	if id == "" {
		return "", errors.New("Instrument parameter is required")
	}

	return id, nil
}

// PowerSet implements the "powerset" Measurement: set an output and read
// back the value the power supply actually produced.
type PowerSet struct{}

func (PowerSet) Execute(ctx context.Context, item testplan.TestItem, params map[string]interface{}, deps Deps) (interface{}, error) {
	id, err := instrumentIDOf(params)
	if err != nil {
		return nil, err
	}

	lease, driver, err := leaseAndDial(ctx, deps.Pool, id)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	setter, ok := driver.(instrument.OutputSetter)
	if !ok {
		return nil, fmt.Errorf("%w: instrument %s has no output-set capability", instrument.ErrTransport, id)
	}

	channel, _ := toInt(params["Channel"])
	volts, _ := toFloat(params["SetVolt"])
	amps, _ := toFloat(params["SetCurr"])

	return setter.SetOutput(ctx, channel, volts, amps)
}

// PowerRead implements the "powerread" Measurement: a DMM/DAQ voltage read.
// An empty SCPI response is normalised to the "No instrument found" sentinel
// text rather than propagated as a driver error (spec §4.2).
type PowerRead struct{}

func (PowerRead) Execute(ctx context.Context, item testplan.TestItem, params map[string]interface{}, deps Deps) (interface{}, error) {
	id, err := instrumentIDOf(params)
	if err != nil {
		return nil, err
	}

	lease, driver, err := leaseAndDial(ctx, deps.Pool, id)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	reader, ok := driver.(instrument.VoltageReader)
	if !ok {
		return nil, fmt.Errorf("%w: instrument %s has no voltage-read capability", instrument.ErrTransport, id)
	}

	channel, _ := toInt(params["Channel"])
	readType, _ := params["Type"].(string)

	value, err := reader.MeasureVoltage(ctx, channel, readType)
	if err != nil {
		if errors.Is(err, instrument.ErrEmptyResponse) {
			return noInstrumentFoundText, nil
		}

		return nil, err
	}

	return value, nil
}

// Command implements console/comport/tcpip command-exec measurements,
// selected by switch_mode rather than test_type (spec §4.5 step 2). An
// empty response is normalised to the "No instrument found" sentinel, same
// as PowerRead's empty-response handling (spec §8 boundary behaviour:
// "Command measurement whose driver returns empty string → outcome ERROR
// with 'No instrument found'").
type Command struct{}

func (Command) Execute(ctx context.Context, item testplan.TestItem, params map[string]interface{}, deps Deps) (interface{}, error) {
	id, err := instrumentIDOf(params)
	if err != nil {
		return nil, err
	}

	lease, driver, err := leaseAndDial(ctx, deps.Pool, id)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	// The Resolver hands over the canonical lower-case "command"/"timeout";
	// the command drivers read "Command"/"Timeout".
	cmdParams := make(map[string]interface{}, len(params)+2)
	for k, v := range params {
		cmdParams[k] = v
	}
	for canonical, driverKey := range map[string]string{"command": "Command", "timeout": "Timeout"} {
		if v, ok := cmdParams[canonical]; ok {
			if _, set := cmdParams[driverKey]; !set {
				cmdParams[driverKey] = v
			}
		}
	}

	out, err := driver.ExecuteCommand(ctx, cmdParams)
	if err != nil {
		return nil, err
	}

	if text, ok := out.(string); ok && text == "" {
		return noInstrumentFoundText, nil
	}

	return out, nil
}

// Script implements the "Other" Measurement: invoking an operator-authored
// Python script under deps.ScriptsDir, optionally passing use_result as its
// sole argument (spec §4.5 Script). Output parsing prefers integer, then
// float, then raw string; empty stdout resolves to a null measured value,
// not the "No instrument found" sentinel (spec §8).
type Script struct{}

func (Script) Execute(ctx context.Context, item testplan.TestItem, params map[string]interface{}, deps Deps) (interface{}, error) {
	scriptName, _ := params["Script"].(string)
	if scriptName == "" {
		scriptName, _ = params["command"].(string)
	}

	if scriptName == "" {
		return nil, errors.New("Script parameter is required")
	}

	args := []string{}
	if v, ok := params["use_result"]; ok {
		if s := fmt.Sprint(v); s != "" {
			args = append(args, s)
		}
	}

	out, err := drivers.RunScript(ctx, deps.ScriptsDir, scriptName, args)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(out)
	if trimmed == "" {
		return nil, nil
	}

	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return i, nil
	}

	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f, nil
	}

	return trimmed, nil
}

// Wait implements the "wait" Measurement: sleep for wait_msec, honouring
// session cancellation (spec §4.5 Wait). A non-positive wait_msec is an
// ERROR, not a no-op (spec §8 boundary behaviour).
type Wait struct{}

func (Wait) Execute(ctx context.Context, item testplan.TestItem, params map[string]interface{}, deps Deps) (interface{}, error) {
	raw, ok := params["wait_msec"]
	if !ok {
		return nil, errors.New("wait_msec parameter is required")
	}

	ms, ok := toInt(raw)
	if !ok {
		return nil, fmt.Errorf("wait_msec is not a valid integer: %v", raw)
	}

	if ms <= 0 {
		return nil, fmt.Errorf("wait_msec must be positive, got %d", ms)
	}

	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C:
		return int64(ms), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Relay implements the "relay" Measurement.
type Relay struct{}

func (Relay) Execute(ctx context.Context, item testplan.TestItem, params map[string]interface{}, deps Deps) (interface{}, error) {
	id, err := instrumentIDOf(params)
	if err != nil {
		return nil, err
	}

	lease, driver, err := leaseAndDial(ctx, deps.Pool, id)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	actuator, ok := driver.(instrument.RelayActuator)
	if !ok {
		return nil, fmt.Errorf("%w: instrument %s has no relay capability", instrument.ErrTransport, id)
	}

	name, _ := params["RelayName"].(string)
	on := strings.EqualFold(fmt.Sprint(params["Action"]), "ON")

	if err := actuator.SetRelay(ctx, name, on); err != nil {
		return nil, err
	}

	if on {
		return "ON", nil
	}

	return "OFF", nil
}

// Generic is a parametric pass-through measurement for sfcstep/getsn/opjudge
// templates: it forwards params verbatim to the instrument's ExecuteCommand,
// letting the Template Catalog's required-parameter list and the Validator
// do the rest of the work (spec §4.5).
type Generic struct{}

func (Generic) Execute(ctx context.Context, item testplan.TestItem, params map[string]interface{}, deps Deps) (interface{}, error) {
	id, err := instrumentIDOf(params)
	if err != nil {
		return nil, err
	}

	lease, driver, err := leaseAndDial(ctx, deps.Pool, id)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	return driver.ExecuteCommand(ctx, params)
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringifyRaw(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	default:
		return fmt.Sprint(v)
	}
}

func parseFiniteDecimal(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return 0, false
	}
}
