package drivers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/webpdtool/testcore/internal/instrument"
)

// defaultDMMTimeout bounds a single SCPI query against a DMM/data acquisition
// unit when the caller supplied no item-level timeout.
const defaultDMMTimeout = 5 * time.Second

// DAQDriver drives a DAQ973A-style data-acquisition/DMM instrument over a
// SCPI-over-TCP (LXI) transport. Implements instrument.Driver and
// instrument.VoltageReader (spec §4.2, §4.5 PowerRead).
type DAQDriver struct {
	scpiBench
}

// NewDAQDriver is an instrument.Factory for "DAQ973A"-type instruments.
func NewDAQDriver(conn *instrument.Connection) instrument.Driver {
	return &DAQDriver{scpiBench{conn: conn}}
}

// ExecuteCommand dispatches generic params to MeasureVoltage using the
// Channel/Type parameters (spec §4.5 PowerRead required params).
func (d *DAQDriver) ExecuteCommand(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	channel, _ := toMillis(params["Channel"])

	readType, _ := params["Type"].(string)
	if readType == "" {
		readType = "DC"
	}

	return d.MeasureVoltage(ctx, int(channel), readType)
}

// MeasureVoltage queries one scalar reading from the configured channel.
func (d *DAQDriver) MeasureVoltage(ctx context.Context, channel int, readType string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultDMMTimeout)
	defer cancel()

	cmd := fmt.Sprintf("MEAS:VOLT:%s? (@%d)", readType, channel)

	resp, err := d.query(ctx, cmd)
	if err != nil {
		return 0, err
	}

	if resp == "" {
		return 0, instrument.ErrEmptyResponse
	}

	value, err := strconv.ParseFloat(resp, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: unparsable reading %q", instrument.ErrTransport, resp)
	}

	return value, nil
}
