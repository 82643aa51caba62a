// Package measurement provides the Measurement Dispatcher (C5) and the
// Measurement variants it selects between, per spec §4.5.
package measurement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/webpdtool/testcore/internal/instrument"
	"github.com/webpdtool/testcore/internal/template"
	"github.com/webpdtool/testcore/internal/testplan"
	"github.com/webpdtool/testcore/internal/validation"
)

// Sentinel errors for dispatch-level failures (spec §7 error kinds table).
var (
	// ErrUnknownMeasurement is returned when (test_type, switch_mode) is not
	// in the Template Catalog and test_type is not Other/Wait.
	ErrUnknownMeasurement = errors.New("unknown measurement type/mode")
	// ErrInstrumentNotConfigured is returned when params reference an
	// instrument id the Registry doesn't know.
	ErrInstrumentNotConfigured = errors.New("instrument not configured")
)

// defaultOverallTimeout is the implementation default overall ceiling for a
// single measurement when item.TimeoutMs is absent (spec §4.5).
const defaultOverallTimeout = 30 * time.Second

// directSwitchModes select their Measurement by switch_mode alone,
// regardless of test_type aliasing (spec §4.5 step 2).
var directSwitchModes = map[string]struct{}{
	"console": {},
	"comport": {},
	"tcpip":   {},
}

// testTypeAliases collapse case-insensitive aliases onto a canonical
// measurement kind, resolved once at dispatch time rather than per call
// (spec §9: "aliases resolved at registration time").
var testTypeAliases = map[string]string{
	"powerset":     "powerset",
	"powerread":    "powerread",
	"command":      "command",
	"console":      "command",
	"comport":      "command",
	"tcpip":        "command",
	"command_test": "command",
	"other":        "other",
	"wait":         "wait",
	"relay":        "relay",
	"sfcstep":      "sfcstep",
	"getsn":        "getsn",
	"opjudge":      "opjudge",
}

// Measurement is a polymorphic unit of work (spec §3). Execute acquires any
// instrument lease it needs (scoped via deps.Pool), runs the work, and
// returns a raw measured value: string, numeric, or nil.
type Measurement interface {
	Execute(ctx context.Context, item testplan.TestItem, params map[string]interface{}, deps Deps) (raw interface{}, err error)
}

// Deps are the resources a Measurement needs beyond its item/params: the
// Connection Pool it borrows leases from, and ambient configuration.
type Deps struct {
	Pool       *instrument.Pool
	ScriptsDir string
}

// Dispatcher selects and executes the Measurement for one TestItem (C5).
type Dispatcher struct {
	catalog  *template.Catalog
	registry map[string]Measurement
}

// NewDispatcher builds a Dispatcher wired to catalog with the built-in
// Measurement variants registered.
func NewDispatcher(catalog *template.Catalog) *Dispatcher {
	d := &Dispatcher{
		catalog: catalog,
		registry: map[string]Measurement{
			"powerset":  PowerSet{},
			"powerread": PowerRead{},
			"command":   Command{},
			"other":     Script{},
			"wait":      Wait{},
			"relay":     Relay{},
			"sfcstep":   Generic{},
			"getsn":     Generic{},
			"opjudge":   Generic{},
		},
	}

	return d
}

// normalizeKind implements the selection algorithm of spec §4.5.
func normalizeKind(testType, switchMode string) (kind string, ok bool) {
	switchLower := strings.ToLower(strings.TrimSpace(switchMode))
	if _, direct := directSwitchModes[switchLower]; direct {
		return "command", true
	}

	kind, ok = testTypeAliases[strings.ToLower(strings.TrimSpace(testType))]

	return kind, ok
}

// Dispatch executes item under resolvedParams, producing a MeasurementResult
// that is PASS/FAIL/ERROR/SKIP and carries both the numeric and textual form
// of the measured value (spec §4.5, invariant 5).
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	item testplan.TestItem,
	resolvedParams map[string]interface{},
	deps Deps,
) testplan.MeasurementResult {
	start := time.Now()

	kind, ok := normalizeKind(item.TestType, item.SwitchMode)
	if !ok {
		return errorResult(item, start, fmt.Errorf("%w: test_type=%s switch_mode=%s", ErrUnknownMeasurement, item.TestType, item.SwitchMode))
	}

	catalogTestType := item.TestType
	if kind == "command" {
		// Direct switch_mode selection bypasses test_type aliasing (spec
		// §4.5 step 2); the catalog entry still lives under "command".
		catalogTestType = "command"
	}

	if kind != "other" && kind != "wait" && !d.catalog.Known(catalogTestType, item.SwitchMode) {
		return errorResult(item, start, fmt.Errorf("%w: test_type=%s switch_mode=%s", ErrUnknownMeasurement, item.TestType, item.SwitchMode))
	}

	impl, ok := d.registry[kind]
	if !ok {
		return errorResult(item, start, fmt.Errorf("%w: %s", ErrUnknownMeasurement, kind))
	}

	timeout := time.Duration(item.TimeoutMs) * time.Millisecond
	if item.TimeoutMs <= 0 {
		timeout = defaultOverallTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := runWithRecover(runCtx, impl, item, resolvedParams, deps)
	if err != nil {
		if runCtx.Err() != nil && ctx.Err() == nil {
			return errorResult(item, start, fmt.Errorf("%w: timeout", instrument.ErrTimeout))
		}

		if ctx.Err() != nil {
			return errorResult(item, start, errors.New("aborted"))
		}

		return errorResult(item, start, err)
	}

	result := validation.Validate(raw, item.ValueType, item.LimitType, item.LowerLimit, item.UpperLimit, item.EqLimit)

	return buildResult(item, start, raw, result)
}

// runWithRecover converts a Measurement panic into an error at the
// Dispatcher's outer edge (spec §9: "the Dispatcher converts any unhandled
// failure into an ERROR result at its outer edge").
func runWithRecover(
	ctx context.Context,
	impl Measurement,
	item testplan.TestItem,
	params map[string]interface{},
	deps Deps,
) (raw interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("measurement panic: %v", r)
		}
	}()

	return impl.Execute(ctx, item, params, deps)
}

func errorResult(item testplan.TestItem, start time.Time, err error) testplan.MeasurementResult {
	return testplan.MeasurementResult{
		ItemNo:       item.ItemNo,
		ItemName:     item.ItemName,
		Outcome:      testplan.OutcomeError,
		ErrorMessage: err.Error(),
		IsNull:       true,
		ExecutionMs:  time.Since(start).Milliseconds(),
		Timestamp:    time.Now(),
	}
}

// buildResult materialises the numeric/text split of invariant 5: a numeric
// value is persisted only when it parses as a finite decimal; otherwise the
// raw text is carried for the CSV writer/Validator and MeasuredValue is nil.
func buildResult(item testplan.TestItem, start time.Time, raw interface{}, v validation.Result) testplan.MeasurementResult {
	result := testplan.MeasurementResult{
		ItemNo:       item.ItemNo,
		ItemName:     item.ItemName,
		Outcome:      v.Outcome,
		ErrorMessage: v.ErrorMessage,
		ExecutionMs:  time.Since(start).Milliseconds(),
		Timestamp:    time.Now(),
	}

	if raw == nil {
		result.IsNull = true

		return result
	}

	text := stringifyRaw(raw)
	result.MeasuredText = text

	if f, ok := parseFiniteDecimal(raw); ok {
		result.MeasuredValue = &f
	}

	return result
}
