package testplan

import "time"

// Outcome is a MeasurementResult's pass/fail/error/skip disposition (spec §3).
type Outcome string

// Outcome enum values.
const (
	OutcomePass  Outcome = "PASS"
	OutcomeFail  Outcome = "FAIL"
	OutcomeError Outcome = "ERROR"
	OutcomeSkip  Outcome = "SKIP"
)

// MeasurementResult is created by a Measurement and appended to the Result
// Store exactly once per item in a session (spec §3, invariant 4).
//
// MeasuredValue carries the numeric form (persisted only when the raw value
// parsed as a finite decimal, per invariant 5); MeasuredText always carries
// the raw text form so the CSV writer and Validator see the un-mangled
// value regardless of its numeric-ness (spec §9 "conflating numeric and
// textual forms").
type MeasurementResult struct {
	ItemNo   int
	ItemName string
	Outcome  Outcome

	// MeasuredValue is non-nil only when the raw value parsed as a finite
	// decimal number.
	MeasuredValue *float64
	// MeasuredText is the raw string form of the measured value, always
	// populated (even for numeric results) so downstream text-only
	// consumers (script use_result injection, CSV) never lose precision or
	// formatting.
	MeasuredText string
	// IsNull is true when the raw measured value was absent entirely (e.g.
	// a script produced no output).
	IsNull bool

	ErrorMessage string
	ExecutionMs  int64
	Timestamp    time.Time
}
