// Package validation provides the Validator (C1): casting a raw measured
// value to a declared ValueType and testing it against a declared LimitType,
// per spec §4.1.
package validation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/webpdtool/testcore/internal/testplan"
)

// noInstrumentSentinel is the case-insensitive text that forces ERROR
// regardless of limit rule — drivers use it to signal hardware absence
// without an error return (spec §4.1, §4.2).
const noInstrumentSentinel = "no instrument found"

// floatEqualityTolerance is the relative tolerance applied to float equality
// comparisons (spec §4.1 equality rule).
const floatEqualityTolerance = 1e-9

// Sentinel errors.
var (
	// ErrUnknownLimitType is returned for a LimitType outside the declared enum.
	ErrUnknownLimitType = errors.New("unknown limit type")
	// ErrMissingLimit is returned when a limit rule is missing its required bound(s).
	ErrMissingLimit = errors.New("limit rule missing required bound")
)

// Raw is the measured value as handed to Validate: a string, a numeric type,
// or nil (absent value).
type Raw = interface{}

// Result is the outcome of validating one measured value.
type Result struct {
	Outcome      testplan.Outcome
	ErrorMessage string
}

// Validate casts measured to valueType and tests it against the limit rule
// described by limitType/lower/upper/eqLimit, per spec §4.1.
func Validate(
	measured Raw,
	valueType testplan.ValueType,
	limitType testplan.LimitType,
	lower, upper *float64,
	eqLimit string,
) Result {
	if text, ok := measured.(string); ok && strings.EqualFold(strings.TrimSpace(text), noInstrumentSentinel) {
		return Result{Outcome: testplan.OutcomeError, ErrorMessage: "No instrument found"}
	}

	cast, text, err := cast(measured, valueType)
	if err != nil {
		return Result{Outcome: testplan.OutcomeError, ErrorMessage: err.Error()}
	}

	return applyLimit(cast, text, valueType, limitType, lower, upper, eqLimit)
}

// castValue is the result of casting a raw measured value to its declared
// ValueType: exactly one of Number/Text is meaningful, selected by IsString.
type castValue struct {
	IsString bool
	Number   float64
	Text     string
}

// cast implements the casting rules of spec §4.1.
func cast(measured Raw, valueType testplan.ValueType) (castValue, string, error) {
	text := stringify(measured)

	switch valueType {
	case testplan.ValueTypeString, testplan.ValueTypeNone:
		return castValue{IsString: true, Text: text}, text, nil

	case testplan.ValueTypeInteger:
		n, err := parseInteger(text)
		if err != nil {
			return castValue{}, text, fmt.Errorf("cannot cast %q to integer: %w", text, err)
		}

		return castValue{Number: n}, text, nil

	case testplan.ValueTypeFloat:
		n, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return castValue{}, text, fmt.Errorf("cannot cast %q to float", text)
		}

		return castValue{Number: n}, text, nil

	default:
		return castValue{}, text, fmt.Errorf("unknown value type %q", valueType)
	}
}

// stringify renders a raw measured value (string, numeric, or nil) to text.
func stringify(measured Raw) string {
	switch v := measured.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// parseInteger accepts decimal or prefixed-base (0x, 0o, 0b) integers and
// rejects non-integral numeric text such as "3.5".
func parseInteger(text string) (float64, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, errors.New("empty value")
	}

	if n, err := strconv.ParseInt(trimmed, 0, 64); err == nil {
		return float64(n), nil
	}

	// Fall back to float parse to reject non-integral numerics with a clear message.
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("%q is not integral", trimmed)
		}

		return f, nil
	}

	return 0, fmt.Errorf("%q is not a valid integer", trimmed)
}

// applyLimit evaluates the limit rule against the cast value, short-
// circuiting on first failure per spec §4.1.
func applyLimit(
	value castValue,
	rawText string,
	valueType testplan.ValueType,
	limitType testplan.LimitType,
	lower, upper *float64,
	eqLimit string,
) Result {
	switch limitType {
	case testplan.LimitTypeNone, "":
		return Result{Outcome: testplan.OutcomePass}

	case testplan.LimitTypeLower:
		if lower == nil {
			return errResult(ErrMissingLimit, "lower")
		}

		return passFail(!value.IsString && value.Number >= *lower)

	case testplan.LimitTypeUpper:
		if upper == nil {
			return errResult(ErrMissingLimit, "upper")
		}

		return passFail(!value.IsString && value.Number <= *upper)

	case testplan.LimitTypeBoth:
		if lower == nil || upper == nil {
			return errResult(ErrMissingLimit, "both")
		}

		return passFail(!value.IsString && value.Number >= *lower && value.Number <= *upper)

	case testplan.LimitTypeEquality:
		return passFail(equals(value, rawText, valueType, eqLimit))

	case testplan.LimitTypeInequality:
		return passFail(!equals(value, rawText, valueType, eqLimit))

	case testplan.LimitTypePartial:
		return passFail(strings.Contains(rawText, eqLimit))

	default:
		return errResult(ErrUnknownLimitType, string(limitType))
	}
}

// equals implements the equality rule: exact decimal compare, except for
// value_type=float which applies a relative tolerance of 1e-9 (spec §4.1).
func equals(value castValue, rawText string, valueType testplan.ValueType, eqLimit string) bool {
	if value.IsString {
		return rawText == eqLimit
	}

	target, err := strconv.ParseFloat(strings.TrimSpace(eqLimit), 64)
	if err != nil {
		return false
	}

	if valueType == testplan.ValueTypeFloat {
		if target == 0 {
			return math.Abs(value.Number) < floatEqualityTolerance
		}

		return math.Abs(value.Number-target)/math.Abs(target) <= floatEqualityTolerance
	}

	return value.Number == target
}

func passFail(pass bool) Result {
	if pass {
		return Result{Outcome: testplan.OutcomePass}
	}

	return Result{Outcome: testplan.OutcomeFail}
}

func errResult(sentinel error, detail string) Result {
	return Result{Outcome: testplan.OutcomeError, ErrorMessage: fmt.Sprintf("%s: %s", sentinel.Error(), detail)}
}
