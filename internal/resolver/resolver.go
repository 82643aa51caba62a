// Package resolver provides the Parameter Resolver (C6): merging direct
// TestItem columns, the JSON parameter bag, and use_result substitution into
// the effective ResolvedParameters for one item (spec §4.6).
package resolver

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/webpdtool/testcore/internal/template"
	"github.com/webpdtool/testcore/internal/testplan"
)

// Sentinel errors.
var (
	// ErrUseResultNotFound is returned when use_result does not resolve
	// within priorResults (spec §4.6, error kind USE_RESULT_NOT_FOUND).
	ErrUseResultNotFound = errors.New("use_result reference not found")
	// ErrMissingRequiredParameter is returned when a template-required
	// parameter is absent from the resolved set.
	ErrMissingRequiredParameter = errors.New("missing required parameter")
)

// PriorResults looks up a prior item's measured value by item_name first,
// then by the textual form of item_no (spec §4.6). Implementations are
// typically backed by the Result Store (C8).
type PriorResults interface {
	Lookup(key string) (value string, isNull bool, found bool)
}

// canonicalAliases maps recognised casing variants to the canonical
// lower-underscore parameter name used on the wire to Measurements (spec
// §4.6 "Case handling").
var canonicalAliases = map[string]string{
	"useresult":   "use_result",
	"use_result":  "use_result",
	"waitmsec":    "wait_msec",
	"wait_msec":   "wait_msec",
	"timeout":     "timeout",
	"command":     "command",
}

func canonicalName(name string) string {
	key := strings.ToLower(strings.ReplaceAll(name, "_", ""))
	if canon, ok := canonicalAliases[key]; ok {
		return canon
	}

	if canon, ok := canonicalAliases[strings.ToLower(name)]; ok {
		return canon
	}

	return name
}

// Resolve merges item's direct columns, JSON parameter bag, and use_result
// substitution (later wins, per spec §4.6 merge order), then enforces the
// catalog's required-parameter list.
func Resolve(item testplan.TestItem, catalog *template.Catalog, prior PriorResults) (map[string]interface{}, error) {
	resolved := make(map[string]interface{})

	// Layer 1: direct columns that double as legacy parameters.
	if item.WaitMsec != 0 {
		resolved["wait_msec"] = item.WaitMsec
	}

	if item.TimeoutMs != 0 {
		resolved["timeout"] = item.TimeoutMs
	}

	if item.UseResult != "" {
		resolved["use_result"] = item.UseResult
	}

	// Layer 2: the JSON parameter bag, canonicalising parameter names.
	for name, value := range item.Parameters {
		resolved[canonicalName(name)] = value
	}

	// Layer 3: use_result substitution — the parameter *name* is preserved,
	// its *value* replaced with the referenced prior result's measured
	// value (spec §4.6).
	if item.UseResult != "" {
		value, err := substituteUseResult(item.UseResult, prior)
		if err != nil {
			return nil, err
		}

		resolved["use_result"] = value
	}

	if err := enforceRequired(item, catalog, resolved); err != nil {
		return nil, err
	}

	return resolved, nil
}

// substituteUseResult resolves ref against priorResults, canonicalising a
// trailing ".0" away from numeric text to avoid type drift across the
// session (spec §4.6).
func substituteUseResult(ref string, prior PriorResults) (string, error) {
	value, isNull, found := prior.Lookup(ref)
	if !found {
		return "", fmt.Errorf("%w: %s", ErrUseResultNotFound, ref)
	}

	if isNull {
		return "", nil
	}

	return canonicalizeNumericText(value), nil
}

// canonicalizeNumericText strips a trailing ".0" from integral-looking
// decimal text (e.g. "123.0" -> "123") while leaving other decimals alone.
func canonicalizeNumericText(value string) string {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return value
	}

	if f == float64(int64(f)) && strings.HasSuffix(value, ".0") {
		return strconv.FormatInt(int64(f), 10)
	}

	return value
}

// enforceRequired validates resolved against the catalog entry for
// (item.TestType, item.SwitchMode). Wait and Script (Other) tolerate
// unknown parameters silently; all variants report the first missing
// required parameter (spec §4.6).
func enforceRequired(item testplan.TestItem, catalog *template.Catalog, resolved map[string]interface{}) error {
	entry, ok := catalog.Lookup(item.TestType, item.SwitchMode)
	if !ok {
		return nil // unknown combos are the Dispatcher's concern, not the Resolver's
	}

	for _, required := range entry.Required {
		if _, present := resolved[required]; !present {
			if _, present := resolved[canonicalName(required)]; present {
				continue
			}

			return fmt.Errorf("%w: %s", ErrMissingRequiredParameter, required)
		}
	}

	return nil
}
