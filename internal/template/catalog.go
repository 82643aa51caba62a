// Package template provides the static, in-process Template Catalog (C10):
// a case-insensitive (test_type, switch_mode) -> {required, optional,
// example} lookup used by the Parameter Resolver for validation and
// (out of core scope) by a UI query endpoint. Spec §4.10.
package template

import "strings"

// Entry describes one (test_type, switch_mode) combination.
type Entry struct {
	Required []string
	Optional []string
	Example  map[string]interface{}
}

// Catalog is an immutable-at-runtime map of test_type -> switch_mode -> Entry.
// Keys are stored lower-cased; lookups normalise case.
type Catalog struct {
	byType map[string]map[string]Entry
}

// key normalises a (test_type, switch_mode) pair for case-insensitive lookup.
func key(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// New builds the built-in catalog described in spec §4.5's measurement
// variant rules.
func New() *Catalog {
	c := &Catalog{byType: make(map[string]map[string]Entry)}

	c.register("powerset", "*", Entry{
		Required: []string{"Instrument", "SetVolt", "SetCurr", "Channel"},
		Optional: []string{"OVP", "OCP", "Delay"},
		Example: map[string]interface{}{
			"Instrument": "psu_1", "SetVolt": 5.0, "SetCurr": 1.0, "Channel": 1,
		},
	})

	c.register("powerread", "*", Entry{
		Required: []string{"Instrument", "Channel", "Item", "Type"},
		Example: map[string]interface{}{
			"Instrument": "daq973a_1", "Channel": 101, "Item": "volt", "Type": "DC",
		},
	})

	for _, mode := range []string{"console", "comport", "tcpip"} {
		c.register("command", mode, Entry{
			Required: []string{"Instrument", "Command"},
			Optional: []string{"Timeout", "ResponseLineCount", "SettlingTime"},
			Example:  map[string]interface{}{"Instrument": mode + "_1", "Command": "*IDN?"},
		})
	}

	c.register("other", "*", Entry{
		Optional: []string{"use_result"},
		Example:  map[string]interface{}{},
	})

	c.register("wait", "*", Entry{
		Required: []string{"wait_msec"},
		Example:  map[string]interface{}{"wait_msec": 1000},
	})

	c.register("relay", "*", Entry{
		Required: []string{"RelayName", "Action"},
		Example:  map[string]interface{}{"RelayName": "K1", "Action": "ON"},
	})

	c.register("sfcstep", "*", Entry{
		Optional: []string{"Step"},
		Example:  map[string]interface{}{},
	})

	c.register("getsn", "*", Entry{
		Example: map[string]interface{}{},
	})

	c.register("opjudge", "*", Entry{
		Optional: []string{"Criteria"},
		Example:  map[string]interface{}{},
	})

	return c
}

func (c *Catalog) register(testType, switchMode string, entry Entry) {
	tt := key(testType)
	if c.byType[tt] == nil {
		c.byType[tt] = make(map[string]Entry)
	}

	c.byType[tt][key(switchMode)] = entry
}

// Lookup returns the Entry for (testType, switchMode), falling back to the
// wildcard "*" switch_mode entry registered for that test_type (most
// variants validate parameters the same way regardless of switch_mode).
func (c *Catalog) Lookup(testType, switchMode string) (Entry, bool) {
	modes, ok := c.byType[key(testType)]
	if !ok {
		return Entry{}, false
	}

	if entry, ok := modes[key(switchMode)]; ok {
		return entry, true
	}

	entry, ok := modes["*"]

	return entry, ok
}

// Known reports whether (testType, switchMode) is a recognised combination.
func (c *Catalog) Known(testType, switchMode string) bool {
	_, ok := c.Lookup(testType, switchMode)

	return ok
}

// ListTemplates returns the full catalog, grouped by test_type then
// switch_mode, for the (out-of-core-scope) UI population endpoint (spec §6).
func (c *Catalog) ListTemplates() map[string]map[string]Entry {
	out := make(map[string]map[string]Entry, len(c.byType))

	for t, modes := range c.byType {
		inner := make(map[string]Entry, len(modes))
		for m, e := range modes {
			inner[m] = e
		}

		out[t] = inner
	}

	return out
}

// ListValidationTypes returns the known value_type and limit_type enums
// (spec §6).
func ListValidationTypes() (valueTypes, limitTypes []string) {
	return []string{"string", "integer", "float"},
		[]string{"none", "lower", "upper", "both", "equality", "inequality", "partial"}
}
