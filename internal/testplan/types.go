// Package testplan provides the domain model for hierarchical test plans:
// ordered TestItems scoped to a (project, station, plan) and the static
// InstrumentConfig descriptors they reference.
//
// This is a pure domain package — no JSON tags, no database concerns. The
// (out-of-scope) HTTP/persistence layers map their own wire and row types
// onto these.
package testplan

import (
	"errors"
	"fmt"
)

// Sentinel errors for TestItem/plan validation.
var (
	// ErrDuplicateItemNo is returned when two items in a plan share item_no.
	ErrDuplicateItemNo = errors.New("duplicate item_no within plan")
	// ErrDuplicateItemName is returned when two items in a plan share item_name.
	ErrDuplicateItemName = errors.New("duplicate item_name within plan")
	// ErrNoEnabledItems is returned when a plan has no enabled items to run.
	ErrNoEnabledItems = errors.New("plan has no enabled items")
	// ErrItemNoNotIncreasing is returned when item_no does not strictly increase over order.
	ErrItemNoNotIncreasing = errors.New("item_no does not strictly increase over execution order")
)

type (
	// ValueType is the declared type a measured value must cast to before
	// limit evaluation. Spec §3/§4.1.
	ValueType string

	// LimitType selects the limit rule applied to a cast value. Spec §4.1.
	LimitType string

	// ConnectionKind discriminates the InstrumentConfig.Connection sum type.
	// Spec §3.
	ConnectionKind string
)

// ValueType enum values.
const (
	ValueTypeNone    ValueType = ""
	ValueTypeString  ValueType = "string"
	ValueTypeInteger ValueType = "integer"
	ValueTypeFloat   ValueType = "float"
)

// LimitType enum values.
const (
	LimitTypeNone       LimitType = "none"
	LimitTypeLower      LimitType = "lower"
	LimitTypeUpper      LimitType = "upper"
	LimitTypeBoth       LimitType = "both"
	LimitTypeEquality   LimitType = "equality"
	LimitTypeInequality LimitType = "inequality"
	LimitTypePartial    LimitType = "partial"
)

// ConnectionKind enum values.
const (
	ConnectionVISA   ConnectionKind = "VISA"
	ConnectionGPIB   ConnectionKind = "GPIB"
	ConnectionTCPIP  ConnectionKind = "TCPIP"
	ConnectionSerial ConnectionKind = "Serial"
	ConnectionLocal  ConnectionKind = "LOCAL"
	ConnectionSSH    ConnectionKind = "SSH"
)

// TestItem is one row of a test plan. Immutable within a session (spec §3).
type TestItem struct {
	ItemNo     int
	ItemName   string
	TestType   string
	SwitchMode string

	// Parameters is the JSON parameter bag: string -> scalar or array.
	Parameters map[string]interface{}

	ValueType ValueType
	LimitType LimitType

	LowerLimit *float64
	UpperLimit *float64
	EqLimit    string
	Unit       string

	// UseResult names/ordinals a prior item whose measured value is injected
	// as a parameter (spec §4.6).
	UseResult string

	Enabled bool

	TimeoutMs int
	WaitMsec  int
}

// Plan is an ordered set of TestItems scoped to one (project, station, name).
type Plan struct {
	Project string
	Station string
	Name    string
	Items   []TestItem
}

// Validate enforces invariant 1 of spec §3: item_no strictly increases over
// the execution order and item_name is unique within the plan.
func (p Plan) Validate() error {
	seenNo := make(map[int]struct{}, len(p.Items))
	seenName := make(map[string]struct{}, len(p.Items))

	lastNo := -1
	enabledCount := 0

	for _, item := range p.Items {
		if _, ok := seenNo[item.ItemNo]; ok {
			return fmt.Errorf("%w: %d", ErrDuplicateItemNo, item.ItemNo)
		}

		seenNo[item.ItemNo] = struct{}{}

		if _, ok := seenName[item.ItemName]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateItemName, item.ItemName)
		}

		seenName[item.ItemName] = struct{}{}

		if item.ItemNo <= lastNo {
			return fmt.Errorf("%w: item_no %d after %d", ErrItemNoNotIncreasing, item.ItemNo, lastNo)
		}

		lastNo = item.ItemNo

		if item.Enabled {
			enabledCount++
		}
	}

	if enabledCount == 0 {
		return ErrNoEnabledItems
	}

	return nil
}

// EnabledItems returns the items with Enabled=true, in plan order.
func (p Plan) EnabledItems() []TestItem {
	out := make([]TestItem, 0, len(p.Items))

	for _, item := range p.Items {
		if item.Enabled {
			out = append(out, item)
		}
	}

	return out
}

// Connection is the InstrumentConfig connection sum type (spec §3).
// Exactly one of the typed fields is populated, selected by Kind.
type Connection struct {
	Kind ConnectionKind

	// VISA / GPIB
	Address string
	Board   int

	// TCPIP
	Host string
	Port int

	// Serial
	SerialPort string
	Baud       int

	// Local
	Scheme string

	// SSH
	SSHUser string
	SSHKey  string
}

// InstrumentConfig is a static, immutable-after-load instrument descriptor
// (spec §3).
type InstrumentConfig struct {
	ID         string
	Type       string
	Name       string
	Connection Connection
	Enabled    bool
	Settings   map[string]interface{}
}
