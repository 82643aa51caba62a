package instrument

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/webpdtool/testcore/internal/testplan"
)

// Sentinel errors for registry lookups and loading.
var (
	// ErrConfigNotFound is returned by GetConfig for an unknown instrument id.
	ErrConfigNotFound = errors.New("instrument config not found")
	// ErrFactoryNotFound is returned by GetDriverFactory for an unregistered type.
	ErrFactoryNotFound = errors.New("driver factory not found")
	// ErrUnknownInstrumentType is returned when loading a config that
	// references a type with no registered factory.
	ErrUnknownInstrumentType = errors.New("unknown instrument type in config")
)

// builtinVirtualInstruments are always registered with Local connections
// (spec §4.4), regardless of the loaded config file's contents.
var builtinVirtualInstruments = map[string]string{
	"console_1": "console",
	"comport_1": "comport",
	"tcpip_1":   "tcpip",
}

// Registry maps instrument identifier -> static config, and instrument
// type -> driver factory. Loaded once at startup; never mutated during a
// session (spec §3, §4.4).
type Registry struct {
	configs   map[string]testplan.InstrumentConfig
	factories map[string]Factory
}

// NewRegistry builds an empty registry with the built-in virtual
// instruments pre-registered. Callers register additional driver factories
// with RegisterFactory before Load.
func NewRegistry() *Registry {
	r := &Registry{
		configs:   make(map[string]testplan.InstrumentConfig),
		factories: make(map[string]Factory),
	}

	for id, typ := range builtinVirtualInstruments {
		r.configs[id] = testplan.InstrumentConfig{
			ID:         id,
			Type:       typ,
			Name:       id,
			Connection: testplan.Connection{Kind: testplan.ConnectionLocal, Scheme: typ},
			Enabled:    true,
		}
	}

	return r
}

// RegisterFactory registers a driver factory for an instrument type. Must be
// called before Load for any non-virtual type referenced by the config file.
func (r *Registry) RegisterFactory(instrumentType string, factory Factory) {
	r.factories[strings.ToLower(instrumentType)] = factory
}

// instrumentConfigFile is the on-disk shape of one entry in the instrument
// configuration file (spec §6): an object keyed by instrument id.
type instrumentConfigFile struct {
	Type        string                 `json:"type" yaml:"type"`
	Name        string                 `json:"name" yaml:"name"`
	Connection  connectionFile         `json:"connection" yaml:"connection"`
	Enabled     bool                   `json:"enabled" yaml:"enabled"`
	Description string                 `json:"description" yaml:"description"`
	Settings    map[string]interface{} `json:"settings" yaml:"settings"`
}

type connectionFile struct {
	Type    string `json:"type" yaml:"type"`
	Address string `json:"address" yaml:"address"`
	Board   int    `json:"board" yaml:"board"`
	Host    string `json:"host" yaml:"host"`
	Port    int    `json:"port" yaml:"port"`
	Port2   string `json:"port_name" yaml:"port_name"` // serial device path, e.g. /dev/ttyUSB0
	Baud    int    `json:"baud" yaml:"baud"`
	Scheme  string `json:"scheme" yaml:"scheme"`
	User    string `json:"user" yaml:"user"`
	Key     string `json:"key" yaml:"key"`
}

// Load reads an instrument configuration file (JSON or YAML, picked by
// extension) and populates the registry. Registration of a type with no
// matching factory fails startup (spec §4.4).
func (r *Registry) Load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read instrument config %s: %w", path, err)
	}

	entries := make(map[string]instrumentConfigFile)

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &entries); err != nil {
			return fmt.Errorf("parse yaml instrument config: %w", err)
		}
	default:
		if err := json.Unmarshal(raw, &entries); err != nil {
			return fmt.Errorf("parse json instrument config: %w", err)
		}
	}

	for id, entry := range entries {
		cfg := testplan.InstrumentConfig{
			ID:      id,
			Type:    entry.Type,
			Name:    entry.Name,
			Enabled: entry.Enabled,
			Settings: entry.Settings,
			Connection: testplan.Connection{
				Kind:       testplan.ConnectionKind(entry.Connection.Type),
				Address:    entry.Connection.Address,
				Board:      entry.Connection.Board,
				Host:       entry.Connection.Host,
				Port:       entry.Connection.Port,
				SerialPort: entry.Connection.Port2,
				Baud:       entry.Connection.Baud,
				Scheme:     entry.Connection.Scheme,
				SSHUser:    entry.Connection.User,
				SSHKey:     entry.Connection.Key,
			},
		}

		if _, builtin := builtinVirtualInstruments[id]; !builtin {
			if _, ok := r.factories[strings.ToLower(cfg.Type)]; !ok {
				return fmt.Errorf("%w: %s (id=%s)", ErrUnknownInstrumentType, cfg.Type, id)
			}
		}

		r.configs[id] = cfg
	}

	return nil
}

// GetConfig returns the static config for an instrument id.
func (r *Registry) GetConfig(id string) (testplan.InstrumentConfig, error) {
	cfg, ok := r.configs[id]
	if !ok {
		return testplan.InstrumentConfig{}, fmt.Errorf("%w: %s", ErrConfigNotFound, id)
	}

	return cfg, nil
}

// GetDriverFactory returns the registered factory for an instrument type.
func (r *Registry) GetDriverFactory(instrumentType string) (Factory, error) {
	factory, ok := r.factories[strings.ToLower(instrumentType)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFactoryNotFound, instrumentType)
	}

	return factory, nil
}
