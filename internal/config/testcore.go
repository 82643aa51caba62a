package config

import "time"

const (
	defaultReportMaxAgeDays = 30
	defaultIdleTimeout      = 5 * time.Minute
	defaultAbortGrace       = 10 * time.Second
)

// ScriptsConfig configures the Script ("Other") measurement's sandbox
// directory (spec §6 SCRIPTS_DIR).
type ScriptsConfig struct {
	// Dir is resolved against the process's working-root when relative
	// (spec §6: "not against any source-file location").
	Dir string
}

// LoadScriptsConfig reads SCRIPTS_DIR.
func LoadScriptsConfig() ScriptsConfig {
	return ScriptsConfig{Dir: GetEnvStr("SCRIPTS_DIR", "./scripts")}
}

// ReportConfig configures the Report Writer (C9) from REPORT_* env vars
// (spec §6).
type ReportConfig struct {
	BaseDir    string
	AutoSave   bool
	MaxAgeDays int
}

// LoadReportConfig reads REPORT_BASE_DIR, REPORT_AUTO_SAVE, REPORT_MAX_AGE_DAYS.
func LoadReportConfig() ReportConfig {
	return ReportConfig{
		BaseDir:    GetEnvStr("REPORT_BASE_DIR", "./reports"),
		AutoSave:   GetEnvBool("REPORT_AUTO_SAVE", true),
		MaxAgeDays: GetEnvInt("REPORT_MAX_AGE_DAYS", defaultReportMaxAgeDays),
	}
}

// PoolConfig configures the Connection Pool (C3).
type PoolConfig struct {
	IdleTimeout time.Duration
}

// LoadPoolConfig reads INSTRUMENT_IDLE_TIMEOUT.
func LoadPoolConfig() PoolConfig {
	return PoolConfig{IdleTimeout: GetEnvDuration("INSTRUMENT_IDLE_TIMEOUT", defaultIdleTimeout)}
}

// SessionEngineConfig configures the Session Engine (C7).
type SessionEngineConfig struct {
	AbortGracePeriod time.Duration
	KafkaBrokers     []string
}

// LoadSessionEngineConfig reads SESSION_ABORT_GRACE and KAFKA_BROKERS.
func LoadSessionEngineConfig() SessionEngineConfig {
	return SessionEngineConfig{
		AbortGracePeriod: GetEnvDuration("SESSION_ABORT_GRACE", defaultAbortGrace),
		KafkaBrokers:     ParseCommaSeparatedList(GetEnvStr("KAFKA_BROKERS", "")),
	}
}

// InstrumentConfigPath is the path to the instrument configuration file
// (JSON or YAML, spec §6), resolved from INSTRUMENT_CONFIG_PATH.
func InstrumentConfigPath() string {
	return GetEnvStr("INSTRUMENT_CONFIG_PATH", "./config/instruments.yaml")
}
