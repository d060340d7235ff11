package guardian

import (
	"github.com/qqncnc/VPS-Traffic-Guardian/internal/app/config"
	"github.com/qqncnc/VPS-Traffic-Guardian/internal/app/guard"
	"github.com/qqncnc/VPS-Traffic-Guardian/internal/domain"
	"github.com/qqncnc/VPS-Traffic-Guardian/internal/ports"
)

// Sentinel errors surfaced by Runtime.Run and the sampling path.
var (
	ErrTelemetryUnavailable = guard.ErrTelemetryUnavailable
	ErrShutdownFailed       = guard.ErrShutdownFailed
)

// Config re-exports the root configuration struct so embedders can construct
// or tweak it programmatically before building a Runtime.
type Config = config.Config

type (
	ThresholdsConfig  = config.ThresholdsConfig
	EnforcementConfig = config.EnforcementConfig
	JournalConfig     = config.JournalConfig
	MetricsConfig     = config.MetricsConfig
	LoggingConfig     = config.LoggingConfig

	// Duration is the YAML-aware duration used by config fields.
	Duration = config.Duration
)

// Sample is one normalized telemetry observation.
type Sample = domain.Sample

// Mode is the guardian's policy state.
type Mode = domain.Mode

const (
	ModeNormal            = domain.ModeNormal
	ModeThrottled         = domain.ModeThrottled
	ModeShutdownInitiated = domain.ModeShutdownInitiated
)

// GuardianState is the per-tick decision state.
type GuardianState = domain.GuardianState

// Thresholds are the immutable policy limits.
type Thresholds = domain.Thresholds

// TelemetrySource supplies raw peer and counter readings.
type TelemetrySource = ports.TelemetrySource

// Counters are cumulative interface byte counters.
type Counters = ports.Counters

// Enforcer executes decisions against the environment.
type Enforcer = ports.Enforcer

// Observability receives logs, metrics, and transition records.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// LoadConfig loads and validates YAML configuration from disk.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}
