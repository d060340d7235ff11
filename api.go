package guardian

import (
	base "github.com/qqncnc/VPS-Traffic-Guardian/pkg/guardian"
)

// Re-exported errors for convenience.
var (
	ErrTelemetryUnavailable = base.ErrTelemetryUnavailable
	ErrShutdownFailed       = base.ErrShutdownFailed
)

// Type aliases so consumers can import the module root directly.
type (
	Config            = base.Config
	ThresholdsConfig  = base.ThresholdsConfig
	EnforcementConfig = base.EnforcementConfig
	JournalConfig     = base.JournalConfig
	MetricsConfig     = base.MetricsConfig
	LoggingConfig     = base.LoggingConfig
	Duration          = base.Duration
	Sample            = base.Sample
	Mode              = base.Mode
	GuardianState     = base.GuardianState
	Thresholds        = base.Thresholds
	TelemetrySource   = base.TelemetrySource
	Counters          = base.Counters
	Enforcer          = base.Enforcer
	Observability     = base.Observability
	Field             = base.Field
	Runtime           = base.Runtime
	Option            = base.Option
)

const (
	ModeNormal            = base.ModeNormal
	ModeThrottled         = base.ModeThrottled
	ModeShutdownInitiated = base.ModeShutdownInitiated
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

// Runtime and options.
func New(cfg *Config, opts ...Option) (*Runtime, error) {
	return base.New(cfg, opts...)
}

func WithTelemetrySource(src TelemetrySource) Option {
	return base.WithTelemetrySource(src)
}

func WithEnforcer(enf Enforcer) Option {
	return base.WithEnforcer(enf)
}

func WithObservability(obs Observability) Option {
	return base.WithObservability(obs)
}

func WithShutdownHook(fn func(reason string) error) Option {
	return base.WithShutdownHook(fn)
}
