package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/qqncnc/VPS-Traffic-Guardian/internal/domain"
)

// Backend names accepted under enforcement.backend.
const (
	BackendTC        = "tc"
	BackendInProcess = "inprocess"
	BackendLog       = "log"
)

// Duration is a time.Duration that decodes YAML scalars in Go duration
// syntax ("500ms", "15m") as well as plain nanosecond integers.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var i int64
	if err := n.Decode(&i); err == nil {
		*d = Duration(i)
		return nil
	}
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

type Config struct {
	Interface      string        `yaml:"interface"`
	TickInterval   Duration `yaml:"tick_interval"`
	SampleTimeout  Duration `yaml:"sample_timeout"`
	EnforceTimeout Duration `yaml:"enforce_timeout"`
	DailyResetHour int      `yaml:"daily_reset_hour"`

	Thresholds  ThresholdsConfig  `yaml:"thresholds"`
	Enforcement EnforcementConfig `yaml:"enforcement"`
	Journal     JournalConfig     `yaml:"journal"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ThresholdsConfig struct {
	MaxPeerIPs             int      `yaml:"max_peer_ips"`
	MaxDailyUniquePeers    int      `yaml:"max_daily_unique_peers"`
	SustainedHighLoadBPS   float64  `yaml:"sustained_high_load_bps"`
	SustainedHighLoadTicks int      `yaml:"sustained_high_load_ticks"`
	RecoveryBPS            float64  `yaml:"recovery_bps"`
	ThrottleDuration       Duration `yaml:"throttle_duration"`
	DailyByteCap           int64    `yaml:"daily_byte_cap"`
	ThrottledRateBPS       float64  `yaml:"throttled_rate_bps"`
	BaseRateBPS            float64  `yaml:"base_rate_bps"`
}

type EnforcementConfig struct {
	Backend string `yaml:"backend"` // "tc", "inprocess", or "log"
}

type JournalConfig struct {
	Path string `yaml:"path"` // empty disables the daybook journal
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level           string `yaml:"level"`
	AuditFile       string `yaml:"audit_file"`
	AuditMaxSizeMB  int    `yaml:"audit_max_size_mb"`
	AuditMaxBackups int    `yaml:"audit_max_backups"`
	AuditMaxAgeDays int    `yaml:"audit_max_age_days"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Interface == "" {
		c.Interface = "eth0"
	}
	if c.TickInterval == 0 {
		c.TickInterval = Duration(time.Second)
	}
	if c.SampleTimeout == 0 {
		c.SampleTimeout = c.TickInterval / 2
	}
	if c.EnforceTimeout == 0 {
		c.EnforceTimeout = Duration(5 * time.Second)
	}

	t := &c.Thresholds
	if t.MaxPeerIPs == 0 {
		t.MaxPeerIPs = 8
	}
	if t.MaxDailyUniquePeers == 0 {
		t.MaxDailyUniquePeers = 15
	}
	if t.SustainedHighLoadBPS == 0 {
		t.SustainedHighLoadBPS = 100_000_000
	}
	if t.SustainedHighLoadTicks == 0 {
		t.SustainedHighLoadTicks = 10
	}
	if t.ThrottleDuration == 0 {
		t.ThrottleDuration = Duration(15 * time.Minute)
	}
	if t.DailyByteCap == 0 {
		t.DailyByteCap = 100 << 30
	}
	if t.ThrottledRateBPS == 0 {
		t.ThrottledRateBPS = 60_000_000
	}
	if t.BaseRateBPS == 0 {
		t.BaseRateBPS = 150_000_000
	}

	if c.Enforcement.Backend == "" {
		c.Enforcement.Backend = BackendTC
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.AuditMaxSizeMB == 0 {
		c.Logging.AuditMaxSizeMB = 10
	}
	if c.Logging.AuditMaxBackups == 0 {
		c.Logging.AuditMaxBackups = 3
	}
}

func (c *Config) Validate() error {
	if c.Interface == "" {
		return fmt.Errorf("interface is required")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be > 0")
	}
	if c.SampleTimeout <= 0 || c.SampleTimeout >= c.TickInterval {
		return fmt.Errorf("sample_timeout must be > 0 and shorter than tick_interval")
	}
	if c.DailyResetHour < 0 || c.DailyResetHour > 23 {
		return fmt.Errorf("daily_reset_hour must be in [0,23]")
	}

	t := c.Thresholds
	if t.MaxPeerIPs <= 0 {
		return fmt.Errorf("thresholds.max_peer_ips must be > 0")
	}
	if t.MaxDailyUniquePeers < 0 {
		return fmt.Errorf("thresholds.max_daily_unique_peers must be >= 0")
	}
	if t.SustainedHighLoadBPS <= 0 {
		return fmt.Errorf("thresholds.sustained_high_load_bps must be > 0")
	}
	if t.SustainedHighLoadTicks < 1 {
		return fmt.Errorf("thresholds.sustained_high_load_ticks must be >= 1")
	}
	if t.RecoveryBPS < 0 {
		return fmt.Errorf("thresholds.recovery_bps must be >= 0")
	}
	if t.ThrottleDuration <= 0 {
		return fmt.Errorf("thresholds.throttle_duration must be > 0")
	}
	if t.DailyByteCap <= 0 {
		return fmt.Errorf("thresholds.daily_byte_cap must be > 0")
	}
	if t.ThrottledRateBPS <= 0 {
		return fmt.Errorf("thresholds.throttled_rate_bps must be > 0")
	}
	if t.BaseRateBPS < 0 {
		return fmt.Errorf("thresholds.base_rate_bps must be >= 0")
	}
	if t.BaseRateBPS > 0 && t.ThrottledRateBPS >= t.BaseRateBPS {
		return fmt.Errorf("thresholds.throttled_rate_bps must be below base_rate_bps")
	}

	switch c.Enforcement.Backend {
	case BackendTC, BackendInProcess, BackendLog:
	default:
		return fmt.Errorf("enforcement.backend must be one of %q, %q, %q",
			BackendTC, BackendInProcess, BackendLog)
	}

	if c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required")
	}
	return nil
}

// DomainThresholds converts the config block into the immutable value passed
// to the evaluator and actuator.
func (c *Config) DomainThresholds() domain.Thresholds {
	t := c.Thresholds
	return domain.Thresholds{
		MaxPeerIPs:             t.MaxPeerIPs,
		MaxDailyUniquePeers:    t.MaxDailyUniquePeers,
		SustainedHighLoadBPS:   t.SustainedHighLoadBPS,
		SustainedHighLoadTicks: t.SustainedHighLoadTicks,
		RecoveryBPS:            t.RecoveryBPS,
		ThrottleDuration:       t.ThrottleDuration.Std(),
		DailyByteCap:           t.DailyByteCap,
		ThrottledRateBPS:       t.ThrottledRateBPS,
		BaseRateBPS:            t.BaseRateBPS,
	}
}
