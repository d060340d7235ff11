package observability

import (
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/qqncnc/VPS-Traffic-Guardian/internal/domain"
	"github.com/qqncnc/VPS-Traffic-Guardian/internal/ports"
)

// GuardObs implements ports.Observability on top of zap and Prometheus.
// Metric names used by the control loop are registered here; unknown names
// are silently ignored so adapters stay decoupled from the loop.
type GuardObs struct {
	log   *zap.Logger
	audit *zap.Logger

	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
}

// New registers the guardian metric set with reg (the default registerer
// when nil) and returns an observability backend logging through log. The
// audit logger receives shutdown records; nil disables auditing.
func New(log *zap.Logger, audit *zap.Logger, reg prometheus.Registerer) *GuardObs {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if audit == nil {
		audit = zap.NewNop()
	}

	counters := map[string]prometheus.Counter{
		"guardian_ticks_total":                newCounter("guardian_ticks_total", "Control loop ticks executed."),
		"guardian_telemetry_failures_total":   newCounter("guardian_telemetry_failures_total", "Ticks skipped because telemetry was unavailable."),
		"guardian_enforcement_failures_total": newCounter("guardian_enforcement_failures_total", "Throttle install/remove failures (retried next tick)."),
		"guardian_throttles_engaged_total":    newCounter("guardian_throttles_engaged_total", "Times the throttle was engaged."),
		"guardian_shutdowns_total":            newCounter("guardian_shutdowns_total", "Shutdown decisions issued."),
	}
	gauges := map[string]prometheus.Gauge{
		"guardian_mode":               newGauge("guardian_mode", "Current mode: 0 normal, 1 throttled, 2 shutdown initiated."),
		"guardian_bandwidth_bps":      newGauge("guardian_bandwidth_bps", "Instantaneous throughput averaged over the polling interval."),
		"guardian_daily_bytes_total":  newGauge("guardian_daily_bytes_total", "Bytes transferred in the current accounting day."),
		"guardian_distinct_peers":     newGauge("guardian_distinct_peers", "Distinct peers with open connections."),
		"guardian_daily_unique_peers": newGauge("guardian_daily_unique_peers", "Distinct peers seen in the current accounting day."),
	}
	for _, c := range counters {
		reg.MustRegister(c)
	}
	for _, g := range gauges {
		reg.MustRegister(g)
	}

	return &GuardObs{
		log:      log,
		audit:    audit,
		counters: counters,
		gauges:   gauges,
	}
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
}

func newGauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
}

func (o *GuardObs) LogInfo(msg string, fields ...ports.Field) {
	o.log.Info(msg, zapFields(fields)...)
}

func (o *GuardObs) LogWarn(msg string, fields ...ports.Field) {
	o.log.Warn(msg, zapFields(fields)...)
}

func (o *GuardObs) LogError(msg string, err error, fields ...ports.Field) {
	o.log.Error(msg, append(zapFields(fields), zap.Error(err))...)
}

func (o *GuardObs) LogCritical(msg string, err error, fields ...ports.Field) {
	// DPanic is the highest severity that does not kill the process; the
	// loop decides whether a condition is fatal, not the logger.
	o.log.DPanic(msg, append(zapFields(fields), zap.Error(err))...)
}

func (o *GuardObs) IncCounter(name string, v float64) {
	if c, ok := o.counters[name]; ok {
		c.Add(v)
	}
}

func (o *GuardObs) SetGauge(name string, v float64) {
	if g, ok := o.gauges[name]; ok {
		g.Set(v)
	}
}

// RecordTransition emits the structured mode-transition record and keeps the
// mode gauge current. Transitions into shutdown additionally land in the
// audit log with an incident id, before the OS-level command runs.
func (o *GuardObs) RecordTransition(oldMode, newMode domain.Mode, reason string, s domain.Sample) {
	fields := []zap.Field{
		zap.Time("timestamp", s.Timestamp),
		zap.String("old_mode", string(oldMode)),
		zap.String("new_mode", string(newMode)),
		zap.String("reason", reason),
		zap.Int("distinct_peer_count", s.DistinctPeerCount),
		zap.Float64("bandwidth_bps", s.BandwidthBPS),
		zap.Int64("daily_bytes_total", s.DailyBytesTotal),
		zap.Int("daily_unique_peers", s.DailyUniquePeers),
	}
	o.log.Info("mode_transition", fields...)
	o.SetGauge("guardian_mode", modeValue(newMode))

	if newMode == domain.ModeShutdownInitiated {
		o.audit.Error("shutdown_triggered",
			append(fields, zap.String("incident_id", uuid.NewString()))...)
	}
}

func modeValue(m domain.Mode) float64 {
	switch m {
	case domain.ModeThrottled:
		return 1
	case domain.ModeShutdownInitiated:
		return 2
	default:
		return 0
	}
}

func zapFields(fields []ports.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+1)
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

var _ ports.Observability = (*GuardObs)(nil)
