package guard

import (
	"context"
	"errors"
	"time"

	"github.com/qqncnc/VPS-Traffic-Guardian/internal/domain"
	"github.com/qqncnc/VPS-Traffic-Guardian/internal/ports"
)

// Loop is the scheduling component: it drives sampler → evaluator → actuator
// once per tick and owns the single GuardianState value for the process
// lifetime. One tick runs at a time; a stop request is honored only at tick
// boundaries so enforcement is never interrupted partway.
type Loop struct {
	sampler  *Sampler
	eval     *Evaluator
	act      *Actuator
	day      *Daybook
	obs      ports.Observability
	interval time.Duration

	state domain.GuardianState
}

func NewLoop(sampler *Sampler, eval *Evaluator, act *Actuator, day *Daybook, obs ports.Observability, interval time.Duration) *Loop {
	return &Loop{
		sampler:  sampler,
		eval:     eval,
		act:      act,
		day:      day,
		obs:      obs,
		interval: interval,
		state:    domain.NewGuardianState(),
	}
}

// State returns a copy of the current guardian state.
func (l *Loop) State() domain.GuardianState { return l.state }

// Run ticks until the context is cancelled or shutdown enforcement is
// confirmed failed. Cancellation finishes the in-flight tick and exits
// without undoing enforcement already in place.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.obs.LogInfo("guardian_loop_started",
		ports.Field{Key: "tick_interval", Value: l.interval.String()})

	for {
		select {
		case <-ctx.Done():
			l.obs.LogInfo("guardian_loop_stopped",
				ports.Field{Key: "mode", Value: string(l.state.Mode)})
			return nil
		case <-ticker.C:
			if err := l.Tick(ctx); err != nil {
				return err
			}
		}
	}
}

// Tick runs one sample → decide → enforce cycle. It returns an error only
// when shutdown enforcement failed after retry; every other failure is
// logged and absorbed so the loop keeps running.
func (l *Loop) Tick(ctx context.Context) error {
	l.obs.IncCounter("guardian_ticks_total", 1)

	s, err := l.sampler.Sample(ctx)
	if err != nil {
		// Fail open: never enforce on missing telemetry.
		l.obs.IncCounter("guardian_telemetry_failures_total", 1)
		l.obs.LogWarn("tick_skipped_telemetry_unavailable",
			ports.Field{Key: "error", Value: err.Error()})
		return nil
	}

	l.obs.SetGauge("guardian_bandwidth_bps", s.BandwidthBPS)
	l.obs.SetGauge("guardian_daily_bytes_total", float64(s.DailyBytesTotal))
	l.obs.SetGauge("guardian_distinct_peers", float64(s.DistinctPeerCount))
	l.obs.SetGauge("guardian_daily_unique_peers", float64(s.DailyUniquePeers))

	next, decision, err := l.eval.Evaluate(l.state, s)
	if err != nil {
		l.obs.LogWarn("sample_dropped",
			ports.Field{Key: "error", Value: err.Error()},
			ports.Field{Key: "ts", Value: s.Timestamp})
		return nil
	}

	if next.Mode != l.state.Mode {
		l.obs.RecordTransition(l.state.Mode, next.Mode, decision.Reason, s)
	}
	switch decision.Kind {
	case domain.DecisionApplyThrottle:
		l.obs.IncCounter("guardian_throttles_engaged_total", 1)
	case domain.DecisionShutdown:
		l.obs.IncCounter("guardian_shutdowns_total", 1)
	}

	if err := l.act.Apply(ctx, decision, next.Mode); err != nil {
		var ee *EnforcementError
		switch {
		case errors.As(err, &ee):
			// State already reflects the intended mode; the actuator
			// reconciles against it on a later tick.
			l.obs.IncCounter("guardian_enforcement_failures_total", 1)
			l.obs.LogError("enforcement_failed", ee.Err,
				ports.Field{Key: "action", Value: ee.Action})
		case errors.Is(err, ErrShutdownFailed):
			l.state = next
			l.obs.LogCritical("shutdown_enforcement_failed_halting", err)
			return err
		default:
			l.obs.LogError("enforcement_failed", err)
		}
	}

	l.state = next

	if err := l.day.Persist(); err != nil {
		l.obs.LogWarn("daybook_persist_failed",
			ports.Field{Key: "error", Value: err.Error()})
	}
	return nil
}
