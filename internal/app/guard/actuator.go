package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qqncnc/VPS-Traffic-Guardian/internal/domain"
	"github.com/qqncnc/VPS-Traffic-Guardian/internal/ports"
)

// Actuator applies decisions through the enforcer port, adding the
// idempotence and retry contract the raw enforcer does not promise:
// reapplying an installed cap is a no-op, throttle failures are non-fatal,
// and shutdown is retried once before the process declares itself halted.
type Actuator struct {
	enf     ports.Enforcer
	obs     ports.Observability
	th      domain.Thresholds
	timeout time.Duration

	throttled bool
	rateBPS   float64
	halted    bool
}

func NewActuator(enf ports.Enforcer, obs ports.Observability, th domain.Thresholds, timeout time.Duration) *Actuator {
	return &Actuator{enf: enf, obs: obs, th: th, timeout: timeout}
}

// Bootstrap performs the one-time environment setup: the per-source
// connection limit and, when configured, the baseline rate cap. Failures
// are reported but the guardian still starts; the host is merely uncapped
// until an enforcement decision succeeds.
func (a *Actuator) Bootstrap(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var errs []error
	if err := a.enf.InstallConnLimit(ctx, a.th.MaxPeerIPs); err != nil {
		errs = append(errs, fmt.Errorf("install connlimit: %w", err))
	}
	if a.th.BaseRateBPS > 0 {
		if err := a.enf.InstallRateCap(ctx, a.th.BaseRateBPS); err != nil {
			errs = append(errs, fmt.Errorf("install baseline cap: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Apply executes one decision against the current intended mode. Errors are
// either *EnforcementError (non-fatal, retried naturally next tick) or
// ErrShutdownFailed (fatal).
func (a *Actuator) Apply(ctx context.Context, d domain.Decision, mode domain.Mode) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	switch d.Kind {
	case domain.DecisionNoOp:
		return a.reconcile(ctx, mode)

	case domain.DecisionApplyThrottle:
		if a.throttled && a.rateBPS == d.RateBPS {
			return nil
		}
		if err := a.enf.InstallRateCap(ctx, d.RateBPS); err != nil {
			return &EnforcementError{Action: "install_rate_cap", Err: err}
		}
		a.throttled = true
		a.rateBPS = d.RateBPS
		return nil

	case domain.DecisionRemoveThrottle:
		if !a.throttled {
			return nil
		}
		if err := a.restoreBaseline(ctx); err != nil {
			return &EnforcementError{Action: "remove_rate_cap", Err: err}
		}
		a.throttled = false
		a.rateBPS = 0
		return nil

	case domain.DecisionShutdown:
		return a.shutdown(ctx, d.Reason)

	default:
		return &EnforcementError{Action: string(d.Kind), Err: fmt.Errorf("unknown decision kind")}
	}
}

// Halted reports whether a failed shutdown left the actuator refusing
// further enforcement.
func (a *Actuator) Halted() bool { return a.halted }

// reconcile retries enforcement that failed on an earlier tick. State
// already reflects the intended mode, so a NoOp tick is the natural retry
// point: nothing happens unless the installed cap disagrees with the mode.
func (a *Actuator) reconcile(ctx context.Context, mode domain.Mode) error {
	switch {
	case mode == domain.ModeThrottled && !a.throttled:
		if err := a.enf.InstallRateCap(ctx, a.th.ThrottledRateBPS); err != nil {
			return &EnforcementError{Action: "install_rate_cap", Err: err}
		}
		a.throttled = true
		a.rateBPS = a.th.ThrottledRateBPS
	case mode == domain.ModeNormal && a.throttled:
		if err := a.restoreBaseline(ctx); err != nil {
			return &EnforcementError{Action: "remove_rate_cap", Err: err}
		}
		a.throttled = false
		a.rateBPS = 0
	}
	return nil
}

func (a *Actuator) restoreBaseline(ctx context.Context) error {
	if a.th.BaseRateBPS > 0 {
		return a.enf.InstallRateCap(ctx, a.th.BaseRateBPS)
	}
	return a.enf.RemoveRateCap(ctx)
}

// shutdown is the safety backstop: always attempted regardless of earlier
// failures, retried once immediately, and escalated if both attempts fail.
func (a *Actuator) shutdown(ctx context.Context, reason string) error {
	if a.halted {
		return ErrShutdownFailed
	}
	err := a.enf.ShutdownHost(ctx, reason)
	if err == nil {
		a.halted = true
		return nil
	}
	a.obs.LogCritical("shutdown_failed_retrying", err, ports.Field{Key: "reason", Value: reason})

	if err = a.enf.ShutdownHost(ctx, reason); err == nil {
		a.halted = true
		return nil
	}
	a.halted = true
	return fmt.Errorf("%w: %v", ErrShutdownFailed, err)
}
