package guard

import (
	"time"

	"github.com/qqncnc/VPS-Traffic-Guardian/internal/domain"
)

// Evaluator is the deterministic policy state machine. It consumes a stream
// of samples and produces decisions, carrying hysteresis state between calls
// through the GuardianState value owned by the control loop.
//
// Transition rules are evaluated in priority order; the first that fires
// wins. Requiring N consecutive high-load samples before throttling, plus a
// minimum throttle duration and a separate recovery check on exit, gives the
// loop Schmitt-trigger style hysteresis so bursty traffic does not flap the
// cap on and off.
type Evaluator struct {
	th            domain.Thresholds
	lastProcessed time.Time
}

func NewEvaluator(th domain.Thresholds) *Evaluator {
	return &Evaluator{th: th}
}

// Evaluate applies one sample to the state machine. The returned state
// replaces the input state only when err is nil. Out-of-order samples are
// rejected with ErrOutOfOrderSample and leave the machine untouched.
func (e *Evaluator) Evaluate(st domain.GuardianState, s domain.Sample) (domain.GuardianState, domain.Decision, error) {
	if !e.lastProcessed.IsZero() && !s.Timestamp.After(e.lastProcessed) {
		return st, domain.NoOp(), ErrOutOfOrderSample
	}
	e.lastProcessed = s.Timestamp

	// Terminal: once shutdown is ordered no further decisions are made.
	if st.Mode == domain.ModeShutdownInitiated {
		return st, domain.NoOp(), nil
	}

	if reason, ok := e.shutdownReason(s); ok {
		st.Mode = domain.ModeShutdownInitiated
		st.ConsecutiveHighLoadTicks = 0
		return st, domain.Decision{Kind: domain.DecisionShutdown, Reason: reason}, nil
	}

	now := s.Timestamp
	switch st.Mode {
	case domain.ModeThrottled:
		if now.Before(st.ThrottleExpiresAt) {
			return st, domain.NoOp(), nil
		}
		if s.BandwidthBPS < e.th.Recovery() {
			st.Mode = domain.ModeNormal
			st.ThrottleExpiresAt = time.Time{}
			st.ConsecutiveHighLoadTicks = 0
			return st, domain.Decision{Kind: domain.DecisionRemoveThrottle, Reason: domain.ReasonThrottleExpired}, nil
		}
		// Load is still high right at the expiry boundary: extend the
		// window instead of bouncing back to Normal.
		st.ThrottleExpiresAt = now.Add(e.th.ThrottleDuration)
		return st, domain.NoOp(), nil

	default: // ModeNormal
		if s.BandwidthBPS >= e.th.SustainedHighLoadBPS {
			st.ConsecutiveHighLoadTicks++
			if st.ConsecutiveHighLoadTicks >= e.th.SustainedHighLoadTicks {
				st.Mode = domain.ModeThrottled
				st.ThrottleExpiresAt = now.Add(e.th.ThrottleDuration)
				st.ConsecutiveHighLoadTicks = 0
				return st, domain.Decision{
					Kind:    domain.DecisionApplyThrottle,
					RateBPS: e.th.ThrottledRateBPS,
					Reason:  domain.ReasonSustainedHighLoad,
				}, nil
			}
			return st, domain.NoOp(), nil
		}
		st.ConsecutiveHighLoadTicks = 0
		return st, domain.NoOp(), nil
	}
}

func (e *Evaluator) shutdownReason(s domain.Sample) (string, bool) {
	if s.DailyBytesTotal >= e.th.DailyByteCap {
		return domain.ReasonDailyCapExceeded, true
	}
	if s.DistinctPeerCount > e.th.MaxPeerIPs {
		return domain.ReasonPeerCountExceeded, true
	}
	if e.th.MaxDailyUniquePeers > 0 && s.DailyUniquePeers > e.th.MaxDailyUniquePeers {
		return domain.ReasonDailyUniquePeersExceeded, true
	}
	return "", false
}
