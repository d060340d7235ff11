package domain

import "time"

// GuardianState is the decision state carried between ticks. Exactly one
// value exists per process; the control loop owns it and the evaluator
// returns the successor value each tick.
type GuardianState struct {
	Mode                     Mode
	ThrottleExpiresAt        time.Time // valid only while Mode == ModeThrottled
	ConsecutiveHighLoadTicks int
}

// NewGuardianState returns the restart-safe default state.
func NewGuardianState() GuardianState {
	return GuardianState{Mode: ModeNormal}
}

// Thresholds are the static policy limits, loaded once at startup and never
// mutated afterwards.
type Thresholds struct {
	MaxPeerIPs             int
	MaxDailyUniquePeers    int // 0 disables the daily unique-peer breaker
	SustainedHighLoadBPS   float64
	SustainedHighLoadTicks int
	RecoveryBPS            float64 // recovery hysteresis; <= 0 means SustainedHighLoadBPS
	ThrottleDuration       time.Duration
	DailyByteCap           int64
	ThrottledRateBPS       float64
	BaseRateBPS            float64 // 0 means no baseline cap
}

// Recovery returns the effective recovery threshold.
func (t Thresholds) Recovery() float64 {
	if t.RecoveryBPS > 0 {
		return t.RecoveryBPS
	}
	return t.SustainedHighLoadBPS
}
