package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qqncnc/VPS-Traffic-Guardian/internal/domain"
)

func testThresholds() domain.Thresholds {
	return domain.Thresholds{
		MaxPeerIPs:             8,
		MaxDailyUniquePeers:    15,
		SustainedHighLoadBPS:   100_000_000,
		SustainedHighLoadTicks: 3,
		ThrottleDuration:       900 * time.Second,
		DailyByteCap:           100 << 30,
		ThrottledRateBPS:       60_000_000,
	}
}

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// sampleAt builds a nominal sample n ticks (seconds) after t0.
func sampleAt(n int) domain.Sample {
	return domain.Sample{
		Timestamp:         t0.Add(time.Duration(n) * time.Second),
		DistinctPeerCount: 4,
		BandwidthBPS:      10_000_000,
		DailyBytesTotal:   1 << 30,
		DailyUniquePeers:  5,
	}
}

func TestNominalLoadStaysNormal(t *testing.T) {
	eval := NewEvaluator(testThresholds())
	st := domain.NewGuardianState()

	for i := 0; i < 20; i++ {
		next, d, err := eval.Evaluate(st, sampleAt(i))
		require.NoError(t, err)
		require.Equal(t, domain.ModeNormal, next.Mode)
		require.Equal(t, domain.DecisionNoOp, d.Kind)
		st = next
	}
}

func TestSingleSpikeDoesNotThrottle(t *testing.T) {
	eval := NewEvaluator(testThresholds())
	st := domain.NewGuardianState()

	spike := sampleAt(0)
	spike.BandwidthBPS = 120_000_000
	st, d, err := eval.Evaluate(st, spike)
	require.NoError(t, err)
	require.Equal(t, domain.ModeNormal, st.Mode)
	require.Equal(t, domain.DecisionNoOp, d.Kind)
	require.Equal(t, 1, st.ConsecutiveHighLoadTicks)

	// Back below threshold: the streak resets.
	st, d, err = eval.Evaluate(st, sampleAt(1))
	require.NoError(t, err)
	require.Equal(t, domain.ModeNormal, st.Mode)
	require.Equal(t, domain.DecisionNoOp, d.Kind)
	require.Zero(t, st.ConsecutiveHighLoadTicks)
}

func TestThrottleEngagesOnSustainedHighLoad(t *testing.T) {
	eval := NewEvaluator(testThresholds())
	st := domain.NewGuardianState()

	var modes []domain.Mode
	var throttles int
	for i := 0; i < 3; i++ {
		s := sampleAt(i)
		s.BandwidthBPS = 120_000_000
		next, d, err := eval.Evaluate(st, s)
		require.NoError(t, err)
		modes = append(modes, next.Mode)
		if d.Kind == domain.DecisionApplyThrottle {
			throttles++
			require.Equal(t, float64(60_000_000), d.RateBPS)
		}
		st = next
	}

	require.Equal(t, []domain.Mode{domain.ModeNormal, domain.ModeNormal, domain.ModeThrottled}, modes)
	require.Equal(t, 1, throttles, "exactly one ApplyThrottle, at the last high sample")
	require.Equal(t, t0.Add(2*time.Second).Add(900*time.Second), st.ThrottleExpiresAt)
	require.Zero(t, st.ConsecutiveHighLoadTicks)
}

func TestThrottleHoldsBeforeExpiry(t *testing.T) {
	eval := NewEvaluator(testThresholds())
	st := domain.GuardianState{
		Mode:              domain.ModeThrottled,
		ThrottleExpiresAt: t0.Add(900 * time.Second),
	}

	s := sampleAt(10)
	s.BandwidthBPS = 5_000_000 // even quiet traffic does not lift it early
	next, d, err := eval.Evaluate(st, s)
	require.NoError(t, err)
	require.Equal(t, domain.ModeThrottled, next.Mode)
	require.Equal(t, domain.DecisionNoOp, d.Kind)
	require.Equal(t, st.ThrottleExpiresAt, next.ThrottleExpiresAt)
}

func TestThrottleExtendsWhileLoadStaysHigh(t *testing.T) {
	eval := NewEvaluator(testThresholds())
	oldExpiry := t0.Add(900 * time.Second)
	st := domain.GuardianState{
		Mode:              domain.ModeThrottled,
		ThrottleExpiresAt: oldExpiry,
	}

	s := sampleAt(901)
	s.BandwidthBPS = 120_000_000
	next, d, err := eval.Evaluate(st, s)
	require.NoError(t, err)
	require.Equal(t, domain.ModeThrottled, next.Mode)
	require.Equal(t, domain.DecisionNoOp, d.Kind)
	require.True(t, next.ThrottleExpiresAt.After(oldExpiry), "expiry must move later, not lift")
}

func TestThrottleLiftsOnExpiryAndRecovery(t *testing.T) {
	eval := NewEvaluator(testThresholds())
	st := domain.GuardianState{
		Mode:              domain.ModeThrottled,
		ThrottleExpiresAt: t0.Add(900 * time.Second),
	}

	next, d, err := eval.Evaluate(st, sampleAt(901))
	require.NoError(t, err)
	require.Equal(t, domain.ModeNormal, next.Mode)
	require.Equal(t, domain.DecisionRemoveThrottle, d.Kind)
	require.True(t, next.ThrottleExpiresAt.IsZero())
	require.Zero(t, next.ConsecutiveHighLoadTicks)
}

func TestAsymmetricRecoveryThreshold(t *testing.T) {
	th := testThresholds()
	th.RecoveryBPS = 50_000_000
	eval := NewEvaluator(th)
	st := domain.GuardianState{
		Mode:              domain.ModeThrottled,
		ThrottleExpiresAt: t0.Add(900 * time.Second),
	}

	// Past expiry but above the recovery threshold (though below entry):
	// the throttle extends instead of lifting.
	s := sampleAt(901)
	s.BandwidthBPS = 70_000_000
	next, d, err := eval.Evaluate(st, s)
	require.NoError(t, err)
	require.Equal(t, domain.ModeThrottled, next.Mode)
	require.Equal(t, domain.DecisionNoOp, d.Kind)
}

func TestPeerFloodShutsDownFromNormal(t *testing.T) {
	eval := NewEvaluator(testThresholds())
	st := domain.NewGuardianState()

	s := sampleAt(0)
	s.DistinctPeerCount = 9 // max_peer_ips + 1
	next, d, err := eval.Evaluate(st, s)
	require.NoError(t, err)
	require.Equal(t, domain.ModeShutdownInitiated, next.Mode)
	require.Equal(t, domain.DecisionShutdown, d.Kind)
	require.Equal(t, domain.ReasonPeerCountExceeded, d.Reason)
}

func TestDailyCapShutsDownWhileNominal(t *testing.T) {
	eval := NewEvaluator(testThresholds())
	st := domain.NewGuardianState()

	s := sampleAt(0)
	s.DailyBytesTotal = 100 << 30 // exactly at the cap fires
	next, d, err := eval.Evaluate(st, s)
	require.NoError(t, err)
	require.Equal(t, domain.ModeShutdownInitiated, next.Mode)
	require.Equal(t, domain.ReasonDailyCapExceeded, d.Reason)
}

func TestDailyCapWinsOverPeerFlood(t *testing.T) {
	eval := NewEvaluator(testThresholds())

	s := sampleAt(0)
	s.DailyBytesTotal = 200 << 30
	s.DistinctPeerCount = 50
	_, d, err := eval.Evaluate(domain.NewGuardianState(), s)
	require.NoError(t, err)
	require.Equal(t, domain.ReasonDailyCapExceeded, d.Reason)
}

func TestDailyUniquePeersShutdown(t *testing.T) {
	eval := NewEvaluator(testThresholds())

	s := sampleAt(0)
	s.DailyUniquePeers = 16
	next, d, err := eval.Evaluate(domain.NewGuardianState(), s)
	require.NoError(t, err)
	require.Equal(t, domain.ModeShutdownInitiated, next.Mode)
	require.Equal(t, domain.ReasonDailyUniquePeersExceeded, d.Reason)
}

func TestDailyUniquePeersDisabledWhenZero(t *testing.T) {
	th := testThresholds()
	th.MaxDailyUniquePeers = 0
	eval := NewEvaluator(th)

	s := sampleAt(0)
	s.DailyUniquePeers = 10_000
	next, d, err := eval.Evaluate(domain.NewGuardianState(), s)
	require.NoError(t, err)
	require.Equal(t, domain.ModeNormal, next.Mode)
	require.Equal(t, domain.DecisionNoOp, d.Kind)
}

func TestShutdownIsTerminal(t *testing.T) {
	eval := NewEvaluator(testThresholds())
	st := domain.GuardianState{Mode: domain.ModeShutdownInitiated}

	// Any sample, however extreme or benign, changes nothing.
	for i, s := range []domain.Sample{sampleAt(0), func() domain.Sample {
		s := sampleAt(1)
		s.BandwidthBPS = 500_000_000
		s.DistinctPeerCount = 100
		return s
	}()} {
		next, d, err := eval.Evaluate(st, s)
		require.NoError(t, err, "sample %d", i)
		require.Equal(t, domain.ModeShutdownInitiated, next.Mode)
		require.Equal(t, domain.DecisionNoOp, d.Kind)
		st = next
	}
}

func TestOutOfOrderSampleDropped(t *testing.T) {
	eval := NewEvaluator(testThresholds())
	st := domain.NewGuardianState()

	st, _, err := eval.Evaluate(st, sampleAt(5))
	require.NoError(t, err)

	// An older sample with shutdown-worthy readings must not be processed.
	stale := sampleAt(3)
	stale.DistinctPeerCount = 100
	next, d, err := eval.Evaluate(st, stale)
	require.ErrorIs(t, err, ErrOutOfOrderSample)
	require.Equal(t, st, next)
	require.Equal(t, domain.DecisionNoOp, d.Kind)

	// A duplicate timestamp is dropped too; time must strictly advance.
	dup := sampleAt(5)
	_, _, err = eval.Evaluate(st, dup)
	require.ErrorIs(t, err, ErrOutOfOrderSample)
}
