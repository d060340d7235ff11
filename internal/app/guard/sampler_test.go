package guard

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qqncnc/VPS-Traffic-Guardian/internal/ports"
)

type fakeTelemetry struct {
	peers    []netip.Addr
	counters ports.Counters
	err      error
	block    bool
}

func (f *fakeTelemetry) ActivePeers(ctx context.Context) ([]netip.Addr, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.peers, nil
}

func (f *fakeTelemetry) InterfaceCounters(ctx context.Context) (ports.Counters, error) {
	if f.err != nil {
		return ports.Counters{}, f.err
	}
	return f.counters, nil
}

func stepClock(start time.Time, step time.Duration) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(step)
		return now
	}
}

func TestSamplerComputesBandwidthFromDeltas(t *testing.T) {
	src := &fakeTelemetry{
		peers:    addrs("10.0.0.1", "10.0.0.2", "10.0.0.1"),
		counters: ports.Counters{RxBytes: 1000, TxBytes: 500},
	}
	day := NewDaybook(0, "", time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	s := NewSampler(src, day, 100*time.Millisecond).
		WithClock(stepClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), time.Second))

	first, err := s.Sample(context.Background())
	require.NoError(t, err)
	require.Zero(t, first.BandwidthBPS, "no delta base on the first sample")
	require.Equal(t, 2, first.DistinctPeerCount, "duplicate peers collapse")
	require.Equal(t, 2, first.DailyUniquePeers)

	src.counters = ports.Counters{RxBytes: 1_001_000, TxBytes: 500}
	second, err := s.Sample(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 8_000_000, second.BandwidthBPS, 1, "1 MB over 1s is 8 Mbit/s")
	require.Equal(t, int64(1_000_000), second.DailyBytesTotal)
	require.True(t, second.Timestamp.After(first.Timestamp))
}

func TestSamplerCounterResetYieldsZeroDelta(t *testing.T) {
	src := &fakeTelemetry{counters: ports.Counters{RxBytes: 1_000_000}}
	day := NewDaybook(0, "", time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	s := NewSampler(src, day, 100*time.Millisecond).
		WithClock(stepClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), time.Second))

	_, err := s.Sample(context.Background())
	require.NoError(t, err)

	src.counters = ports.Counters{RxBytes: 100} // interface bounced
	got, err := s.Sample(context.Background())
	require.NoError(t, err)
	require.Zero(t, got.BandwidthBPS)
	require.Zero(t, got.DailyBytesTotal)
}

func TestSamplerReportsTelemetryUnavailable(t *testing.T) {
	src := &fakeTelemetry{err: errors.New("proc unreadable")}
	day := NewDaybook(0, "", time.Now())
	s := NewSampler(src, day, 100*time.Millisecond)

	_, err := s.Sample(context.Background())
	require.ErrorIs(t, err, ErrTelemetryUnavailable)
}

func TestSamplerEnforcesTimeBudget(t *testing.T) {
	src := &fakeTelemetry{block: true}
	day := NewDaybook(0, "", time.Now())
	s := NewSampler(src, day, 10*time.Millisecond)

	start := time.Now()
	_, err := s.Sample(context.Background())
	require.ErrorIs(t, err, ErrTelemetryUnavailable)
	require.Less(t, time.Since(start), time.Second, "must give up within the budget")
}
