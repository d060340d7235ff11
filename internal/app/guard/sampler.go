package guard

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/qqncnc/VPS-Traffic-Guardian/internal/domain"
	"github.com/qqncnc/VPS-Traffic-Guardian/internal/ports"
)

// Sampler polls the telemetry source once per tick and normalizes the raw
// readings into a domain.Sample. Bandwidth is the counter delta averaged
// over the elapsed time since the previous successful sample, so a skipped
// tick stretches the averaging window instead of losing bytes.
type Sampler struct {
	src     ports.TelemetrySource
	day     *Daybook
	timeout time.Duration
	clock   func() time.Time

	primed    bool
	lastTotal uint64
	lastAt    time.Time
}

// NewSampler builds a sampler with the given per-call time budget. The
// budget must be shorter than the tick interval; config validation enforces
// that.
func NewSampler(src ports.TelemetrySource, day *Daybook, timeout time.Duration) *Sampler {
	return &Sampler{
		src:     src,
		day:     day,
		timeout: timeout,
		clock:   time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (s *Sampler) WithClock(clock func() time.Time) *Sampler {
	s.clock = clock
	return s
}

// Sample takes one observation. Any telemetry failure, including exceeding
// the time budget, is reported as ErrTelemetryUnavailable; state inside the
// sampler is left unchanged so the next tick still averages correctly.
func (s *Sampler) Sample(ctx context.Context) (domain.Sample, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	peers, err := s.src.ActivePeers(ctx)
	if err != nil {
		return domain.Sample{}, fmt.Errorf("%w: active peers: %v", ErrTelemetryUnavailable, err)
	}
	counters, err := s.src.InterfaceCounters(ctx)
	if err != nil {
		return domain.Sample{}, fmt.Errorf("%w: interface counters: %v", ErrTelemetryUnavailable, err)
	}

	now := s.clock()
	total := counters.Total()

	var (
		delta int64
		bps   float64
	)
	if s.primed {
		if total >= s.lastTotal {
			delta = int64(total - s.lastTotal)
		}
		// Counter wrap or interface reset: delta stays 0 for this tick.
		if elapsed := now.Sub(s.lastAt).Seconds(); elapsed > 0 {
			bps = float64(delta) * 8 / elapsed
		}
	}
	s.primed = true
	s.lastTotal = total
	s.lastAt = now

	distinct := dedupPeers(peers)
	bytesTotal, uniquePeers := s.day.Observe(now, delta, peers)

	return domain.Sample{
		Timestamp:         now,
		DistinctPeerCount: distinct,
		BandwidthBPS:      bps,
		DailyBytesTotal:   bytesTotal,
		DailyUniquePeers:  uniquePeers,
	}, nil
}

func dedupPeers(peers []netip.Addr) int {
	seen := make(map[netip.Addr]struct{}, len(peers))
	for _, p := range peers {
		seen[p] = struct{}{}
	}
	return len(seen)
}
