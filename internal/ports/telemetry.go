package ports

import (
	"context"
	"net/netip"
)

// Counters are cumulative interface byte counters since boot.
type Counters struct {
	RxBytes uint64
	TxBytes uint64
}

// Total returns rx+tx.
func (c Counters) Total() uint64 { return c.RxBytes + c.TxBytes }

// TelemetrySource supplies raw host telemetry on demand. Implementations
// query OS connection tables and interface counters and perform no
// interpretation; the sampler turns these readings into domain.Sample.
type TelemetrySource interface {
	// ActivePeers returns the remote addresses of currently established
	// connections, loopback excluded. Duplicates are allowed; callers
	// deduplicate.
	ActivePeers(ctx context.Context) ([]netip.Addr, error)

	// InterfaceCounters returns the cumulative byte counters of the
	// monitored interface.
	InterfaceCounters(ctx context.Context) (Counters, error)
}
