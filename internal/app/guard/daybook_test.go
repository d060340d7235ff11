package guard

import (
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func addrs(ss ...string) []netip.Addr {
	out := make([]netip.Addr, 0, len(ss))
	for _, s := range ss {
		out = append(out, netip.MustParseAddr(s))
	}
	return out
}

func TestDaybookAccumulates(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	d := NewDaybook(0, "", now)

	bytes, uniq := d.Observe(now, 1000, addrs("10.0.0.1", "10.0.0.2"))
	require.Equal(t, int64(1000), bytes)
	require.Equal(t, 2, uniq)

	// Repeat peers do not grow the set; bytes keep accumulating.
	bytes, uniq = d.Observe(now.Add(time.Second), 500, addrs("10.0.0.2", "10.0.0.3"))
	require.Equal(t, int64(1500), bytes)
	require.Equal(t, 3, uniq)
}

func TestDaybookIgnoresNegativeDelta(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	d := NewDaybook(0, "", now)

	d.Observe(now, 1000, nil)
	bytes, _ := d.Observe(now.Add(time.Second), -50, nil)
	require.Equal(t, int64(1000), bytes)
}

func TestDaybookRollsOverAtResetHour(t *testing.T) {
	beforeReset := time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC)
	d := NewDaybook(0, "", beforeReset)

	d.Observe(beforeReset, 5000, addrs("10.0.0.1"))

	afterReset := time.Date(2025, 6, 2, 0, 1, 0, 0, time.UTC)
	bytes, uniq := d.Observe(afterReset, 100, addrs("10.0.0.2"))
	require.Equal(t, int64(100), bytes, "bytes reset at day boundary")
	require.Equal(t, 1, uniq, "peer set reset at day boundary")
}

func TestDaybookNonMidnightResetHour(t *testing.T) {
	// Reset hour 4: 03:59 still belongs to yesterday's accounting day.
	now := time.Date(2025, 6, 2, 3, 59, 0, 0, time.UTC)
	d := NewDaybook(4, "", now)

	d.Observe(now, 1000, nil)
	bytes, _ := d.Observe(time.Date(2025, 6, 2, 4, 1, 0, 0, time.UTC), 200, nil)
	require.Equal(t, int64(200), bytes)
}

func TestDaybookJournalRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daybook.yaml")
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	d := NewDaybook(0, path, now)
	d.Observe(now, 4096, addrs("10.0.0.1", "10.0.0.2"))
	require.NoError(t, d.Persist())

	// A restart later the same accounting day resumes the totals.
	restored := NewDaybook(0, path, now.Add(2*time.Hour))
	require.Equal(t, int64(4096), restored.BytesTotal())
	require.Equal(t, 2, restored.UniquePeers())
}

func TestDaybookStaleJournalDiscarded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daybook.yaml")
	yesterday := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	d := NewDaybook(0, path, yesterday)
	d.Observe(yesterday, 4096, addrs("10.0.0.1"))
	require.NoError(t, d.Persist())

	tomorrow := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	fresh := NewDaybook(0, path, tomorrow)
	require.Zero(t, fresh.BytesTotal())
	require.Zero(t, fresh.UniquePeers())
}
