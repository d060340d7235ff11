package guard

import (
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Daybook tracks the accounting day: cumulative bytes transferred and the
// set of distinct peers seen since the last reset hour. The control loop
// owns it; no locking.
//
// When a journal path is configured the book is written back each tick so a
// restart within the same accounting day resumes daily totals instead of
// handing abusers a fresh budget.
type Daybook struct {
	resetHour   int
	journalPath string

	dayStart time.Time
	bytes    int64
	peers    map[netip.Addr]struct{}
}

type daybookJournal struct {
	DayStart time.Time `yaml:"day_start"`
	Bytes    int64     `yaml:"bytes"`
	Peers    []string  `yaml:"peers"`
}

// NewDaybook opens the book for the accounting day containing now. A journal
// from the same accounting day is restored; anything older is discarded.
func NewDaybook(resetHour int, journalPath string, now time.Time) *Daybook {
	d := &Daybook{
		resetHour:   resetHour,
		journalPath: journalPath,
		dayStart:    accountingDayStart(now, resetHour),
		peers:       make(map[netip.Addr]struct{}),
	}
	d.restore()
	return d
}

// Observe folds one tick's counter delta and active peer set into the book,
// rolling the day over first if the reset hour has passed. It returns the
// running daily byte total and unique peer count.
func (d *Daybook) Observe(now time.Time, deltaBytes int64, peers []netip.Addr) (int64, int) {
	if start := accountingDayStart(now, d.resetHour); start.After(d.dayStart) {
		d.dayStart = start
		d.bytes = 0
		d.peers = make(map[netip.Addr]struct{})
	}
	if deltaBytes > 0 {
		d.bytes += deltaBytes
	}
	for _, p := range peers {
		d.peers[p] = struct{}{}
	}
	return d.bytes, len(d.peers)
}

// BytesTotal returns the running daily byte total.
func (d *Daybook) BytesTotal() int64 { return d.bytes }

// UniquePeers returns the number of distinct peers seen today.
func (d *Daybook) UniquePeers() int { return len(d.peers) }

// Persist writes the journal. A nil journal path makes it a no-op.
func (d *Daybook) Persist() error {
	if d.journalPath == "" {
		return nil
	}
	j := daybookJournal{
		DayStart: d.dayStart,
		Bytes:    d.bytes,
		Peers:    make([]string, 0, len(d.peers)),
	}
	for p := range d.peers {
		j.Peers = append(j.Peers, p.String())
	}
	raw, err := yaml.Marshal(&j)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(d.journalPath), 0o755); err != nil {
		return err
	}
	tmp := d.journalPath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, d.journalPath)
}

func (d *Daybook) restore() {
	if d.journalPath == "" {
		return
	}
	raw, err := os.ReadFile(d.journalPath)
	if err != nil {
		return
	}
	var j daybookJournal
	if err := yaml.Unmarshal(raw, &j); err != nil {
		return
	}
	if !j.DayStart.Equal(d.dayStart) {
		return // stale journal from a previous accounting day
	}
	d.bytes = j.Bytes
	for _, s := range j.Peers {
		if addr, err := netip.ParseAddr(s); err == nil {
			d.peers[addr] = struct{}{}
		}
	}
}

// accountingDayStart returns the most recent occurrence of resetHour at or
// before now, in now's location.
func accountingDayStart(now time.Time, resetHour int) time.Time {
	start := time.Date(now.Year(), now.Month(), now.Day(), resetHour, 0, 0, 0, now.Location())
	if start.After(now) {
		start = start.AddDate(0, 0, -1)
	}
	return start
}
