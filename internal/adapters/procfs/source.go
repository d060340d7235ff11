// Package procfs implements the telemetry source by reading the kernel's
// connection table and interface counters directly, replacing shelling out
// to netstat with /proc/net/tcp parsing.
package procfs

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/qqncnc/VPS-Traffic-Guardian/internal/ports"
)

// tcpEstablished is the TCP_ESTABLISHED state code in /proc/net/tcp.
const tcpEstablished = "01"

type Source struct {
	iface    string
	procRoot string
	sysRoot  string
}

func NewSource(iface string) *Source {
	return &Source{
		iface:    iface,
		procRoot: "/proc",
		sysRoot:  "/sys",
	}
}

// WithRoots redirects the proc and sys mount points. Tests only.
func (s *Source) WithRoots(procRoot, sysRoot string) *Source {
	s.procRoot = procRoot
	s.sysRoot = sysRoot
	return s
}

// ActivePeers returns the remote address of every established TCP
// connection, IPv4 and IPv6, with loopback and unspecified addresses
// filtered out. Duplicates are returned as-is.
func (s *Source) ActivePeers(ctx context.Context) ([]netip.Addr, error) {
	var peers []netip.Addr
	for _, table := range []string{"tcp", "tcp6"} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(s.procRoot, "net", table)
		addrs, err := readEstablishedPeers(path)
		if err != nil {
			if table == "tcp6" && os.IsNotExist(err) {
				continue // v4-only host
			}
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		peers = append(peers, addrs...)
	}
	return peers, nil
}

// InterfaceCounters reads the cumulative rx/tx byte counters of the
// monitored interface from sysfs.
func (s *Source) InterfaceCounters(ctx context.Context) (ports.Counters, error) {
	if err := ctx.Err(); err != nil {
		return ports.Counters{}, err
	}
	statsDir := filepath.Join(s.sysRoot, "class", "net", s.iface, "statistics")
	rx, err := readCounter(filepath.Join(statsDir, "rx_bytes"))
	if err != nil {
		return ports.Counters{}, err
	}
	tx, err := readCounter(filepath.Join(statsDir, "tx_bytes"))
	if err != nil {
		return ports.Counters{}, err
	}
	return ports.Counters{RxBytes: rx, TxBytes: tx}, nil
}

func readCounter(path string) (uint64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}

func readEstablishedPeers(path string) ([]netip.Addr, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var peers []netip.Addr
	scanner := bufio.NewScanner(f)
	scanner.Scan() // header line
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		// sl local_address rem_address st ...
		if len(fields) < 4 || fields[3] != tcpEstablished {
			continue
		}
		addr, err := parseHexAddr(fields[2])
		if err != nil {
			continue // malformed row, not worth failing the whole scan
		}
		if addr.IsLoopback() || addr.IsUnspecified() {
			continue
		}
		peers = append(peers, addr)
	}
	return peers, scanner.Err()
}

// parseHexAddr decodes the kernel's "ADDR:PORT" hex form. Addresses are
// little-endian per 32-bit word, 8 hex digits for IPv4 and 32 for IPv6.
func parseHexAddr(s string) (netip.Addr, error) {
	hexAddr, _, ok := strings.Cut(s, ":")
	if !ok {
		return netip.Addr{}, fmt.Errorf("missing port separator in %q", s)
	}
	raw, err := hex.DecodeString(hexAddr)
	if err != nil {
		return netip.Addr{}, err
	}
	for i := 0; i+4 <= len(raw); i += 4 {
		raw[i], raw[i+1], raw[i+2], raw[i+3] = raw[i+3], raw[i+2], raw[i+1], raw[i]
	}
	switch len(raw) {
	case 4:
		return netip.AddrFrom4([4]byte(raw)), nil
	case 16:
		return netip.AddrFrom16([16]byte(raw)).Unmap(), nil
	default:
		return netip.Addr{}, fmt.Errorf("unexpected address length %d", len(raw))
	}
}

var _ ports.TelemetrySource = (*Source)(nil)
