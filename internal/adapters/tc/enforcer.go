// Package tc enforces decisions with the host's traffic-control and
// power-management tooling: tc for rate caps, iptables for the per-source
// connection limit, and shutdown(8) as the backstop.
package tc

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/qqncnc/VPS-Traffic-Guardian/internal/ports"
)

// Runner executes one external command. Injectable so tests can assert the
// exact command lines without a root shell.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, out)
	}
	return nil
}

type Enforcer struct {
	iface string
	run   Runner
}

func NewEnforcer(iface string) *Enforcer {
	return &Enforcer{iface: iface, run: execRunner{}}
}

// WithRunner overrides the command runner. Tests only.
func (e *Enforcer) WithRunner(r Runner) *Enforcer {
	e.run = r
	return e
}

// InstallRateCap replaces the root qdisc with a token bucket filter at the
// given rate. The delete of the previous qdisc is best-effort: it fails
// when no qdisc is installed yet, which is fine.
func (e *Enforcer) InstallRateCap(ctx context.Context, bps float64) error {
	_ = e.run.Run(ctx, "tc", "qdisc", "del", "dev", e.iface, "root")
	return e.run.Run(ctx, "tc", "qdisc", "add", "dev", e.iface, "root",
		"tbf", "rate", formatRate(bps), "burst", "32kbit", "latency", "400ms")
}

// RemoveRateCap deletes the root qdisc. Removing a cap that is not
// installed is a no-op per the enforcement contract, so the error from a
// missing qdisc is swallowed.
func (e *Enforcer) RemoveRateCap(ctx context.Context) error {
	_ = e.run.Run(ctx, "tc", "qdisc", "del", "dev", e.iface, "root")
	return nil
}

// InstallConnLimit rejects SYNs from sources holding more than maxConns
// concurrent connections. The delete clears a rule left over from a
// previous run so rules do not stack.
func (e *Enforcer) InstallConnLimit(ctx context.Context, maxConns int) error {
	rule := []string{"INPUT", "-p", "tcp", "--syn",
		"-m", "connlimit", "--connlimit-above", strconv.Itoa(maxConns),
		"-j", "REJECT"}
	_ = e.run.Run(ctx, "iptables", append([]string{"-D"}, rule...)...)
	return e.run.Run(ctx, "iptables", append([]string{"-A"}, rule...)...)
}

// ShutdownHost powers the host off immediately.
func (e *Enforcer) ShutdownHost(ctx context.Context, reason string) error {
	return e.run.Run(ctx, "shutdown", "-h", "now")
}

// formatRate renders a bit-per-second value for tc, which accepts a plain
// "bit" suffix and does its own unit scaling.
func formatRate(bps float64) string {
	return strconv.FormatInt(int64(bps), 10) + "bit"
}

var _ ports.Enforcer = (*Enforcer)(nil)
