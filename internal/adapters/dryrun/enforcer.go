// Package dryrun logs enforcement actions without touching the host. Useful
// for tuning thresholds on a live box before trusting the guardian with tc
// and shutdown privileges.
package dryrun

import (
	"context"

	"github.com/qqncnc/VPS-Traffic-Guardian/internal/ports"
)

type Enforcer struct {
	obs ports.Observability
}

func New(obs ports.Observability) *Enforcer {
	return &Enforcer{obs: obs}
}

func (e *Enforcer) InstallRateCap(ctx context.Context, bps float64) error {
	e.obs.LogInfo("dryrun_install_rate_cap", ports.Field{Key: "bps", Value: bps})
	return nil
}

func (e *Enforcer) RemoveRateCap(ctx context.Context) error {
	e.obs.LogInfo("dryrun_remove_rate_cap")
	return nil
}

func (e *Enforcer) InstallConnLimit(ctx context.Context, maxConns int) error {
	e.obs.LogInfo("dryrun_install_conn_limit", ports.Field{Key: "max_conns", Value: maxConns})
	return nil
}

func (e *Enforcer) ShutdownHost(ctx context.Context, reason string) error {
	e.obs.LogWarn("dryrun_shutdown_host", ports.Field{Key: "reason", Value: reason})
	return nil
}

var _ ports.Enforcer = (*Enforcer)(nil)
