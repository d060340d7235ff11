package ports

import "context"

// Enforcer executes policy decisions against the host environment. The
// actuator layer guarantees idempotence on top of this interface, so
// implementations may be called with a rate that is already installed.
type Enforcer interface {
	// InstallRateCap caps the monitored interface at the given rate,
	// replacing any cap already in place.
	InstallRateCap(ctx context.Context, bps float64) error

	// RemoveRateCap lifts the cap entirely. Removing a cap that is not
	// installed must not fail.
	RemoveRateCap(ctx context.Context) error

	// InstallConnLimit installs the per-source concurrent connection
	// limit. Called once during bootstrap.
	InstallConnLimit(ctx context.Context, maxConns int) error

	// ShutdownHost powers the host off. Fire-and-forget: a nil return
	// means the command was accepted, not that the host is down.
	ShutdownHost(ctx context.Context, reason string) error
}
