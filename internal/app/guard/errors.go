package guard

import (
	"errors"
	"fmt"
)

// ErrTelemetryUnavailable means sampling failed this tick. The loop skips
// enforcement for the tick and retries on the next one; it never escalates.
var ErrTelemetryUnavailable = errors.New("guard: telemetry unavailable")

// ErrOutOfOrderSample means a sample's timestamp did not advance past the
// previously processed one. The sample is dropped, state is untouched.
var ErrOutOfOrderSample = errors.New("guard: out-of-order sample dropped")

// ErrShutdownFailed means the shutdown command failed twice. The process
// treats itself as halted and must exit non-zero.
var ErrShutdownFailed = errors.New("guard: shutdown enforcement failed")

// EnforcementError wraps a non-fatal throttle install/remove failure. State
// keeps the intended mode and the actuator reconciles against it on a later
// tick, so no retry bookkeeping is needed here.
type EnforcementError struct {
	Action string
	Err    error
}

func (e *EnforcementError) Error() string {
	return fmt.Sprintf("guard: enforcement %s failed: %v", e.Action, e.Err)
}

func (e *EnforcementError) Unwrap() error { return e.Err }
