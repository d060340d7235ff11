package domain

// Mode is the guardian's policy state.
type Mode string

const (
	ModeNormal            Mode = "normal"
	ModeThrottled         Mode = "throttled"
	ModeShutdownInitiated Mode = "shutdown_initiated"
)

// DecisionKind enumerates the actions the evaluator can order.
type DecisionKind string

const (
	DecisionNoOp           DecisionKind = "noop"
	DecisionApplyThrottle  DecisionKind = "apply_throttle"
	DecisionRemoveThrottle DecisionKind = "remove_throttle"
	DecisionShutdown       DecisionKind = "shutdown"
)

// Shutdown reasons carried on Decision and in transition records.
const (
	ReasonDailyCapExceeded         = "daily_cap_exceeded"
	ReasonPeerCountExceeded        = "peer_count_exceeded"
	ReasonDailyUniquePeersExceeded = "daily_unique_peers_exceeded"
	ReasonSustainedHighLoad        = "sustained_high_load"
	ReasonThrottleExpired          = "throttle_expired"
)

// Decision is the evaluator's verdict for one tick. RateBPS is set only for
// DecisionApplyThrottle; Reason only for shutdowns and mode transitions.
type Decision struct {
	Kind    DecisionKind
	RateBPS float64
	Reason  string
}

// NoOp is the zero-action decision.
func NoOp() Decision { return Decision{Kind: DecisionNoOp} }
