package gateway

// State represents the state of a circuit breaker
type State int

const (
	// StateClosed - circuit is closed, requests are allowed
	StateClosed State = iota
	// StateOpen - circuit is open, requests are rejected
	StateOpen
	// StateHalfOpen - circuit is half-open, a single trial request is allowed
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Event identifies a breaker outcome or state transition
type Event string

const (
	EventSuccess  Event = "success"
	EventFailure  Event = "failure"
	EventTimeout  Event = "timeout"
	EventReject   Event = "reject"
	EventFallback Event = "fallback"
	EventOpen     Event = "open"
	EventClose    Event = "close"
	EventHalfOpen Event = "half_open"
)

// Transition reasons carried on state-change events
const (
	ReasonThreshold      = "threshold"
	ReasonResetElapsed   = "reset_elapsed"
	ReasonTrialSucceeded = "trial_succeeded"
	ReasonTrialFailed    = "trial_failed"
	ReasonManual         = "manual"
	ReasonHydrated       = "hydrated"
)

// BreakerEvent is delivered to listeners on every outcome and transition.
// From/To are only meaningful for transition events (open, close, half_open).
type BreakerEvent struct {
	Breaker string
	Event   Event
	From    State
	To      State
	Reason  string
}

// Listener receives breaker events. Listeners are invoked synchronously
// after the breaker releases its lock; a panicking listener is recovered
// and logged so it cannot block other listeners or the transition itself.
type Listener func(BreakerEvent)
