package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sprintdeck/sprintdeck/pkg/logging"
)

// Action is a unit of work executed through a breaker. It must honor the
// supplied context, but even if it does not, the breaker's timeout still
// bounds how long the caller waits; a late result is discarded.
type Action func(ctx context.Context) (interface{}, error)

// Fallback is invoked when the action is rejected (circuit open), fails,
// or times out. Its result or error becomes the call's final outcome.
type Fallback func(ctx context.Context, cause error) (interface{}, error)

// BreakerConfig holds per-breaker configuration. Zero values are replaced
// with the registry defaults on first creation; later calls for the same
// name ignore the supplied config entirely (first-writer-wins).
type BreakerConfig struct {
	// Timeout bounds each wrapped action
	Timeout time.Duration
	// ErrorThresholdPercentage (0-100) is the failure rate that opens the circuit
	ErrorThresholdPercentage int
	// ResetTimeout is how long the circuit stays open before a trial is allowed
	ResetTimeout time.Duration
	// VolumeThreshold is the minimum completed calls before the rate is evaluated
	VolumeThreshold int
	// WindowSize is the rolling window span
	WindowSize time.Duration
	// WindowBuckets is the number of buckets the window is split into
	WindowBuckets int
}

func (c BreakerConfig) withDefaults(d BreakerConfig) BreakerConfig {
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.ErrorThresholdPercentage <= 0 {
		c.ErrorThresholdPercentage = d.ErrorThresholdPercentage
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = d.ResetTimeout
	}
	if c.VolumeThreshold <= 0 {
		c.VolumeThreshold = d.VolumeThreshold
	}
	if c.WindowSize <= 0 {
		c.WindowSize = d.WindowSize
	}
	if c.WindowBuckets <= 0 {
		c.WindowBuckets = d.WindowBuckets
	}
	return c
}

// Breaker is the per-dependency circuit-breaker state machine. A breaker
// is created at most once per process lifetime for a given name and keeps
// its accumulated window counters until it transitions or shuts down.
type Breaker struct {
	name     string
	config   BreakerConfig
	fallback Fallback

	mu            sync.Mutex
	state         State
	generation    uint64
	window        *window
	openedAt      time.Time
	trialInFlight bool

	listeners []Listener
	logger    *logging.Logger
}

func newBreaker(name string, config BreakerConfig, fallback Fallback, logger *logging.Logger) *Breaker {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Breaker{
		name:     name,
		config:   config,
		fallback: fallback,
		state:    StateClosed,
		window:   newWindow(config.WindowSize, config.WindowBuckets, time.Now()),
		logger:   logger,
	}
}

// Name returns the breaker name
func (b *Breaker) Name() string {
	return b.name
}

// Config returns the effective configuration fixed at creation
func (b *Breaker) Config() BreakerConfig {
	return b.config
}

// AddListener registers an event listener. Listeners must be attached
// before the breaker starts taking traffic; the registry does this while
// holding its creation lock.
func (b *Breaker) AddListener(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Execute runs the action subject to the breaker's current state and
// timeout. On rejection, failure, or timeout the breaker's fallback (if
// any) supplies the final outcome.
func (b *Breaker) Execute(ctx context.Context, action Action) (interface{}, error) {
	generation, err := b.acquire()
	if err != nil {
		return b.applyFallback(ctx, err)
	}

	result, err := b.run(ctx, action)
	b.settle(generation, err)

	if err != nil {
		return b.applyFallback(ctx, err)
	}
	return result, nil
}

// acquire decides whether a call may proceed. It returns the generation
// the call was admitted under so a late outcome can be discarded after a
// state change.
func (b *Breaker) acquire() (uint64, error) {
	b.mu.Lock()
	now := time.Now()

	switch b.state {
	case StateOpen:
		if now.Sub(b.openedAt) >= b.config.ResetTimeout {
			events := b.transitionLocked(StateHalfOpen, ReasonResetElapsed, now)
			b.trialInFlight = true
			generation := b.generation
			b.mu.Unlock()
			b.emit(events...)
			return generation, nil
		}
		b.mu.Unlock()
		b.emit(BreakerEvent{Breaker: b.name, Event: EventReject, From: StateOpen, To: StateOpen})
		return 0, &CircuitOpenError{Breaker: b.name}

	case StateHalfOpen:
		if b.trialInFlight {
			b.mu.Unlock()
			b.emit(BreakerEvent{Breaker: b.name, Event: EventReject, From: StateHalfOpen, To: StateHalfOpen})
			return 0, &CircuitOpenError{Breaker: b.name}
		}
		b.trialInFlight = true
		generation := b.generation
		b.mu.Unlock()
		return generation, nil

	default: // StateClosed
		generation := b.generation
		b.mu.Unlock()
		return generation, nil
	}
}

// run executes the action in its own goroutine so the timeout holds even
// for actions that ignore context cancellation. A late result lands in
// the buffered channel and is dropped.
func (b *Breaker) run(ctx context.Context, action Action) (interface{}, error) {
	tctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	type outcome struct {
		result interface{}
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("action panicked: %v", r)}
			}
		}()
		result, err := action(tctx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-tctx.Done():
		return nil, &TimeoutError{Breaker: b.name, Timeout: b.config.Timeout}
	}
}

// settle records a call outcome and applies any resulting transition.
// Outcomes from a superseded generation are discarded.
func (b *Breaker) settle(generation uint64, err error) {
	b.mu.Lock()
	if generation != b.generation {
		b.mu.Unlock()
		return
	}

	now := time.Now()
	b.window.rotate(now)

	var events []BreakerEvent

	switch {
	case err == nil:
		b.window.recordSuccess()
		events = append(events, BreakerEvent{Breaker: b.name, Event: EventSuccess})
	case IsTimeout(err):
		b.window.recordTimeout()
		events = append(events, BreakerEvent{Breaker: b.name, Event: EventTimeout})
	default:
		b.window.recordFailure()
		events = append(events, BreakerEvent{Breaker: b.name, Event: EventFailure})
	}

	switch b.state {
	case StateHalfOpen:
		b.trialInFlight = false
		if err == nil {
			events = append(events, b.transitionLocked(StateClosed, ReasonTrialSucceeded, now)...)
		} else {
			events = append(events, b.transitionLocked(StateOpen, ReasonTrialFailed, now)...)
		}
	case StateClosed:
		if err != nil && b.readyToTrip() {
			events = append(events, b.transitionLocked(StateOpen, ReasonThreshold, now)...)
		}
	}

	b.mu.Unlock()
	b.emit(events...)
}

// readyToTrip evaluates the rolling window against the configured volume
// and error-rate thresholds. Caller must hold the mutex.
func (b *Breaker) readyToTrip() bool {
	stats := b.window.totals()
	completed := stats.Completed()
	if completed < b.config.VolumeThreshold {
		return false
	}
	return (stats.Failures+stats.Timeouts)*100 >= completed*b.config.ErrorThresholdPercentage
}

// applyFallback routes a failed or rejected call through the fallback when
// one was supplied; otherwise the original error propagates.
func (b *Breaker) applyFallback(ctx context.Context, cause error) (interface{}, error) {
	if b.fallback == nil {
		return nil, cause
	}

	b.mu.Lock()
	b.window.rotate(time.Now())
	b.window.recordFallback()
	b.mu.Unlock()
	b.emit(BreakerEvent{Breaker: b.name, Event: EventFallback})

	return b.fallback(ctx, cause)
}

// State returns the current state, applying the lazy OPEN to HALF_OPEN
// evaluation if the reset timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	now := time.Now()
	var events []BreakerEvent
	if b.state == StateOpen && now.Sub(b.openedAt) >= b.config.ResetTimeout {
		events = b.transitionLocked(StateHalfOpen, ReasonResetElapsed, now)
	}
	state := b.state
	b.mu.Unlock()
	b.emit(events...)
	return state
}

// Stats returns a snapshot of the current rolling-window counters
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.window.rotate(time.Now())
	return b.window.totals()
}

// ForceOpen transitions the breaker to OPEN regardless of its counters.
// Used by manual overrides and distributed-state hydration. Returns true
// if the state actually changed.
func (b *Breaker) ForceOpen(reason string) bool {
	b.mu.Lock()
	events := b.transitionLocked(StateOpen, reason, time.Now())
	b.mu.Unlock()
	b.emit(events...)
	return len(events) > 0
}

// ForceClose transitions the breaker to CLOSED with a fresh window.
// Returns true if the state actually changed.
func (b *Breaker) ForceClose(reason string) bool {
	b.mu.Lock()
	events := b.transitionLocked(StateClosed, reason, time.Now())
	b.mu.Unlock()
	b.emit(events...)
	return len(events) > 0
}

// transitionLocked changes state, bumps the generation so in-flight
// outcomes are discarded, and resets the window. Caller must hold the
// mutex; the returned events must be emitted after it is released.
func (b *Breaker) transitionLocked(to State, reason string, now time.Time) []BreakerEvent {
	if b.state == to {
		return nil
	}

	from := b.state
	b.state = to
	b.generation++
	b.trialInFlight = false
	b.window.reset(now)
	if to == StateOpen {
		b.openedAt = now
	}

	var event Event
	switch to {
	case StateOpen:
		event = EventOpen
	case StateClosed:
		event = EventClose
	default:
		event = EventHalfOpen
	}

	b.logger.Info("Circuit breaker state changed",
		"breaker", b.name,
		"from", from.String(),
		"to", to.String(),
		"reason", reason,
	)

	return []BreakerEvent{{Breaker: b.name, Event: event, From: from, To: to, Reason: reason}}
}

// emit delivers events to all listeners, shielding the breaker from
// panicking subscribers.
func (b *Breaker) emit(events ...BreakerEvent) {
	if len(events) == 0 {
		return
	}
	b.mu.Lock()
	listeners := b.listeners
	b.mu.Unlock()

	for _, e := range events {
		for _, l := range listeners {
			func() {
				defer func() {
					if r := recover(); r != nil {
						b.logger.Warn("Breaker listener panicked",
							"breaker", b.name,
							"event", string(e.Event),
							"panic", fmt.Sprintf("%v", r),
						)
					}
				}()
				l(e)
			}()
		}
	}
}
