package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sprintdeck/sprintdeck/pkg/logging"
)

// ErrStateNotFound is returned by CircuitStateStore implementations when
// no record exists for a breaker name. Absence means CLOSED/unknown.
var ErrStateNotFound = errors.New("circuit state not found")

// StateValueOpen is the only value ever persisted to the distributed
// store. HALF_OPEN is transient and local, never published.
const StateValueOpen = "OPEN"

// CircuitStateStore is the shared key-value store that carries circuit
// state across processes. It is advisory: in-flight request decisions
// always use local breaker state.
type CircuitStateStore interface {
	Get(ctx context.Context, name string) (string, error)
	SetWithTTL(ctx context.Context, name, value string, ttl time.Duration) error
	Delete(ctx context.Context, name string) error
}

// Synchronizer keeps local breakers eventually consistent with the
// distributed store. Publishes are fire-and-forget: failures are logged,
// never thrown, and never block a state transition or the caller.
type Synchronizer struct {
	store     CircuitStateStore
	ttl       time.Duration
	opTimeout time.Duration
	logger    *logging.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// NewSynchronizer creates a synchronizer over the given store. The TTL is
// the failsafe expiry for published OPEN records, so a crashed process
// cannot leave a permanently open circuit with no writer to clear it.
func NewSynchronizer(store CircuitStateStore, ttl time.Duration, logger *logging.Logger) *Synchronizer {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Synchronizer{
		store:     store,
		ttl:       ttl,
		opTimeout: 5 * time.Second,
		logger:    logger,
	}
}

// Listener returns the breaker listener that publishes OPEN transitions
// and clears the record on CLOSE. HALF_OPEN is never persisted.
func (s *Synchronizer) Listener() Listener {
	return func(e BreakerEvent) {
		switch e.Event {
		case EventOpen:
			s.spawn(func(ctx context.Context) {
				if err := s.store.SetWithTTL(ctx, e.Breaker, StateValueOpen, s.ttl); err != nil {
					s.logger.Warn("Failed to publish open circuit state",
						"breaker", e.Breaker, "error", err.Error())
				}
			})
		case EventClose:
			s.spawn(func(ctx context.Context) {
				if err := s.store.Delete(ctx, e.Breaker); err != nil {
					s.logger.Warn("Failed to clear distributed circuit state",
						"breaker", e.Breaker, "error", err.Error())
				}
			})
		}
	}
}

// Hydrate asynchronously reads the distributed record for a freshly
// created breaker and forces it OPEN if a sibling instance already
// tripped it. A read failure or an absent key leaves the breaker in its
// default CLOSED state: unreachability of the shared store degrades to
// local-only circuit behavior rather than blocking traffic.
func (s *Synchronizer) Hydrate(b *Breaker) {
	s.spawn(func(ctx context.Context) {
		value, err := s.store.Get(ctx, b.Name())
		if err != nil {
			if !errors.Is(err, ErrStateNotFound) {
				s.logger.Warn("Failed to hydrate circuit state, staying closed",
					"breaker", b.Name(), "error", err.Error())
			}
			return
		}
		if value == StateValueOpen {
			b.ForceOpen(ReasonHydrated)
		}
	})
}

// spawn runs fn on its own goroutine with a bounded context, tracking it
// so Close can wait for in-flight work.
func (s *Synchronizer) spawn(fn func(ctx context.Context)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// Close stops accepting new work and waits for in-flight publishes
func (s *Synchronizer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}
