package gateway

import (
	"sync"

	"github.com/sprintdeck/sprintdeck/pkg/logging"
)

// BreakerStatus is the read-only view of a breaker exposed by the
// introspection operations.
type BreakerStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
	Stats Stats  `json:"stats"`
}

// Registry maps dependency names to breaker instances. A breaker for a
// given name is created at most once per process lifetime; later requests
// return the same instance with its accumulated stats, ignoring whatever
// config they carry.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	defaults BreakerConfig
	onCreate []func(*Breaker)
	logger   *logging.Logger
}

// NewRegistry creates an empty registry with the given per-breaker defaults
func NewRegistry(defaults BreakerConfig, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Registry{
		breakers: make(map[string]*Breaker),
		defaults: defaults,
		logger:   logger,
	}
}

// OnCreate registers a hook run for every newly created breaker, while the
// registry still holds its creation lock. Hooks attach listeners and kick
// off asynchronous hydration; they must not block on I/O.
func (r *Registry) OnCreate(hook func(*Breaker)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCreate = append(r.onCreate, hook)
}

// GetOrCreate returns the breaker registered under name, creating it with
// the supplied config and fallback if this is the first request for that
// name. Config and fallback are first-writer-wins: re-specifying them on
// later calls never resets accumulated statistics.
func (r *Registry) GetOrCreate(name string, config BreakerConfig, fallback Fallback) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check: another goroutine may have created it
	if b, ok = r.breakers[name]; ok {
		return b
	}

	b = newBreaker(name, config.withDefaults(r.defaults), fallback, r.logger)
	r.breakers[name] = b
	for _, hook := range r.onCreate {
		hook(b)
	}

	r.logger.Debug("Circuit breaker created", "breaker", name)
	return b
}

// Get returns the breaker registered under name, if any
func (r *Registry) Get(name string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[name]
	return b, ok
}

// Names returns the names of all registered breakers
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	return names
}

// Snapshot returns the current state and stats of every registered breaker
func (r *Registry) Snapshot() []BreakerStatus {
	r.mu.RLock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.RUnlock()

	statuses := make([]BreakerStatus, 0, len(breakers))
	for _, b := range breakers {
		statuses = append(statuses, BreakerStatus{
			Name:  b.Name(),
			State: b.State().String(),
			Stats: b.Stats(),
		})
	}
	return statuses
}
