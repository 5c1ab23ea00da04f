package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/sprintdeck/sprintdeck/pkg/errors"
	"github.com/sprintdeck/sprintdeck/pkg/logging"
	"github.com/sprintdeck/sprintdeck/pkg/tracing"
)

// PermissionBreakerManage guards the manual trip/reset operations
const PermissionBreakerManage = "circuit-breaker:manage"

// Audit event types for manual overrides
const (
	AuditEventTripped = "breaker.tripped"
	AuditEventReset   = "breaker.reset"
)

// PermissionChecker looks up the permission strings granted to a role.
// Lookup failures (as opposed to missing permissions) must surface as
// errors so the gateway can refuse the override instead of silently
// allowing it.
type PermissionChecker interface {
	RolePermissions(ctx context.Context, roleID string) ([]string, error)
}

// AuditSink persists structured audit records for manual overrides.
// Writes happen off the caller's critical path; failures are logged and
// never roll back the override that already succeeded.
type AuditSink interface {
	Write(ctx context.Context, record AuditRecord) error
}

// MetricsSink receives best-effort gauge and counter updates. It must not
// block; a panicking sink is recovered by the breaker's emit path.
type MetricsSink interface {
	SetBreakerState(name string, state State)
	IncBreakerEvent(name string, event Event)
}

// AuditContext identifies who requested a manual override and why.
// Required only for trip/reset, never for automatic transitions.
type AuditContext struct {
	UserID   string `json:"user_id"`
	RoleID   string `json:"role_id"`
	Reason   string `json:"reason"`
	TenantID string `json:"tenant_id,omitempty"`
}

// AuditRecord describes a manual override for the audit trail
type AuditRecord struct {
	ID            uuid.UUID `json:"id" db:"id"`
	EventType     string    `json:"event_type" db:"event_type"`
	Breaker       string    `json:"breaker" db:"breaker"`
	PreviousState string    `json:"previous_state" db:"previous_state"`
	NewState      string    `json:"new_state" db:"new_state"`
	UserID        string    `json:"user_id" db:"user_id"`
	RoleID        string    `json:"role_id" db:"role_id"`
	TenantID      string    `json:"tenant_id,omitempty" db:"tenant_id"`
	Reason        string    `json:"reason" db:"reason"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Options configures a Gateway. All collaborators are optional: a nil
// store disables distributed sync, a nil checker disables the governance
// gate (overrides are allowed with a warning), a nil sink disables audit
// or metrics. Absence degrades the feature silently, never crashes.
type Options struct {
	Defaults    BreakerConfig
	StateTTL    time.Duration
	Store       CircuitStateStore
	Permissions PermissionChecker
	Audit       AuditSink
	Metrics     MetricsSink
	Logger      *logging.Logger
	Tracer      *tracing.Service
}

// ExecuteOptions selects and, on first use of a name, configures a breaker
type ExecuteOptions struct {
	// Name is the stable identifier of the protected dependency
	Name string
	// Per-call overrides, effective only on first creation of the breaker
	Timeout                  time.Duration
	ErrorThresholdPercentage int
	ResetTimeout             time.Duration
	VolumeThreshold          int
	WindowSize               time.Duration
	WindowBuckets            int
}

func (o ExecuteOptions) breakerConfig() BreakerConfig {
	return BreakerConfig{
		Timeout:                  o.Timeout,
		ErrorThresholdPercentage: o.ErrorThresholdPercentage,
		ResetTimeout:             o.ResetTimeout,
		VolumeThreshold:          o.VolumeThreshold,
		WindowSize:               o.WindowSize,
		WindowBuckets:            o.WindowBuckets,
	}
}

// Gateway is the public façade of the resilience layer. Callers hand it a
// dependency name and a unit of work; it resolves the named breaker, runs
// the work subject to the breaker's state and timeout, and drives the
// distributed-sync, metrics, and audit side effects.
type Gateway struct {
	registry *Registry
	sync     *Synchronizer
	perms    PermissionChecker
	audit    AuditSink
	metrics  MetricsSink
	logger   *logging.Logger
	tracer   *tracing.Service

	auditTimeout time.Duration
	wg           sync.WaitGroup
}

// New creates a gateway and wires listeners and hydration for every
// breaker the registry will create. Construction performs no network I/O.
func New(opts Options) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}

	stateTTL := opts.StateTTL
	if stateTTL <= 0 {
		stateTTL = 2 * time.Minute
	}

	g := &Gateway{
		registry:     NewRegistry(opts.Defaults.withDefaults(defaultBreakerConfig), logger),
		perms:        opts.Permissions,
		audit:        opts.Audit,
		metrics:      opts.Metrics,
		logger:       logger,
		tracer:       opts.Tracer,
		auditTimeout: 5 * time.Second,
	}

	if opts.Store != nil {
		g.sync = NewSynchronizer(opts.Store, stateTTL, logger)
	}

	g.registry.OnCreate(func(b *Breaker) {
		if g.metrics != nil {
			g.metrics.SetBreakerState(b.Name(), StateClosed)
			b.AddListener(g.metricsListener())
		}
		if g.sync != nil {
			b.AddListener(g.sync.Listener())
			g.sync.Hydrate(b)
		}
	})

	return g
}

// defaultBreakerConfig backs any zero-valued gateway defaults
var defaultBreakerConfig = BreakerConfig{
	Timeout:                  10 * time.Second,
	ErrorThresholdPercentage: 50,
	ResetTimeout:             30 * time.Second,
	VolumeThreshold:          10,
	WindowSize:               10 * time.Second,
	WindowBuckets:            10,
}

// Execute resolves (or lazily creates) the named breaker and fires the
// action through it. It returns the action's result on success, the
// fallback's result on rejection or failure when a fallback is supplied,
// or the typed error otherwise. The action is invoked at most once; retry
// policy belongs to the caller.
func (g *Gateway) Execute(ctx context.Context, opts ExecuteOptions, action Action, fallback Fallback) (interface{}, error) {
	if opts.Name == "" {
		return nil, apperrors.NewValidationError("breaker name is required")
	}
	if action == nil {
		return nil, apperrors.NewValidationError("action is required")
	}

	b := g.registry.GetOrCreate(opts.Name, opts.breakerConfig(), fallback)

	if g.tracer != nil {
		var span tracing.Span
		ctx, span = g.tracer.StartBreakerSpan(ctx, opts.Name, b.State().String())
		defer span.End()

		result, err := b.Execute(ctx, action)
		if err != nil {
			span.RecordError(err)
		}
		return result, err
	}

	return b.Execute(ctx, action)
}

// ExecuteTyped is a generic convenience wrapper around Gateway.Execute
func ExecuteTyped[T any](ctx context.Context, g *Gateway, opts ExecuteOptions, action func(ctx context.Context) (T, error), fallback func(ctx context.Context, cause error) (T, error)) (T, error) {
	var fb Fallback
	if fallback != nil {
		fb = func(ctx context.Context, cause error) (interface{}, error) {
			return fallback(ctx, cause)
		}
	}

	result, err := g.Execute(ctx, opts, func(ctx context.Context) (interface{}, error) {
		return action(ctx)
	}, fb)
	if err != nil {
		var zero T
		return zero, err
	}

	typed, ok := result.(T)
	if !ok {
		var zero T
		return zero, apperrors.NewInternalError("breaker action returned an unexpected type")
	}
	return typed, nil
}

// TripBreaker forces the named breaker OPEN after a governance check,
// creating the breaker if it does not exist yet so operators can disable
// a dependency pre-emptively. Returns whether the state changed.
func (g *Gateway) TripBreaker(ctx context.Context, name string, actx AuditContext) (bool, error) {
	if err := g.authorize(ctx, actx); err != nil {
		return false, err
	}

	b := g.registry.GetOrCreate(name, BreakerConfig{}, nil)
	previous := b.State()
	changed := b.ForceOpen(ReasonManual)
	if changed {
		g.writeAudit(AuditRecord{
			EventType:     AuditEventTripped,
			Breaker:       name,
			PreviousState: previous.String(),
			NewState:      StateOpen.String(),
			UserID:        actx.UserID,
			RoleID:        actx.RoleID,
			TenantID:      actx.TenantID,
			Reason:        actx.Reason,
		})
	}
	return changed, nil
}

// ResetBreaker forces the named breaker CLOSED after a governance check.
// Resetting a name with no registered breaker is a no-op: the gateway has
// not observed any calls for it. Returns whether the state changed.
func (g *Gateway) ResetBreaker(ctx context.Context, name string, actx AuditContext) (bool, error) {
	if err := g.authorize(ctx, actx); err != nil {
		return false, err
	}

	b, ok := g.registry.Get(name)
	if !ok {
		return false, nil
	}

	previous := b.State()
	changed := b.ForceClose(ReasonManual)
	if changed {
		g.writeAudit(AuditRecord{
			EventType:     AuditEventReset,
			Breaker:       name,
			PreviousState: previous.String(),
			NewState:      StateClosed.String(),
			UserID:        actx.UserID,
			RoleID:        actx.RoleID,
			TenantID:      actx.TenantID,
			Reason:        actx.Reason,
		})
	}
	return changed, nil
}

// GetAllBreakerStates returns the state and stats of every known breaker
func (g *Gateway) GetAllBreakerStates() []BreakerStatus {
	return g.registry.Snapshot()
}

// IsHealthy reports whether calls to the named dependency are currently
// being attempted. A name with no registered breaker is healthy: the
// gateway has not yet observed any calls for it.
func (g *Gateway) IsHealthy(name string) bool {
	b, ok := g.registry.Get(name)
	if !ok {
		return true
	}
	return b.State() != StateOpen
}

// Close releases the gateway's handles: it stops distributed publishes
// and waits for in-flight fire-and-forget work (sync writes, audit
// records) to settle.
func (g *Gateway) Close() {
	if g.sync != nil {
		g.sync.Close()
	}
	g.wg.Wait()
}

// authorize enforces the circuit-breaker:manage permission before any
// manual mutation. Lookup infrastructure failures propagate; the override
// is never silently allowed on a broken authorization backend.
func (g *Gateway) authorize(ctx context.Context, actx AuditContext) error {
	if g.perms == nil {
		g.logger.Warn("No permission checker configured, allowing manual override",
			"user_id", actx.UserID, "role_id", actx.RoleID)
		return nil
	}

	permissions, err := g.perms.RolePermissions(ctx, actx.RoleID)
	if err != nil {
		return apperrors.NewUnavailableError("authorization", "permission lookup failed").WithCause(err)
	}

	for _, p := range permissions {
		if p == PermissionBreakerManage {
			return nil
		}
	}
	return &PermissionDeniedError{Permission: PermissionBreakerManage, RoleID: actx.RoleID}
}

// writeAudit records a manual override asynchronously. The operation has
// already succeeded; audit failures are logged and never surfaced.
func (g *Gateway) writeAudit(record AuditRecord) {
	if g.audit == nil {
		return
	}

	record.ID = uuid.New()
	record.CreatedAt = time.Now()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), g.auditTimeout)
		defer cancel()
		if err := g.audit.Write(ctx, record); err != nil {
			g.logger.Error("Failed to write breaker audit record",
				"breaker", record.Breaker,
				"event_type", record.EventType,
				"error", err.Error(),
			)
		}
	}()
}

// metricsListener maintains the per-breaker state gauge and per-outcome
// counters from breaker events.
func (g *Gateway) metricsListener() Listener {
	return func(e BreakerEvent) {
		g.metrics.IncBreakerEvent(e.Breaker, e.Event)
		switch e.Event {
		case EventOpen, EventClose, EventHalfOpen:
			g.metrics.SetBreakerState(e.Breaker, e.To)
		}
	}
}
