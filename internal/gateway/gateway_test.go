package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/sprintdeck/sprintdeck/pkg/errors"
)

type fakePermissionChecker struct {
	permissions map[string][]string
	err         error
}

func (f *fakePermissionChecker) RolePermissions(ctx context.Context, roleID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.permissions[roleID], nil
}

type fakeAuditSink struct {
	mu      sync.Mutex
	records []AuditRecord
	err     error
}

func (f *fakeAuditSink) Write(ctx context.Context, record AuditRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

func (f *fakeAuditSink) all() []AuditRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]AuditRecord, len(f.records))
	copy(out, f.records)
	return out
}

type fakeMetricsSink struct {
	mu     sync.Mutex
	states map[string]State
	events map[string]int
}

func newFakeMetricsSink() *fakeMetricsSink {
	return &fakeMetricsSink{
		states: make(map[string]State),
		events: make(map[string]int),
	}
}

func (f *fakeMetricsSink) SetBreakerState(name string, state State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[name] = state
}

func (f *fakeMetricsSink) IncBreakerEvent(name string, event Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[name+"/"+string(event)]++
}

func (f *fakeMetricsSink) state(name string) State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[name]
}

func (f *fakeMetricsSink) eventCount(name string, event Event) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[name+"/"+string(event)]
}

func adminContext() AuditContext {
	return AuditContext{
		UserID: "u-1",
		RoleID: "admin",
		Reason: "maintenance window",
	}
}

func adminPermissions() *fakePermissionChecker {
	return &fakePermissionChecker{
		permissions: map[string][]string{
			"admin":  {PermissionBreakerManage},
			"viewer": {"circuit-breaker:read"},
		},
	}
}

func TestGatewayExecuteSuccess(t *testing.T) {
	g := New(Options{Defaults: testBreakerConfig()})
	defer g.Close()

	result, err := g.Execute(context.Background(), ExecuteOptions{Name: "payments"},
		func(ctx context.Context) (interface{}, error) { return 42, nil }, nil)

	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestGatewayExecuteValidation(t *testing.T) {
	g := New(Options{Defaults: testBreakerConfig()})
	defer g.Close()

	_, err := g.Execute(context.Background(), ExecuteOptions{},
		func(ctx context.Context) (interface{}, error) { return nil, nil }, nil)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	_, err = g.Execute(context.Background(), ExecuteOptions{Name: "payments"}, nil, nil)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestGatewayExecuteReusesBreakerAcrossCalls(t *testing.T) {
	g := New(Options{Defaults: testBreakerConfig()})
	defer g.Close()

	for i := 0; i < 5; i++ {
		_, err := g.Execute(context.Background(), ExecuteOptions{Name: "payments"},
			func(ctx context.Context) (interface{}, error) { return nil, errors.New("down") }, nil)
		require.Error(t, err)
	}

	// The accumulated failures tripped the shared breaker
	_, err := g.Execute(context.Background(), ExecuteOptions{Name: "payments"},
		func(ctx context.Context) (interface{}, error) { return "ok", nil }, nil)
	assert.True(t, IsCircuitOpen(err))
	assert.False(t, g.IsHealthy("payments"))
}

func TestGatewayExecuteTyped(t *testing.T) {
	g := New(Options{Defaults: testBreakerConfig()})
	defer g.Close()

	n, err := ExecuteTyped(context.Background(), g, ExecuteOptions{Name: "payments"},
		func(ctx context.Context) (int, error) { return 7, nil }, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = ExecuteTyped(context.Background(), g, ExecuteOptions{Name: "payments"},
		func(ctx context.Context) (int, error) { return 0, errors.New("down") },
		func(ctx context.Context, cause error) (int, error) { return -1, nil })
	require.NoError(t, err)
}

func TestGatewayTripRequiresPermission(t *testing.T) {
	g := New(Options{
		Defaults:    testBreakerConfig(),
		Permissions: adminPermissions(),
	})
	defer g.Close()

	actx := adminContext()
	actx.RoleID = "viewer"

	changed, err := g.TripBreaker(context.Background(), "payments", actx)
	assert.False(t, changed)
	assert.True(t, IsPermissionDenied(err))

	// The denied override must not have created or opened anything
	assert.True(t, g.IsHealthy("payments"))
	assert.Empty(t, g.GetAllBreakerStates())
}

func TestGatewayTripAllowedForManageRole(t *testing.T) {
	audit := &fakeAuditSink{}
	g := New(Options{
		Defaults:    testBreakerConfig(),
		Permissions: adminPermissions(),
		Audit:       audit,
	})

	changed, err := g.TripBreaker(context.Background(), "payments", adminContext())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, g.IsHealthy("payments"))

	g.Close()

	records := audit.all()
	require.Len(t, records, 1)
	assert.Equal(t, AuditEventTripped, records[0].EventType)
	assert.Equal(t, "payments", records[0].Breaker)
	assert.Equal(t, "CLOSED", records[0].PreviousState)
	assert.Equal(t, "OPEN", records[0].NewState)
	assert.Equal(t, "u-1", records[0].UserID)
	assert.Equal(t, "maintenance window", records[0].Reason)
	assert.NotZero(t, records[0].ID)
	assert.False(t, records[0].CreatedAt.IsZero())
}

func TestGatewayTripIdempotentWritesSingleAudit(t *testing.T) {
	audit := &fakeAuditSink{}
	g := New(Options{
		Defaults:    testBreakerConfig(),
		Permissions: adminPermissions(),
		Audit:       audit,
	})

	changed, err := g.TripBreaker(context.Background(), "payments", adminContext())
	require.NoError(t, err)
	assert.True(t, changed)

	// Second trip is a no-op and produces no audit record
	changed, err = g.TripBreaker(context.Background(), "payments", adminContext())
	require.NoError(t, err)
	assert.False(t, changed)

	g.Close()
	assert.Len(t, audit.all(), 1)
}

func TestGatewayPermissionLookupFailurePropagates(t *testing.T) {
	g := New(Options{
		Defaults:    testBreakerConfig(),
		Permissions: &fakePermissionChecker{err: errors.New("db down")},
	})
	defer g.Close()

	_, err := g.TripBreaker(context.Background(), "payments", adminContext())
	require.Error(t, err)
	assert.False(t, IsPermissionDenied(err))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnavailable))
}

func TestGatewayNilPermissionCheckerAllowsOverrides(t *testing.T) {
	g := New(Options{Defaults: testBreakerConfig()})
	defer g.Close()

	changed, err := g.TripBreaker(context.Background(), "payments", adminContext())
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestGatewayResetUnknownBreakerIsNoop(t *testing.T) {
	audit := &fakeAuditSink{}
	g := New(Options{
		Defaults:    testBreakerConfig(),
		Permissions: adminPermissions(),
		Audit:       audit,
	})

	changed, err := g.ResetBreaker(context.Background(), "never-seen", adminContext())
	require.NoError(t, err)
	assert.False(t, changed)

	g.Close()
	assert.Empty(t, audit.all())
}

func TestGatewayResetReopensTraffic(t *testing.T) {
	audit := &fakeAuditSink{}
	g := New(Options{
		Defaults:    testBreakerConfig(),
		Permissions: adminPermissions(),
		Audit:       audit,
	})

	_, err := g.TripBreaker(context.Background(), "payments", adminContext())
	require.NoError(t, err)

	changed, err := g.ResetBreaker(context.Background(), "payments", adminContext())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, g.IsHealthy("payments"))

	g.Close()

	records := audit.all()
	require.Len(t, records, 2)
	types := []string{records[0].EventType, records[1].EventType}
	assert.ElementsMatch(t, []string{AuditEventTripped, AuditEventReset}, types)
}

func TestGatewayAuditFailureDoesNotRollBackOverride(t *testing.T) {
	g := New(Options{
		Defaults:    testBreakerConfig(),
		Permissions: adminPermissions(),
		Audit:       &fakeAuditSink{err: errors.New("insert failed")},
	})

	changed, err := g.TripBreaker(context.Background(), "payments", adminContext())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, g.IsHealthy("payments"))
	g.Close()
}

func TestGatewayIsHealthyUnknownBreaker(t *testing.T) {
	g := New(Options{Defaults: testBreakerConfig()})
	defer g.Close()

	assert.True(t, g.IsHealthy("never-seen"))
}

func TestGatewayGetAllBreakerStates(t *testing.T) {
	g := New(Options{Defaults: testBreakerConfig()})
	defer g.Close()

	_, _ = g.Execute(context.Background(), ExecuteOptions{Name: "payments"},
		func(ctx context.Context) (interface{}, error) { return "ok", nil }, nil)
	_, _ = g.Execute(context.Background(), ExecuteOptions{Name: "search"},
		func(ctx context.Context) (interface{}, error) { return nil, errors.New("down") }, nil)

	states := g.GetAllBreakerStates()
	require.Len(t, states, 2)

	byName := map[string]BreakerStatus{}
	for _, s := range states {
		byName[s.Name] = s
	}
	assert.Equal(t, 1, byName["payments"].Stats.Successes)
	assert.Equal(t, 1, byName["search"].Stats.Failures)
}

func TestGatewayMetricsTrackStateAndEvents(t *testing.T) {
	sink := newFakeMetricsSink()
	g := New(Options{
		Defaults: testBreakerConfig(),
		Metrics:  sink,
	})
	defer g.Close()

	_, err := g.Execute(context.Background(), ExecuteOptions{Name: "payments"},
		func(ctx context.Context) (interface{}, error) { return "ok", nil }, nil)
	require.NoError(t, err)

	assert.Equal(t, StateClosed, sink.state("payments"))
	assert.Equal(t, 1, sink.eventCount("payments", EventSuccess))

	_, err = g.TripBreaker(context.Background(), "payments", adminContext())
	require.NoError(t, err)
	assert.Equal(t, StateOpen, sink.state("payments"))
	assert.Equal(t, 1, sink.eventCount("payments", EventOpen))
}

func TestGatewayDistributedStoreWiring(t *testing.T) {
	store := newFakeStateStore()
	g := New(Options{
		Defaults: testBreakerConfig(),
		StateTTL: time.Minute,
		Store:    store,
	})

	_, err := g.TripBreaker(context.Background(), "payments", adminContext())
	require.NoError(t, err)
	g.Close()

	value, ok := store.get("payments")
	require.True(t, ok)
	assert.Equal(t, StateValueOpen, value)
	assert.Equal(t, time.Minute, store.ttls["payments"])
}

func TestGatewayHydratesNewBreakerFromStore(t *testing.T) {
	store := newFakeStateStore()
	store.values["payments"] = StateValueOpen

	g := New(Options{
		Defaults: testBreakerConfig(),
		StateTTL: time.Minute,
		Store:    store,
	})

	// First use creates the breaker and kicks off async hydration
	_, _ = g.Execute(context.Background(), ExecuteOptions{Name: "payments"},
		func(ctx context.Context) (interface{}, error) { return "ok", nil }, nil)

	// Wait for hydration to land
	require.Eventually(t, func() bool {
		return !g.IsHealthy("payments")
	}, time.Second, 5*time.Millisecond)

	g.Close()
}

func TestGatewayExecuteFirstCallConfigWins(t *testing.T) {
	g := New(Options{Defaults: testBreakerConfig()})
	defer g.Close()

	opts := ExecuteOptions{Name: "payments", Timeout: 20 * time.Millisecond}
	_, err := g.Execute(context.Background(), opts, func(ctx context.Context) (interface{}, error) {
		time.Sleep(200 * time.Millisecond)
		return "late", nil
	}, nil)
	assert.True(t, IsTimeout(err))

	// A longer timeout on a later call is ignored; the breaker keeps its
	// original 20ms budget
	opts.Timeout = 10 * time.Second
	_, err = g.Execute(context.Background(), opts, func(ctx context.Context) (interface{}, error) {
		time.Sleep(200 * time.Millisecond)
		return "late", nil
	}, nil)
	assert.True(t, IsTimeout(err))
}
