package gateway

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitOpenError(t *testing.T) {
	err := &CircuitOpenError{Breaker: "payments"}
	assert.Contains(t, err.Error(), "payments")
	assert.True(t, IsCircuitOpen(err))
	assert.True(t, IsCircuitOpen(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsCircuitOpen(errors.New("other")))
	assert.False(t, IsCircuitOpen(nil))
}

func TestTimeoutError(t *testing.T) {
	err := &TimeoutError{Breaker: "payments", Timeout: 2 * time.Second}
	assert.Contains(t, err.Error(), "payments")
	assert.Contains(t, err.Error(), "2s")
	assert.True(t, IsTimeout(err))
	assert.True(t, IsTimeout(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsTimeout(errors.New("other")))
}

func TestPermissionDeniedError(t *testing.T) {
	err := &PermissionDeniedError{Permission: PermissionBreakerManage, RoleID: "viewer"}
	assert.Contains(t, err.Error(), "viewer")
	assert.Contains(t, err.Error(), PermissionBreakerManage)
	assert.True(t, IsPermissionDenied(err))
	assert.False(t, IsPermissionDenied(errors.New("other")))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "OPEN", StateOpen.String())
	assert.Equal(t, "HALF_OPEN", StateHalfOpen.String())
	assert.Equal(t, "UNKNOWN", State(99).String())
}
