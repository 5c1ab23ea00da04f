package gateway

import (
	"errors"
	"fmt"
	"time"
)

// CircuitOpenError is returned when a call is rejected because the circuit
// is open (or a half-open trial is already in flight). The wrapped action
// was never invoked.
type CircuitOpenError struct {
	Breaker string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is open", e.Breaker)
}

// IsCircuitOpen checks if an error is a circuit-open rejection
func IsCircuitOpen(err error) bool {
	var coErr *CircuitOpenError
	return errors.As(err, &coErr)
}

// TimeoutError is returned when the wrapped action did not settle within
// the breaker's timeout. The action's eventual result, if any, is discarded.
type TimeoutError struct {
	Breaker string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' action timed out after %s", e.Breaker, e.Timeout)
}

// IsTimeout checks if an error is a breaker timeout
func IsTimeout(err error) bool {
	var toErr *TimeoutError
	return errors.As(err, &toErr)
}

// PermissionDeniedError is returned when a manual override is rejected by
// the governance check. It is raised before any state mutation.
type PermissionDeniedError struct {
	Permission string
	RoleID     string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("role '%s' lacks permission '%s'", e.RoleID, e.Permission)
}

// IsPermissionDenied checks if an error is a governance rejection
func IsPermissionDenied(err error) bool {
	var pdErr *PermissionDeniedError
	return errors.As(err, &pdErr)
}
