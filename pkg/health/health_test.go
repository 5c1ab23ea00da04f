package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckerAllHealthy(t *testing.T) {
	c := NewChecker()
	c.Register("database", func(ctx context.Context) error { return nil })
	c.Register("redis", func(ctx context.Context) error { return nil })

	report := c.Check(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Len(t, report.Checks, 2)
	assert.Equal(t, StatusHealthy, report.Checks["database"].Status)
}

func TestCheckerOneFailureIsUnhealthy(t *testing.T) {
	c := NewChecker()
	c.Register("database", func(ctx context.Context) error { return nil })
	c.Register("redis", func(ctx context.Context) error { return errors.New("connection refused") })

	report := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, StatusUnhealthy, report.Checks["redis"].Status)
	assert.Equal(t, "connection refused", report.Checks["redis"].Error)
	assert.Equal(t, StatusHealthy, report.Checks["database"].Status)
}

func TestCheckerNoChecks(t *testing.T) {
	c := NewChecker()
	report := c.Check(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Empty(t, report.Checks)
}

func TestHandlerStatusCodes(t *testing.T) {
	c := NewChecker()
	c.Register("database", func(ctx context.Context) error { return nil })

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)

	c.Register("redis", func(ctx context.Context) error { return errors.New("down") })
	w = httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
