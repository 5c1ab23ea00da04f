package api

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sprintdeck/sprintdeck/internal/gateway"
	"github.com/sprintdeck/sprintdeck/pkg/logging"
)

// BreakerAdmin is the slice of the gateway the admin API needs
type BreakerAdmin interface {
	TripBreaker(ctx context.Context, name string, actx gateway.AuditContext) (bool, error)
	ResetBreaker(ctx context.Context, name string, actx gateway.AuditContext) (bool, error)
	GetAllBreakerStates() []gateway.BreakerStatus
	IsHealthy(name string) bool
}

// AuditReader lists persisted override records for a breaker
type AuditReader interface {
	ListByBreaker(ctx context.Context, breaker string, limit int) ([]gateway.AuditRecord, error)
}

// BreakerHandler serves the breaker admin endpoints
type BreakerHandler struct {
	admin  BreakerAdmin
	audit  AuditReader
	logger *logging.Logger
}

// NewBreakerHandler creates the admin handler. audit may be nil when no
// audit store is configured; the audit endpoint then returns empty lists.
func NewBreakerHandler(admin BreakerAdmin, audit AuditReader, logger *logging.Logger) *BreakerHandler {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &BreakerHandler{
		admin:  admin,
		audit:  audit,
		logger: logger,
	}
}

// BreakerStateDTO represents a breaker in API responses
type BreakerStateDTO struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	Successes int    `json:"successes"`
	Failures  int    `json:"failures"`
	Timeouts  int    `json:"timeouts"`
	Fallbacks int    `json:"fallbacks"`
}

func toBreakerStateDTO(s gateway.BreakerStatus) BreakerStateDTO {
	return BreakerStateDTO{
		Name:      s.Name,
		State:     s.State,
		Successes: s.Stats.Successes,
		Failures:  s.Stats.Failures,
		Timeouts:  s.Stats.Timeouts,
		Fallbacks: s.Stats.Fallbacks,
	}
}

// OverrideRequest carries the operator's reason for a manual trip or reset
type OverrideRequest struct {
	Reason string `json:"reason" binding:"required,min=3,max=500"`
}

// OverrideResponse reports whether the override changed anything
type OverrideResponse struct {
	Breaker string `json:"breaker"`
	State   string `json:"state"`
	Changed bool   `json:"changed"`
}

// ListBreakers returns the state and rolling stats of every known breaker
// GET /api/v1/breakers
func (h *BreakerHandler) ListBreakers(c *gin.Context) {
	states := h.admin.GetAllBreakerStates()

	dtos := make([]BreakerStateDTO, 0, len(states))
	for _, s := range states {
		dtos = append(dtos, toBreakerStateDTO(s))
	}

	SuccessResponse(c, map[string]interface{}{
		"breakers": dtos,
		"total":    len(dtos),
	})
}

// GetBreakerHealth reports whether calls to a dependency are being attempted
// GET /api/v1/breakers/:name/health
func (h *BreakerHandler) GetBreakerHealth(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		BadRequestResponse(c, "Breaker name is required")
		return
	}

	SuccessResponse(c, map[string]interface{}{
		"breaker": name,
		"healthy": h.admin.IsHealthy(name),
	})
}

// TripBreaker forces a breaker OPEN
// POST /api/v1/breakers/:name/trip
func (h *BreakerHandler) TripBreaker(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		BadRequestResponse(c, "Breaker name is required")
		return
	}

	var req OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, "A reason for the override is required")
		return
	}

	actx := h.auditContext(c, req.Reason)
	changed, err := h.admin.TripBreaker(c.Request.Context(), name, actx)
	if err != nil {
		h.logger.Warn("Breaker trip refused",
			"breaker", name, "user_id", actx.UserID, "error", err.Error())
		ErrorResponseFromError(c, err)
		return
	}

	h.logger.Info("Breaker tripped manually",
		"breaker", name, "user_id", actx.UserID, "changed", changed)
	SuccessResponse(c, OverrideResponse{
		Breaker: name,
		State:   gateway.StateOpen.String(),
		Changed: changed,
	})
}

// ResetBreaker forces a breaker CLOSED
// POST /api/v1/breakers/:name/reset
func (h *BreakerHandler) ResetBreaker(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		BadRequestResponse(c, "Breaker name is required")
		return
	}

	var req OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, "A reason for the override is required")
		return
	}

	actx := h.auditContext(c, req.Reason)
	changed, err := h.admin.ResetBreaker(c.Request.Context(), name, actx)
	if err != nil {
		h.logger.Warn("Breaker reset refused",
			"breaker", name, "user_id", actx.UserID, "error", err.Error())
		ErrorResponseFromError(c, err)
		return
	}

	h.logger.Info("Breaker reset manually",
		"breaker", name, "user_id", actx.UserID, "changed", changed)
	SuccessResponse(c, OverrideResponse{
		Breaker: name,
		State:   gateway.StateClosed.String(),
		Changed: changed,
	})
}

// ListBreakerAudit returns recent override records for a breaker
// GET /api/v1/breakers/:name/audit
func (h *BreakerHandler) ListBreakerAudit(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		BadRequestResponse(c, "Breaker name is required")
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			BadRequestResponse(c, "limit must be a positive integer up to 500")
			return
		}
		limit = parsed
	}

	records := []gateway.AuditRecord{}
	if h.audit != nil {
		var err error
		records, err = h.audit.ListByBreaker(c.Request.Context(), name, limit)
		if err != nil {
			ErrorResponseFromError(c, err)
			return
		}
	}

	SuccessResponse(c, map[string]interface{}{
		"breaker": name,
		"records": records,
		"total":   len(records),
	})
}

// auditContext builds the override identity from the authenticated caller
func (h *BreakerHandler) auditContext(c *gin.Context, reason string) gateway.AuditContext {
	actx := gateway.AuditContext{Reason: reason}
	if claims := callerClaims(c); claims != nil {
		actx.UserID = claims.UserID
		actx.RoleID = claims.RoleID
		actx.TenantID = claims.TenantID
	}
	return actx
}
