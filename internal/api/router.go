package api

import (
	"github.com/gin-gonic/gin"

	"github.com/sprintdeck/sprintdeck/internal/auth"
	"github.com/sprintdeck/sprintdeck/pkg/config"
	"github.com/sprintdeck/sprintdeck/pkg/health"
	"github.com/sprintdeck/sprintdeck/pkg/logging"
	"github.com/sprintdeck/sprintdeck/pkg/metrics"
	"github.com/sprintdeck/sprintdeck/pkg/tracing"
)

// RouterDeps bundles the collaborators the admin router needs. Metrics,
// tracer, verifier and checker are optional; absent ones simply leave
// their endpoint or middleware out.
type RouterDeps struct {
	Handler  *BreakerHandler
	Verifier *auth.TokenVerifier
	Checker  *health.Checker
	Metrics  *metrics.Metrics
	Tracer   *tracing.Service
	Logger   *logging.Logger
}

// NewRouter creates and configures the admin API router
func NewRouter(cfg *config.Config, deps RouterDeps) *gin.Engine {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}

	router := gin.New()

	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(logger))
	router.Use(ErrorHandlingMiddleware())
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(SecurityHeadersMiddleware())
	if deps.Tracer != nil {
		router.Use(deps.Tracer.Middleware())
	}
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
	}

	// Operational endpoints, no auth required
	if deps.Checker != nil {
		router.GET("/health", gin.WrapH(deps.Checker.Handler()))
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	router.GET("/api/v1", func(c *gin.Context) {
		SuccessResponse(c, map[string]interface{}{
			"name":    "Sprintdeck Resilience Gateway",
			"version": "1.0.0",
			"status":  "ok",
		})
	})

	v1 := router.Group("/api/v1")
	{
		protected := v1.Group("")
		protected.Use(AuthMiddleware(deps.Verifier))
		{
			breakers := protected.Group("/breakers")
			{
				breakers.GET("", deps.Handler.ListBreakers)
				breakers.GET("/:name/health", deps.Handler.GetBreakerHealth)
				breakers.GET("/:name/audit", deps.Handler.ListBreakerAudit)
				breakers.POST("/:name/trip", deps.Handler.TripBreaker)
				breakers.POST("/:name/reset", deps.Handler.ResetBreaker)
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		NotFoundResponse(c, "Endpoint not found")
	})

	return router
}
