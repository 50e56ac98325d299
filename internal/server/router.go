package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gmarmat/jotrack/internal/analysis"
	"github.com/gmarmat/jotrack/internal/config"
	"github.com/gmarmat/jotrack/internal/evidence"
	"github.com/gmarmat/jotrack/internal/guardrails"
	"github.com/gmarmat/jotrack/internal/services/health"
	"github.com/gmarmat/jotrack/internal/shared/metrics"
	"github.com/gmarmat/jotrack/internal/shared/server/middleware"
	"github.com/gmarmat/jotrack/internal/shared/server/respond"
	"github.com/gmarmat/jotrack/internal/variants"
)

// RouterDeps carries the handlers the router wires up.
type RouterDeps struct {
	Config           config.Config
	HealthService    *health.Service
	VariantsHandler  *variants.Handler
	AnalysisHandler  *analysis.Handler
	EvidenceHandler  *evidence.Handler
	GuardrailHandler *guardrails.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules: map[string]middleware.RateLimitRule{
				"DEFAULT": {Rate: 10, Burst: 20},
			},
		}),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, deps.HealthService.Status(c.Request.Context()))
	})
	deps.VariantsHandler.RegisterRoutes(api)
	deps.AnalysisHandler.RegisterRoutes(api)
	deps.EvidenceHandler.RegisterRoutes(api)
	deps.GuardrailHandler.RegisterRoutes(api)

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
