// README: HTTP router registration.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tripflow/internal/flow"
	"tripflow/internal/http/handlers"
	"tripflow/internal/http/middleware"
)

// RouterDeps carries what the routes need. MCP may be nil to leave /mcp unmounted.
// Usage may be nil when quota metering is off.
type RouterDeps struct {
	Planner  handlers.Planner
	Registry *flow.Registry
	Usage    handlers.UsageReader
	Timeout  time.Duration
	Logger   *slog.Logger
	MCP      http.Handler
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestLogger(deps.Logger),
		middleware.Recovery(deps.Logger),
	)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	flowHandler := handlers.NewFlowHandler(deps.Planner, deps.Registry, deps.Timeout)
	api := r.Group("/api", middleware.Caller())
	api.GET("/flows", flowHandler.List)
	api.POST("/flows/:name", flowHandler.Invoke)
	api.GET("/usage", handlers.NewUsageHandler(deps.Usage).Get)

	if deps.MCP != nil {
		r.Any("/mcp/*path", gin.WrapH(deps.MCP))
	}
	return r
}
