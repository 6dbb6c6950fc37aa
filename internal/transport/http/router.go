package httptransport

import (
	"log/slog"

	"github.com/ErlanBelekov/journey/internal/transport/http/handler"
	"github.com/ErlanBelekov/journey/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"
)

// NewRouter wires every HTTP surface the engine exposes: execution
// lifecycle, the Value Mutation API, the Read API with Waiting, and the
// two operator-only admin actions, all behind service-token auth.
func NewRouter(logger *slog.Logger, execHandler *handler.ExecutionHandler, valueHandler *handler.ValueHandler, adminHandler *handler.AdminHandler, jwtKey []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Security(), sloggin.New(logger), middleware.Metrics())

	executions := r.Group("/executions", middleware.Auth(jwtKey))
	executions.POST("", execHandler.Create)
	executions.GET("/:id", execHandler.Get)
	executions.POST("/:id/archive", execHandler.Archive)

	executions.POST("/:id/values", valueHandler.SetMany)
	executions.DELETE("/:id/values", valueHandler.UnsetMany)
	executions.GET("/:id/values/:node", valueHandler.Get)

	executions.POST("/:id/nodes/:node/retry", adminHandler.ForceRetry)
	executions.POST("/:id/migrate", adminHandler.Migrate)

	return r
}
