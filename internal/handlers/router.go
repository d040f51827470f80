package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"frameworks/api_compose/pkg/auth"
	"frameworks/api_compose/pkg/middleware"
)

// RouterConfig carries the auth material the route groups need.
type RouterConfig struct {
	JWTSecret    []byte
	ServiceToken string
}

// RegisterRoutes attaches the API to an already configured engine. The
// user surface sits behind JWT auth; the executor callback sits behind
// service token auth.
func RegisterRoutes(app *gin.Engine, h *Handlers, cfg RouterConfig) {
	api := app.Group("/")
	api.Use(auth.JWTAuthMiddleware(cfg.JWTSecret))
	{
		api.GET("/projects", h.ListProjects)
		api.GET("/projects/:name", h.GetProject)
		api.GET("/projects/:name/compose-file", h.GetComposeFile)
		api.POST("/projects/:name/actions", h.RequestAction)

		api.GET("/conflicts", h.ListConflicts)
		api.GET("/compose-files", h.ListComposeFiles)
		api.POST("/discovery/rescan", h.Rescan)
		api.POST("/discovery/invalidate", h.InvalidateCache)

		api.GET("/operations", h.ListOperations)
		api.GET("/operations/:id", h.GetOperation)

		api.GET("/ws", h.HandleWebSocket)
	}

	// Callbacks apply journal writes; a hung database should time the
	// request out so dockhand retries instead of piling up connections.
	internal := app.Group("/internal")
	internal.Use(middleware.TimeoutMiddleware(15 * time.Second))
	internal.Use(auth.ServiceAuthMiddleware(cfg.ServiceToken))
	{
		internal.POST("/operations/:id/status", h.OperationStatusCallback)
	}
}
