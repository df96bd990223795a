package routes

import (
	"github.com/gin-gonic/gin"

	"ussbot/internal/handlers"
)

// SetupRoutes wires the ops endpoints.
func SetupRoutes(router *gin.Engine, status *handlers.StatusHandler) {
	router.GET("/healthz", status.Health)

	api := router.Group("/api")
	{
		api.GET("/stats", status.Stats)
	}
}
