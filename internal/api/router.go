package api

import (
	"github.com/gin-gonic/gin"

	"court-intake-service/internal/logging"
)

func NewRouter(logger *logging.Logger, basePath string, h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	api := r.Group(basePath)
	{
		// Messages
		api.POST("/messages", h.SubmitMessage)
		api.GET("/messages", h.ListMessages)
		api.GET("/messages/:id", h.GetMessage)
		api.POST("/messages/:id/assign", h.AssignCase)
		api.POST("/messages/:id/retry", h.RetryMessage)

		// Downloads
		api.POST("/download-events", h.DownloadEvent)

		api.GET("/ws", h.Watch)
	}

	r.GET("/health", h.Health)
	return r
}
