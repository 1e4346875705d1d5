package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/davibasa/Enter-Fellowship-sub001/api/handlers"
	"github.com/davibasa/Enter-Fellowship-sub001/api/middleware"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
)

// SetupRoutes registers the /api/v1 surface.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, log logger.Logger) {
	r.Use(gin.Recovery(), middleware.CORS(), middleware.Trace(), middleware.AccessLog(log))

	v1 := r.Group("/api/v1")
	v1.GET("/health", h.Health.Check)

	ext := v1.Group("/extraction")
	{
		ext.POST("/extract", h.Extraction.Extract)
		ext.POST("/extract-file", h.Extraction.ExtractFile)
		ext.POST("/batch", h.Extraction.SubmitBatch)
		ext.GET("/jobs/:jobId", h.Extraction.GetJob)
		ext.DELETE("/jobs/:jobId", h.Extraction.CancelJob)
		ext.GET("/results/:traceId", h.Extraction.GetResult)
	}

	v1.POST("/labels/detect", h.Extraction.DetectLabels)
}
