package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/peterchen97/pdf-ocr-service/api/handlers"
	"github.com/peterchen97/pdf-ocr-service/api/middleware"
)

// SetupRoutes wires all routes onto the engine.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers) {
	r.Use(middleware.CORS())

	// Every response is JSON, including routing failures.
	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"success": false,
			"error":   "method not allowed",
		})
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "not found",
		})
	})

	api := r.Group("/api")
	{
		api.POST("/ocr", h.OCR.Process)
		api.POST("/ocr/batch", h.OCR.ProcessBatch)
		api.GET("/download", h.Files.Download)
		api.GET("/status", h.Files.Status)
		api.GET("/health", h.System.Health)
		api.GET("/check-dependencies", h.System.CheckDependencies)
	}
}
