package api

import (
	"github.com/gin-gonic/gin"

	"github.com/resonatefm/resonate/internal/handlers"
)

func registerEmailRoutes(r *gin.Engine, svcs Services, requireAuth, requireAdmin gin.HandlerFunc) {
	queueHandler := handlers.NewEmailQueueHandler(svcs.Emails, svcs.Processor)

	queue := r.Group("/api/admin/email-queue", requireAuth, requireAdmin)
	{
		queue.GET("/stats", queueHandler.Stats)
		queue.GET("/status", queueHandler.Status)
		queue.GET("/health", queueHandler.Health)
		queue.POST("/process", queueHandler.ProcessNow)
	}
}
