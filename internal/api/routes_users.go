package api

import (
	"github.com/gin-gonic/gin"

	"github.com/resonatefm/resonate/internal/handlers"
)

func registerUserRoutes(r *gin.Engine, svcs Services, requireAuth gin.HandlerFunc) {
	userHandler := handlers.NewUserHandler(svcs.Users, svcs.Songs)

	users := r.Group("/api/users")
	{
		users.GET("/:id", userHandler.Get)
		users.GET("/:id/songs", userHandler.Songs)
	}

	r.PATCH("/api/profile", requireAuth, userHandler.UpdateProfile)
}
