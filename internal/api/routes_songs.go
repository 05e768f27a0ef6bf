package api

import (
	"github.com/gin-gonic/gin"

	"github.com/resonatefm/resonate/internal/handlers"
)

func registerSongRoutes(r *gin.Engine, svcs Services, requireAuth, requireAdmin, optionalAuth gin.HandlerFunc) {
	songHandler := handlers.NewSongHandler(svcs.Songs, svcs.Ratings, svcs.Analytics)

	songs := r.Group("/api/songs")
	{
		// Catalog browsing is public; moderation filters need an admin token.
		songs.GET("", optionalAuth, songHandler.List)
		songs.GET("/top", songHandler.Top)
		songs.GET("/:id", songHandler.Get)
		songs.GET("/:id/stats", songHandler.Stats)
		songs.POST("/:id/views", optionalAuth, songHandler.RecordView)

		songs.POST("", requireAuth, songHandler.Create)
		songs.PATCH("/:id", requireAuth, songHandler.Update)
		songs.DELETE("/:id", requireAuth, songHandler.Delete)
		songs.POST("/:id/versions", requireAuth, songHandler.AddVersion)

		songs.POST("/:id/rating", requireAuth, songHandler.Rate)
		songs.POST("/:id/like", requireAuth, songHandler.ToggleLike)
		songs.PUT("/:id/favorite", requireAuth, songHandler.AddFavorite)
		songs.DELETE("/:id/favorite", requireAuth, songHandler.RemoveFavorite)

		songs.POST("/:id/moderation", requireAuth, requireAdmin, songHandler.Moderate)
	}

	r.GET("/api/favorites", requireAuth, songHandler.ListFavorites)
}
