package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/resonatefm/resonate/pkg/response"
)

// Health returns a status payload useful for readiness checks. The database
// ping is the readiness gate; SMTP health is reported separately by the email
// queue endpoints.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(requestContext(c))
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"status":  "degraded",
			})
			return
		}

		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	}
}
