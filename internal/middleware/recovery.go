package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/resonatefm/resonate/pkg/errors"
	"github.com/resonatefm/resonate/pkg/logger"
	"github.com/resonatefm/resonate/pkg/response"
)

// Recovery turns a handler panic into a logged 500 in the standard envelope.
// The panic value never reaches the client.
func Recovery() gin.HandlerFunc {
	log := logger.WithModule("http")

	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
				)
				c.Abort()
				response.Error(c, errors.ErrInternalServer)
			}
		}()

		c.Next()
	}
}

// NotFoundHandler answers unknown routes with the standard 404 envelope.
func NotFoundHandler(c *gin.Context) {
	response.Error(c, errors.ErrNotFound)
}
