package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// Logging returns middleware that logs request processing time.
func Logging(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		var userID int64
		if id, ok := GetIdentity(c); ok {
			userID = id.UserID
		}

		logger.Debug("request processed",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"user_id", userID,
			"duration", time.Since(start),
		)
	}
}
