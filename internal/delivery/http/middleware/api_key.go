package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const apiKeyHeader = "X-API-KEY"

// APIKey rejects requests whose X-API-KEY header does not match key.
// An empty key disables the check.
func APIKey(key string, logger *zap.Logger) gin.HandlerFunc {
	expected := []byte(key)
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}
		if subtle.ConstantTimeCompare([]byte(c.GetHeader(apiKeyHeader)), expected) != 1 {
			logger.Warn("Invalid API key", zap.String("ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
