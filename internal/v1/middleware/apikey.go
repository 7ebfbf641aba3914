package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HeaderXAPIKey is the header carrying the management API key.
const HeaderXAPIKey = "X-Api-Key"

// APIKeyAuth rejects requests whose X-Api-Key header does not match the
// configured admin key. Comparison is constant-time.
func APIKeyAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(HeaderXAPIKey)
		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(adminKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}
