package controlplane

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// requireAPIKey enforces a single shared-secret API key sent as
// "X-API-Key: <key>", compared in constant time so response latency
// cannot leak how many leading bytes matched. An empty expected key
// disables the check entirely, useful for local development.
func requireAPIKey(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if expected == "" {
			c.Next()
			return
		}
		got := c.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1 {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}
}
