package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	corsMethods = "GET, PUT, OPTIONS"
	corsHeaders = "Content-Type, Authorization"
)

// OriginFilter rejects browser requests from origins not in allowedOrigins.
// "*" admits every origin. Requests without an origin, such as native
// clients, pass through untouched.
func OriginFilter(allowedOrigins []string) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := requestOrigin(c.Request)
		if origin != "" {
			if _, ok := allowed[origin]; !ok && !allowAll {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Origin not allowed"})
				return
			}

			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", corsMethods)
			h.Set("Access-Control-Allow-Headers", corsHeaders)
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requestOrigin falls back to the legacy websocket origin header
func requestOrigin(r *http.Request) string {
	if o := r.Header.Get("Origin"); o != "" {
		return o
	}
	return r.Header.Get("Sec-WebSocket-Origin")
}
