package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const contextRequestIDKey = "fightclaw.requestId"

// RequestID stamps every request with a uuid, echoed in error envelopes
// (§7 "converted to 500 internal_error envelopes with a requestId") and in
// the X-Request-Id response header for correlation with logs.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(contextRequestIDKey, id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// RequestIDFrom returns the request id stamped by RequestID.
func RequestIDFrom(c *gin.Context) string {
	if v, ok := c.Get(contextRequestIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
