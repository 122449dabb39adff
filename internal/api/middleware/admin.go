package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireAdminKey gates verify/finish behind a shared secret, per §6.1:
// admin routes require a separate x-admin-key header matching ADMIN_KEY.
func RequireAdminKey(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("x-admin-key")
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(adminKey)) != 1 {
			c.JSON(http.StatusForbidden, gin.H{"ok": false, "error": "invalid admin key", "code": "forbidden"})
			c.Abort()
			return
		}
		c.Next()
	}
}
