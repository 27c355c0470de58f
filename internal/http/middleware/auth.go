// README: Caller identification middleware. Reads the X-User-ID header used for quota metering.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tripflow/internal/modules/aiusage"
)

const (
	UserIDHeader = "X-User-ID"
	callerUIDKey = "caller_uid"
)

// Caller records the optional X-User-ID header. Requests without it are anonymous;
// a malformed id is rejected with 400.
func Caller() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if uid == "" {
			c.Next()
			return
		}
		if !aiusage.ValidUID(uid) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + UserIDHeader})
			return
		}
		c.Set(callerUIDKey, uid)
		c.Next()
	}
}

// CallerUID returns the caller id, or "" for anonymous requests.
func CallerUID(c *gin.Context) string {
	return c.GetString(callerUIDKey)
}
