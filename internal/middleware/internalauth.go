package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/skillforge/skillforge-backend/internal/pkg/logger"
)

type InternalAuthMiddleware struct {
	log    *logger.Logger
	secret string
}

func NewInternalAuthMiddleware(baseLog *logger.Logger) *InternalAuthMiddleware {
	return &InternalAuthMiddleware{
		log:    baseLog.With("middleware", "InternalAuthMiddleware"),
		secret: os.Getenv("INTERNAL_API_SECRET"),
	}
}

// RequireInternalSecret fences the worker endpoints off from public
// traffic. With no secret configured, everything is rejected rather
// than left open.
func (im *InternalAuthMiddleware) RequireInternalSecret() gin.HandlerFunc {
	return func(c *gin.Context) {
		if im.secret == "" {
			im.log.Error("INTERNAL_API_SECRET not configured; rejecting internal request")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		got := c.GetHeader("X-Internal-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(im.secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
