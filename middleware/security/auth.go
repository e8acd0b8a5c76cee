package security

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"TalkWire/tools/errs"
	toolsec "TalkWire/tools/security"
)

// Context key the REST handlers read the caller identity from.
const CtxUserIDKey = "userId"

// UserID returns the authenticated caller id set by Middleware.
func UserID(c *gin.Context) string {
	return c.GetString(CtxUserIDKey)
}

// Middleware resolves the caller's durable user id. With a secret
// configured it requires a valid Bearer token and takes the id from its
// subject. Without one it trusts the X-User-Id header: the identity
// collaborator authenticated the request upstream and this gateway accepts
// the id verbatim.
func Middleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret != "" {
			token := bearerToken(c)
			uid, err := toolsec.Parse(toolsec.DefaultOptions([]byte(secret)), token)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrUnauthorized)
				return
			}
			c.Set(CtxUserIDKey, uid)
			c.Next()
			return
		}

		uid := strings.TrimSpace(c.GetHeader("X-User-Id"))
		if uid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrUnauthorized)
			return
		}
		c.Set(CtxUserIDKey, uid)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authz := strings.TrimSpace(c.GetHeader("Authorization"))
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	return authz
}
