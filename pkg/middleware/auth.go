package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"sponsorportal/pkg/access"
	"sponsorportal/pkg/auth"
	"sponsorportal/pkg/errutil"
)

// Authenticate verifies a bearer id token when one is sent. Requests without a token
// pass through; handlers then fall back to the user id in the request.
func Authenticate(verifier auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.Error(errutil.Unauthorized("malformed authorization header", nil))
			c.Abort()
			return
		}

		id, err := verifier.Verify(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			c.Error(errutil.Unauthorized("invalid id token", err))
			c.Abort()
			return
		}

		auth.SetIdentity(c, id)
		c.Next()
	}
}

// Authorize requires a verified identity whose role may perform action on resource.
func Authorize(authorizer access.Authorizer, resource, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := auth.IdentityFrom(c)
		if !ok {
			c.Error(errutil.Unauthorized("authentication required", nil))
			c.Abort()
			return
		}

		allowed, err := authorizer.Allowed(id.Role, resource, action)
		if err != nil {
			c.Error(errutil.Internal("authorization failed", err))
			c.Abort()
			return
		}
		if !allowed {
			c.Error(errutil.Forbidden("role may not perform this action", nil))
			c.Abort()
			return
		}

		c.Next()
	}
}
