package auth

import (
	"github.com/gin-gonic/gin"

	"sponsorportal/pkg/errutil"
)

const identityKey = "auth.identity"

func SetIdentity(c *gin.Context, id *Identity) {
	c.Set(identityKey, id)
}

func IdentityFrom(c *gin.Context) (*Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*Identity)
	return id, ok && id != nil
}

// ResolveUserID returns the user a request acts for. A verified token wins; the
// claimed id from the body or query must then match it. Without a token the claimed
// id is trusted and must be present.
func ResolveUserID(c *gin.Context, claimed string) (string, error) {
	if id, ok := IdentityFrom(c); ok {
		if claimed != "" && claimed != id.UserID {
			return "", errutil.Forbidden("user does not match the authenticated identity", nil)
		}
		return id.UserID, nil
	}

	if claimed == "" {
		return "", errutil.Unauthorized("Usuario no autenticado", nil)
	}
	return claimed, nil
}
