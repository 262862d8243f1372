package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"food-ordering-api/apperr"
	"food-ordering-api/identity"
	"food-ordering-api/models"
	"food-ordering-api/policy"
)

const identityKey = "identity"

// TokenVerifier turns a bearer token into the caller's identity.
type TokenVerifier interface {
	VerifyToken(token string) (policy.Identity, error)
}

func abort(c *gin.Context, err error) {
	status, body := apperr.ToResponse(err)
	c.AbortWithStatusJSON(status, body)
}

// AuthRequired validates the bearer token and stores the identity in the context.
func AuthRequired(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := identity.ExtractBearerToken(c.GetHeader("Authorization"))
		if token == "" {
			abort(c, apperr.Unauthenticated("Not authorized, no token"))
			return
		}
		id, err := v.VerifyToken(token)
		if err != nil {
			abort(c, err)
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// OptionalAuth records the identity when a valid token is present and lets
// anonymous callers through otherwise.
func OptionalAuth(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := identity.ExtractBearerToken(c.GetHeader("Authorization")); token != "" {
			if id, err := v.VerifyToken(token); err == nil {
				c.Set(identityKey, id)
			}
		}
		c.Next()
	}
}

// RoleRequired enforces that caller has one of the allowed roles
func RoleRequired(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := GetIdentity(c)
		if id.IsAnonymous() {
			abort(c, apperr.Unauthenticated("Not authorized, no token"))
			return
		}
		for _, r := range roles {
			if id.Role == r {
				c.Next()
				return
			}
		}
		abort(c, apperr.Forbidden("Access denied. Required role(s): "+rolesString(roles)))
	}
}

func rolesString(roles []models.UserRole) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}

// GetIdentity returns the caller, or policy.Anonymous when no token was accepted.
func GetIdentity(c *gin.Context) policy.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(policy.Identity); ok {
			return id
		}
	}
	return policy.Anonymous
}
