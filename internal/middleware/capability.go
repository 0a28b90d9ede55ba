package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/atis-gateway/internal/models"
	appErrors "github.com/noah-isme/atis-gateway/pkg/errors"
	"github.com/noah-isme/atis-gateway/pkg/response"
)

// Action selects which capability a route needs.
type Action int

const (
	ActionView Action = iota
	ActionCreate
	ActionEdit
	ActionDelete
)

func (a Action) allowed(c models.Capabilities) bool {
	switch a {
	case ActionCreate:
		return c.CanCreate
	case ActionEdit:
		return c.CanEdit
	case ActionDelete:
		return c.CanDelete
	default:
		return c.CanView
	}
}

// RequireCapability aborts with 403 unless the caller's role grants action on resource.
// List routes do not use it: their forbidden state is part of the view model.
func RequireCapability(resource models.Resource, action Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !action.allowed(models.CapabilitiesFor(principal.Role, resource)) {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRoles only lets the listed roles through.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[principal.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
