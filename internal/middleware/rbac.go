package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skillhub/internal/apperr"
	"github.com/sudo-init-do/skillhub/internal/auth"
	"github.com/sudo-init-do/skillhub/internal/httpx"
)

// RequireRoles ensures the caller's role is one of the allowed roles.
// Usage: route(..., RequireRoles(auth.RoleCustomer))
func RequireRoles(roles ...auth.Role) echo.MiddlewareFunc {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	msg := "only " + strings.Join(names, " or ") + " accounts can do this"

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return httpx.Error(c, apperr.Unauthenticated("unauthorized"))
			}
			for _, r := range roles {
				if id.Role == r {
					return next(c)
				}
			}
			return httpx.Error(c, apperr.Forbidden("%s", msg))
		}
	}
}
