package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skillhub/internal/apperr"
	"github.com/sudo-init-do/skillhub/internal/auth"
	"github.com/sudo-init-do/skillhub/internal/httpx"
)

const identityKey = "identity"

type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (auth.Identity, error)
}

// Authenticate resolves the bearer token and stores the identity on the
// context. Requests without a valid token stop here with 401.
func Authenticate(resolver IdentityResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := auth.BearerToken(authorization(c))
			if err != nil {
				return httpx.Error(c, err)
			}
			id, err := resolver.Resolve(c.Request().Context(), token)
			if err != nil {
				return httpx.Error(c, err)
			}
			c.Set(identityKey, id)
			c.Set("user_id", id.UserID)
			c.Set("role", string(id.Role))
			return next(c)
		}
	}
}

// authorization returns the Authorization header. Browsers cannot set headers
// on a websocket handshake, so upgrades may carry the token as access_token.
func authorization(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" && strings.EqualFold(c.Request().Header.Get(echo.HeaderUpgrade), "websocket") {
		if token := c.QueryParam("access_token"); token != "" {
			return "Bearer " + token
		}
	}
	return header
}

// IdentityFrom returns the identity stored by Authenticate.
func IdentityFrom(c echo.Context) (auth.Identity, bool) {
	id, ok := c.Get(identityKey).(auth.Identity)
	return id, ok && id.UserID != ""
}

// MustIdentity is IdentityFrom for handlers mounted behind Authenticate.
func MustIdentity(c echo.Context) (auth.Identity, error) {
	id, ok := IdentityFrom(c)
	if !ok {
		return auth.Identity{}, apperr.Unauthenticated("unauthorized")
	}
	return id, nil
}
