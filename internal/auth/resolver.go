package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/sudo-init-do/skillhub/internal/apperr"
)

// RoleLookup finds the role stored on a user's profile.
type RoleLookup interface {
	ProfileRole(ctx context.Context, userID string) (Role, error)
}

// RevocationList reports whether a token id has been revoked.
type RevocationList interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Resolver turns a bearer token into an Identity.
type Resolver struct {
	tokens  *TokenManager
	roles   RoleLookup
	revoked RevocationList
}

// NewResolver builds a resolver. roles and revoked may be nil: without roles
// only tokens carrying customer/tasker resolve; without revoked no
// revocation check is made.
func NewResolver(tokens *TokenManager, roles RoleLookup, revoked RevocationList) *Resolver {
	return &Resolver{tokens: tokens, roles: roles, revoked: revoked}
}

func (r *Resolver) Resolve(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, apperr.Unauthenticated("missing bearer token")
	}

	claims, err := r.tokens.Verify(token)
	if err != nil {
		if errors.Is(err, ErrExpiredToken) {
			return Identity{}, apperr.Unauthenticated("token has expired")
		}
		return Identity{}, apperr.Unauthenticated("invalid token")
	}

	userID := claims.subject()
	if _, err := uuid.Parse(userID); err != nil {
		return Identity{}, apperr.Unauthenticated("invalid token subject")
	}

	if r.revoked != nil && claims.ID != "" {
		revoked, err := r.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return Identity{}, apperr.Store("check token revocation", err)
		}
		if revoked {
			return Identity{}, apperr.Unauthenticated("token has been revoked")
		}
	}

	role := Role(claims.Role)
	if !role.Valid() {
		if r.roles == nil {
			return Identity{}, apperr.Unauthenticated("token carries no usable role")
		}
		role, err = r.roles.ProfileRole(ctx, userID)
		if errors.Is(err, apperr.ErrNotFound) {
			return Identity{}, apperr.Unauthenticated("no profile for token subject")
		}
		if err != nil {
			return Identity{}, err
		}
		if !role.Valid() {
			return Identity{}, apperr.Unauthenticated("profile has no usable role")
		}
	}

	return Identity{UserID: userID, Role: role}, nil
}
