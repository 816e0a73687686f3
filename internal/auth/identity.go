// Package auth resolves bearer credentials to a caller identity. Resolution
// fails closed: anything short of a valid, unrevoked, signed token with a known
// user and role is rejected as unauthenticated.
package auth

import (
	"strings"

	"github.com/sudo-init-do/skillhub/internal/apperr"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleTasker   Role = "tasker"
)

func (r Role) Valid() bool { return r == RoleCustomer || r == RoleTasker }

// Identity is the resolved caller.
type Identity struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

func (i Identity) IsCustomer() bool { return i.Role == RoleCustomer }
func (i Identity) IsTasker() bool   { return i.Role == RoleTasker }

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", apperr.Unauthenticated("missing Authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", apperr.Unauthenticated("Authorization header must be a Bearer token")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", apperr.Unauthenticated("empty bearer token")
	}
	return token, nil
}
