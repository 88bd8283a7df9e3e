package shared

import (
	"context"
	"strings"
)

// Identity is the verified caller extracted from the session token.
type Identity struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// IsZero reports whether no identity is present.
func (i Identity) IsZero() bool {
	return strings.TrimSpace(i.Username) == ""
}

// HasRole reports whether the identity role matches any of roles, case-insensitively.
func (i Identity) HasRole(roles ...string) bool {
	role := strings.ToLower(strings.TrimSpace(i.Role))
	if role == "" {
		return false
	}
	for _, r := range roles {
		if strings.ToLower(strings.TrimSpace(r)) == role {
			return true
		}
	}
	return false
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || id.IsZero() {
		return Identity{}, false
	}
	return id, true
}
