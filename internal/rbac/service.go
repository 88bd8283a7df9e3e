package rbac

import (
	"context"

	"github.com/dynaclean/dynaflow/internal/shared"
)

// Service resolves the permissions held by an identity. Roles come verbatim from
// the verified session token.
type Service struct {
	grants     map[string]map[string]struct{}
	adminRoles map[string]struct{}
}

// NewService constructs a Service from role grants and admin roles.
func NewService(grants Grants, adminRoles []string) *Service {
	s := &Service{
		grants:     make(map[string]map[string]struct{}, len(grants)),
		adminRoles: make(map[string]struct{}, len(adminRoles)),
	}
	for role, perms := range grants {
		set := make(map[string]struct{}, len(perms))
		for _, p := range normalizePermissions(perms) {
			set[p] = struct{}{}
		}
		s.grants[normalizeRole(role)] = set
	}
	for _, role := range adminRoles {
		if r := normalizeRole(role); r != "" {
			s.adminRoles[r] = struct{}{}
		}
	}
	return s
}

// IsAdmin reports whether the identity holds one of the admin roles.
func (s *Service) IsAdmin(id shared.Identity) bool {
	if s == nil {
		return false
	}
	_, ok := s.adminRoles[normalizeRole(id.Role)]
	return ok
}

// EffectivePermissions returns the sorted permission set for the identity.
func (s *Service) EffectivePermissions(_ context.Context, id shared.Identity) ([]string, error) {
	if s == nil || id.IsZero() {
		return nil, nil
	}
	if s.IsAdmin(id) {
		return normalizePermissions(shared.AllScopes()), nil
	}
	set := s.grants[normalizeRole(id.Role)]
	return sortedKeys(set), nil
}
