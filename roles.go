package auth

import (
	"fmt"
	"sort"
	"strings"
)

// Role is the single role attached to an identity.
type Role string

const (
	// RoleUser is the default role for registered and social accounts.
	RoleUser Role = "USER"
	// RoleAdmin manages users.
	RoleAdmin Role = "ADMIN"
)

// DefaultRole is assigned to new accounts.
const DefaultRole = RoleUser

// ParseRole normalizes s into a known role.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

func (r Role) String() string {
	return string(r)
}

// RoleRequirement is the set of roles allowed to invoke an operation.
// Membership is exact: no role implies another.
type RoleRequirement struct {
	roles map[Role]struct{}
}

// NewRoleRequirement builds a requirement. It panics on an empty set since
// requirements are declared at route registration time.
func NewRoleRequirement(roles ...Role) RoleRequirement {
	if len(roles) == 0 {
		panic("auth: role requirement needs at least one role")
	}
	set := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return RoleRequirement{roles: set}
}

// Allows reports whether role is a member of the requirement.
func (r RoleRequirement) Allows(role Role) bool {
	_, ok := r.roles[role]
	return ok
}

// Roles returns the members sorted for stable output.
func (r RoleRequirement) Roles() []Role {
	out := make([]Role, 0, len(r.roles))
	for role := range r.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r RoleRequirement) String() string {
	roles := r.Roles()
	parts := make([]string, len(roles))
	for i, role := range roles {
		parts[i] = string(role)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Authorize checks identity against req.
func Authorize(identity *AuthenticatedIdentity, req RoleRequirement) error {
	if identity == nil || identity.Email == "" {
		return ErrAuthenticationRequired
	}

	if !req.Allows(identity.Role) {
		return withMessage(
			ErrInsufficientPrivileges,
			fmt.Sprintf("%s. Required roles: %s, User role: %s", insufficientPrivilegesMessage, req, identity.Role),
			map[string]any{
				"required_roles": req.Roles(),
				"user_role":      identity.Role,
			},
		)
	}

	return nil
}
