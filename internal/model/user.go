package model

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// User represents an authentication user.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         GlobalRole `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// GlobalRole is a user's institution-wide role, independent of any inventory.
type GlobalRole string

// Global roles.
const (
	RoleSuperAdmin       GlobalRole = "SUPERADMIN"
	RoleAdminInstitution GlobalRole = "ADMIN_INSTITUTION"
	RoleAdminRegional    GlobalRole = "ADMIN_REGIONAL"
	RoleWarehouse        GlobalRole = "WAREHOUSE"
	RoleUser             GlobalRole = "USER"
)

var globalRoles = []GlobalRole{
	RoleSuperAdmin,
	RoleAdminInstitution,
	RoleAdminRegional,
	RoleWarehouse,
	RoleUser,
}

// Valid reports whether r is one of the known global roles.
func (r GlobalRole) Valid() bool {
	return slices.Contains(globalRoles, r)
}

// ParseGlobalRole converts s to a GlobalRole, ignoring case and surrounding
// whitespace. Unknown roles are an error.
func ParseGlobalRole(s string) (GlobalRole, error) {
	r := GlobalRole(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// RoleSet is an immutable set of global roles.
type RoleSet struct {
	roles map[GlobalRole]struct{}
}

// NewRoleSet builds a RoleSet from the given roles.
func NewRoleSet(roles ...GlobalRole) RoleSet {
	m := make(map[GlobalRole]struct{}, len(roles))
	for _, r := range roles {
		m[r] = struct{}{}
	}
	return RoleSet{roles: m}
}

// Contains reports whether r is in the set.
func (s RoleSet) Contains(r GlobalRole) bool {
	_, ok := s.roles[r]
	return ok
}

// Roles returns the members of the set in declaration order of the known roles.
func (s RoleSet) Roles() []GlobalRole {
	var out []GlobalRole
	for _, r := range globalRoles {
		if s.Contains(r) {
			out = append(out, r)
		}
	}
	return out
}

// PrivilegedRoles may transfer any item without standing on its inventory.
var PrivilegedRoles = NewRoleSet(RoleSuperAdmin, RoleAdminInstitution, RoleAdminRegional, RoleWarehouse)

// IsPrivileged reports whether role belongs to PrivilegedRoles.
func IsPrivileged(role GlobalRole) bool {
	return PrivilegedRoles.Contains(role)
}
