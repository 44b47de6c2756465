package authz

import (
	"errors"
	"fmt"
	"strings"
)

// TenantRole is the fine-grained role held by a member of a tenant.
type TenantRole string

const (
	RoleMember    TenantRole = "MEMBER"
	RoleStaff     TenantRole = "STAFF"
	RoleClergy    TenantRole = "CLERGY"
	RoleModerator TenantRole = "MODERATOR"
	RoleAdmin     TenantRole = "ADMIN"
)

// RoleType is the coarse role used as the permission matrix key.
type RoleType string

const (
	RoleTypeAdmin     RoleType = "ADMIN"
	RoleTypeStaff     RoleType = "STAFF"
	RoleTypeModerator RoleType = "MODERATOR"
	RoleTypeMember    RoleType = "MEMBER"
)

var (
	// ErrUnknownRole is returned when a role name is not one of the TenantRole constants.
	ErrUnknownRole = errors.New("unknown role")
	// ErrUnknownRoleType is returned when a matrix key is not one of the RoleType constants.
	ErrUnknownRoleType = errors.New("unknown role type")
)

// AllRoles returns every fine-grained tenant role.
func AllRoles() []TenantRole {
	return []TenantRole{RoleMember, RoleStaff, RoleClergy, RoleModerator, RoleAdmin}
}

// AllRoleTypes returns every coarse role type.
func AllRoleTypes() []RoleType {
	return []RoleType{RoleTypeAdmin, RoleTypeStaff, RoleTypeModerator, RoleTypeMember}
}

// ResolveRole maps a tenant role to its role type. Unrecognized roles resolve to MEMBER.
func ResolveRole(role TenantRole) RoleType {
	switch role {
	case RoleAdmin:
		return RoleTypeAdmin
	case RoleStaff, RoleClergy:
		return RoleTypeStaff
	case RoleModerator:
		return RoleTypeModerator
	default:
		return RoleTypeMember
	}
}

// ParseRole converts a role name (case-insensitive) into a TenantRole.
func ParseRole(name string) (TenantRole, error) {
	r := TenantRole(strings.ToUpper(strings.TrimSpace(name)))
	for _, known := range AllRoles() {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, name)
}

// ParseRoleType converts a role type name (case-insensitive) into a RoleType.
func ParseRoleType(name string) (RoleType, error) {
	rt := RoleType(strings.ToUpper(strings.TrimSpace(name)))
	for _, known := range AllRoleTypes() {
		if rt == known {
			return rt, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRoleType, name)
}
