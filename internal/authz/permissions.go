// Package authz implements tenant-scoped authorization: role resolution, the per-tenant
// permission matrix, permission checks, and content visibility for visitors and members.
//
// Everything in this package is pure. Callers load the user, tenant, and membership through
// the repository layer and pass them in; nothing here touches the database.
package authz

import (
	"errors"
	"fmt"
)

// Permission names a capability that a tenant grants to a role type.
type Permission string

const (
	// Content creation
	PermCreatePosts      Permission = "canCreatePosts"
	PermCreateEvents     Permission = "canCreateEvents"
	PermCreateSermons    Permission = "canCreateSermons"
	PermCreatePodcasts   Permission = "canCreatePodcasts"
	PermCreateBooks      Permission = "canCreateBooks"
	PermCreateGroupChats Permission = "canCreateGroupChats"
	PermUploadResources  Permission = "canUploadResources"

	// Membership management
	PermInviteMembers     Permission = "canInviteMembers"
	PermApproveMembership Permission = "canApproveMembership"
	PermBanMembers        Permission = "canBanMembers"
	PermAssignRoles       Permission = "canAssignRoles"

	// Moderation
	PermModerateContent   Permission = "canModerateContent"
	PermModerateChats     Permission = "canModerateChats"
	PermManagePrayerWall  Permission = "canManagePrayerWall"
	PermManageResources   Permission = "canManageResources"
	PermManageContactForm Permission = "canManageContactSubmissions"

	// Giving
	PermManageFunds     Permission = "canManageFunds"
	PermViewDonations   Permission = "canViewDonations"
	PermManageDonations Permission = "canManageDonations"
)

// ErrUnknownPermission is returned when a permission name is not part of AllPermissions.
var ErrUnknownPermission = errors.New("unknown permission")

// AllPermissions returns every permission the platform knows about.
func AllPermissions() []Permission {
	return []Permission{
		PermCreatePosts,
		PermCreateEvents,
		PermCreateSermons,
		PermCreatePodcasts,
		PermCreateBooks,
		PermCreateGroupChats,
		PermUploadResources,
		PermInviteMembers,
		PermApproveMembership,
		PermBanMembers,
		PermAssignRoles,
		PermModerateContent,
		PermModerateChats,
		PermManagePrayerWall,
		PermManageResources,
		PermManageContactForm,
		PermManageFunds,
		PermViewDonations,
		PermManageDonations,
	}
}

var validPermissions = func() map[Permission]bool {
	m := make(map[Permission]bool)
	for _, p := range AllPermissions() {
		m[p] = true
	}
	return m
}()

// Valid reports whether p is a known permission.
func (p Permission) Valid() bool {
	return validPermissions[p]
}

// ParsePermission converts a raw permission name into a Permission, rejecting unknown names.
func ParsePermission(name string) (Permission, error) {
	p := Permission(name)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPermission, name)
	}
	return p, nil
}

// ValidatePermissions checks that every name in the list is a known permission.
func ValidatePermissions(names []string) error {
	for _, name := range names {
		if _, err := ParsePermission(name); err != nil {
			return err
		}
	}
	return nil
}
