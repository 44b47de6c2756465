package authz

import "fmt"

// PermissionMatrix maps a role type to the permissions a tenant grants it.
// A missing role type or permission means "not granted".
type PermissionMatrix map[RoleType]map[Permission]bool

// Allows reports whether the matrix grants perm to roleType.
func (m PermissionMatrix) Allows(roleType RoleType, perm Permission) bool {
	if m == nil {
		return false
	}
	return m[roleType][perm]
}

// Set grants or revokes perm for roleType.
func (m PermissionMatrix) Set(roleType RoleType, perm Permission, allowed bool) {
	set, ok := m[roleType]
	if !ok {
		set = make(map[Permission]bool)
		m[roleType] = set
	}
	set[perm] = allowed
}

// Clone returns a deep copy of the matrix.
func (m PermissionMatrix) Clone() PermissionMatrix {
	out := make(PermissionMatrix, len(m))
	for rt, perms := range m {
		cp := make(map[Permission]bool, len(perms))
		for p, v := range perms {
			cp[p] = v
		}
		out[rt] = cp
	}
	return out
}

// ParseMatrix converts an untyped nested map (as received over the API) into a PermissionMatrix.
// Unknown role types or permission names are rejected.
func ParseMatrix(raw map[string]map[string]bool) (PermissionMatrix, error) {
	m := make(PermissionMatrix, len(raw))
	for rtName, perms := range raw {
		rt, err := ParseRoleType(rtName)
		if err != nil {
			return nil, err
		}
		for name, allowed := range perms {
			p, err := ParsePermission(name)
			if err != nil {
				return nil, fmt.Errorf("role type %s: %w", rt, err)
			}
			m.Set(rt, p, allowed)
		}
	}
	return m, nil
}

// DefaultMatrix is the matrix assigned to newly created tenants.
func DefaultMatrix() PermissionMatrix {
	m := make(PermissionMatrix)

	for _, p := range AllPermissions() {
		m.Set(RoleTypeAdmin, p, true)
	}

	for _, p := range []Permission{
		PermCreatePosts, PermCreateEvents, PermCreateSermons, PermCreatePodcasts,
		PermCreateBooks, PermCreateGroupChats, PermUploadResources, PermInviteMembers,
		PermManageResources, PermManageContactForm, PermViewDonations,
	} {
		m.Set(RoleTypeStaff, p, true)
	}

	for _, p := range []Permission{
		PermCreatePosts, PermInviteMembers, PermApproveMembership, PermBanMembers,
		PermModerateContent, PermModerateChats, PermManagePrayerWall,
	} {
		m.Set(RoleTypeModerator, p, true)
	}

	m.Set(RoleTypeMember, PermInviteMembers, true)

	return m
}
