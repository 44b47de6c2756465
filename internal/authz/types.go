package authz

import "time"

// MembershipStatus is the lifecycle state of a membership. Transitions between states are
// governed by the membership package.
type MembershipStatus string

const (
	StatusRequested MembershipStatus = "REQUESTED"
	StatusApproved  MembershipStatus = "APPROVED"
	StatusRejected  MembershipStatus = "REJECTED"
	StatusBanned    MembershipStatus = "BANNED"
)

// User is the identity seen by the authorization engine.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	IsSuperAdmin bool   `json:"is_super_admin"`
}

// TenantSettings holds per-tenant feature flags and visitor visibility rules,
// both keyed by content category.
type TenantSettings struct {
	Features          map[ContentCategory]bool `json:"features"`
	VisitorVisibility map[ContentCategory]bool `json:"visitor_visibility"`
}

// Tenant is a community (church, temple, ...) with its own permission matrix and settings.
type Tenant struct {
	ID          string           `json:"id"`
	Slug        string           `json:"slug"`
	Name        string           `json:"name"`
	Permissions PermissionMatrix `json:"permissions"`
	Settings    TenantSettings   `json:"settings"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// RoleAssignment is one role held by a membership.
type RoleAssignment struct {
	Role         TenantRole `json:"role"`
	IsPrimary    bool       `json:"is_primary"`
	DisplayTitle *string    `json:"display_title,omitempty"`
}

// Membership links a user to a tenant.
type Membership struct {
	ID          string           `json:"id"`
	TenantID    string           `json:"tenant_id"`
	UserID      string           `json:"user_id"`
	Status      MembershipStatus `json:"status"`
	Roles       []RoleAssignment `json:"roles"`
	RequestedAt time.Time        `json:"requested_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// IsActive reports whether the membership grants anything at all.
func (m *Membership) IsActive() bool {
	return m != nil && m.Status == StatusApproved
}

// PrimaryRole returns the role flagged primary, falling back to the first assignment,
// and MEMBER when there are no assignments.
func (m *Membership) PrimaryRole() TenantRole {
	if m == nil || len(m.Roles) == 0 {
		return RoleMember
	}
	for _, ra := range m.Roles {
		if ra.IsPrimary {
			return ra.Role
		}
	}
	return m.Roles[0].Role
}
