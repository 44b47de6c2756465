package authz

// DecisionReason explains why Check reached its verdict. It is used for metrics
// and audit records, never for control flow outside this package.
type DecisionReason string

const (
	ReasonSuperAdmin         DecisionReason = "super_admin"
	ReasonRoleGrant          DecisionReason = "role_grant"
	ReasonNoMembership       DecisionReason = "no_membership"
	ReasonInactiveMembership DecisionReason = "inactive_membership"
	ReasonNotGranted         DecisionReason = "not_granted"
)

// Decision is the outcome of a permission check.
type Decision struct {
	Allowed bool
	Reason  DecisionReason
	// GrantedBy is the role type that granted the permission, when Reason is ReasonRoleGrant.
	GrantedBy RoleType
}

// Check evaluates perm for user within tenant.
//
// Super admins are always allowed. Otherwise the membership must exist and be APPROVED,
// and at least one of its roles must resolve to a role type the tenant grants perm to.
func Check(user *User, tenant *Tenant, membership *Membership, perm Permission) Decision {
	if user != nil && user.IsSuperAdmin {
		return Decision{Allowed: true, Reason: ReasonSuperAdmin}
	}
	if membership == nil {
		return Decision{Reason: ReasonNoMembership}
	}
	if !membership.IsActive() {
		return Decision{Reason: ReasonInactiveMembership}
	}
	if tenant == nil {
		return Decision{Reason: ReasonNotGranted}
	}

	for _, ra := range membership.Roles {
		rt := ResolveRole(ra.Role)
		if tenant.Permissions.Allows(rt, perm) {
			return Decision{Allowed: true, Reason: ReasonRoleGrant, GrantedBy: rt}
		}
	}
	return Decision{Reason: ReasonNotGranted}
}

// Can reports whether user holds perm within tenant.
func Can(user *User, tenant *Tenant, membership *Membership, perm Permission) bool {
	return Check(user, tenant, membership, perm).Allowed
}

// HasRole reports whether user holds role within tenant. Super admins implicitly hold ADMIN.
func HasRole(user *User, tenant *Tenant, membership *Membership, role TenantRole) bool {
	if user != nil && user.IsSuperAdmin && role == RoleAdmin {
		return true
	}
	if !membership.IsActive() {
		return false
	}
	for _, ra := range membership.Roles {
		if ra.Role == role {
			return true
		}
	}
	return false
}
