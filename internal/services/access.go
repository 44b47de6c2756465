package services

import (
	"context"
	"fmt"

	"github.com/temple4/community-core/internal/audit"
	"github.com/temple4/community-core/internal/authz"
	"github.com/temple4/community-core/internal/cache"
	"github.com/temple4/community-core/internal/events"
	"github.com/temple4/community-core/internal/telemetry"
)

// AccessService answers permission, role and visibility questions and manages tenant
// permission matrices.
type AccessService struct {
	users       UserStore
	tenants     TenantStore
	memberships MembershipStore
	tenantCache *cache.TenantCache
	auditor     Auditor
	publisher   events.Publisher
}

// NewAccessService creates an AccessService. tenantCache, auditor and publisher may be nil.
func NewAccessService(users UserStore, tenants TenantStore, memberships MembershipStore, tenantCache *cache.TenantCache, auditor Auditor, publisher events.Publisher) *AccessService {
	if auditor == nil {
		auditor = noopAuditor{}
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &AccessService{
		users:       users,
		tenants:     tenants,
		memberships: memberships,
		tenantCache: tenantCache,
		auditor:     auditor,
		publisher:   publisher,
	}
}

// accessContext is the state a permission check is evaluated over.
type accessContext struct {
	user       *authz.User
	tenant     *authz.Tenant
	membership *authz.Membership
}

func (s *AccessService) loadTenant(ctx context.Context, tenantID string) (*authz.Tenant, error) {
	if t, ok := s.tenantCache.Get(ctx, tenantID); ok {
		return t, nil
	}
	tenant, err := s.tenants.GetTenantByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}
	if tenant == nil {
		return nil, fmt.Errorf("%w: tenant %s", ErrNotFound, tenantID)
	}
	s.tenantCache.Set(ctx, tenant)
	return tenant, nil
}

// load resolves the tenant and, when userID is set, the user and their latest membership.
func (s *AccessService) load(ctx context.Context, userID *string, tenantID string) (*accessContext, error) {
	tenant, err := s.loadTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	ac := &accessContext{tenant: tenant}
	if userID == nil {
		return ac, nil
	}

	user, err := s.users.GetUserByID(ctx, *userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, *userID)
	}
	ac.user = user

	m, err := s.memberships.GetLatestMembership(ctx, tenantID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}
	ac.membership = m
	return ac, nil
}

// check evaluates perm, records the decision metric and audits super admin overrides:
// checks that succeed only because the caller is a super admin.
func (s *AccessService) check(ctx context.Context, ac *accessContext, perm authz.Permission) bool {
	d := authz.Check(ac.user, ac.tenant, ac.membership, perm)

	decision := "deny"
	if d.Allowed {
		decision = "allow"
	}
	telemetry.AuthzDecisionsTotal.WithLabelValues(decision, string(d.Reason)).Inc()

	if d.Reason == authz.ReasonSuperAdmin {
		plain := *ac.user
		plain.IsSuperAdmin = false
		if !authz.Can(&plain, ac.tenant, ac.membership, perm) {
			telemetry.SuperAdminOverridesTotal.Inc()
			s.auditor.Record(ctx, &audit.LogEntry{
				Action:       audit.ActionSuperAdminOverride,
				UserID:       ac.user.ID,
				TenantID:     ac.tenant.ID,
				ResourceType: "tenant",
				ResourceID:   ac.tenant.ID,
				Metadata:     map[string]interface{}{"permission": string(perm)},
			})
		}
	}
	return d.Allowed
}

// require loads the actor's access context and fails with ErrUnauthorized unless they hold perm.
func (s *AccessService) require(ctx context.Context, actorID, tenantID string, perm authz.Permission) (*accessContext, error) {
	ac, err := s.load(ctx, &actorID, tenantID)
	if err != nil {
		return nil, err
	}
	if !s.check(ctx, ac, perm) {
		return nil, fmt.Errorf("%w: %s required", ErrUnauthorized, perm)
	}
	return ac, nil
}

// Authorize reports whether the user holds permission within the tenant. Unknown permission
// names fail with authz.ErrUnknownPermission.
func (s *AccessService) Authorize(ctx context.Context, userID, tenantID, permission string) (bool, error) {
	perm, err := authz.ParsePermission(permission)
	if err != nil {
		return false, err
	}
	ac, err := s.load(ctx, &userID, tenantID)
	if err != nil {
		return false, err
	}
	return s.check(ctx, ac, perm), nil
}

// HasRole reports whether the user holds role within the tenant. Unknown role names fail with
// authz.ErrUnknownRole.
func (s *AccessService) HasRole(ctx context.Context, userID, tenantID, role string) (bool, error) {
	r, err := authz.ParseRole(role)
	if err != nil {
		return false, err
	}
	ac, err := s.load(ctx, &userID, tenantID)
	if err != nil {
		return false, err
	}
	return authz.HasRole(ac.user, ac.tenant, ac.membership, r), nil
}

// CanViewContent reports whether content of category is visible to the user, or to an anonymous
// visitor when userID is nil. Unknown categories are not visible.
func (s *AccessService) CanViewContent(ctx context.Context, userID *string, tenantID, category string) (bool, error) {
	ac, err := s.load(ctx, userID, tenantID)
	if err != nil {
		return false, err
	}
	c, err := authz.ParseCategory(category)
	if err != nil {
		return false, nil
	}
	return authz.CanView(ac.tenant, ac.membership, c), nil
}

// TenantPermissions returns the tenant's permission matrix.
func (s *AccessService) TenantPermissions(ctx context.Context, tenantID string) (authz.PermissionMatrix, error) {
	tenant, err := s.loadTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return tenant.Permissions, nil
}

// UpdateTenantPermissions replaces the tenant's permission matrix. The actor must hold the ADMIN
// role in the tenant (super admins qualify). Unknown role types or permission names are rejected.
func (s *AccessService) UpdateTenantPermissions(ctx context.Context, actorID, tenantID string, raw map[string]map[string]bool) (authz.PermissionMatrix, error) {
	matrix, err := authz.ParseMatrix(raw)
	if err != nil {
		return nil, err
	}

	ac, err := s.load(ctx, &actorID, tenantID)
	if err != nil {
		return nil, err
	}
	if !authz.HasRole(ac.user, ac.tenant, ac.membership, authz.RoleAdmin) {
		return nil, fmt.Errorf("%w: ADMIN role required", ErrUnauthorized)
	}

	if err := s.tenants.UpdateTenantPermissions(ctx, tenantID, matrix); err != nil {
		return nil, fmt.Errorf("failed to update permissions: %w", err)
	}
	s.tenantCache.Invalidate(ctx, tenantID)

	s.auditor.Record(ctx, &audit.LogEntry{
		Action:       audit.ActionPermissionsUpdated,
		UserID:       actorID,
		TenantID:     tenantID,
		ResourceType: "tenant",
		ResourceID:   tenantID,
	})
	s.publish(ctx, events.New(events.PermissionsUpdated, tenantID, map[string]interface{}{
		"updated_by":  actorID,
		"permissions": matrix,
	}))
	return matrix, nil
}

func (s *AccessService) publish(ctx context.Context, evs ...events.Event) {
	publish(ctx, s.publisher, evs...)
}
