package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/temple4/community-core/internal/audit"
	"github.com/temple4/community-core/internal/authz"
	"github.com/temple4/community-core/internal/db/repositories"
	"github.com/temple4/community-core/internal/events"
	"github.com/temple4/community-core/internal/membership"
	"github.com/temple4/community-core/internal/telemetry"
)

// MembershipService runs the membership lifecycle: join requests, status transitions and role
// assignment.
type MembershipService struct {
	access      *AccessService
	memberships MembershipStore
	auditor     Auditor
	publisher   events.Publisher
}

// NewMembershipService creates a MembershipService sharing the access service's stores.
func NewMembershipService(access *AccessService) *MembershipService {
	return &MembershipService{
		access:      access,
		memberships: access.memberships,
		auditor:     access.auditor,
		publisher:   access.publisher,
	}
}

// RoleInput is a requested role assignment.
type RoleInput struct {
	Role         string  `json:"role"`
	IsPrimary    bool    `json:"is_primary"`
	DisplayTitle *string `json:"display_title,omitempty"`
}

// RequestMembership asks to join the tenant. If the user already has a membership that is not
// REJECTED, it is returned unchanged and created is false. A rejected user gets a new request.
func (s *MembershipService) RequestMembership(ctx context.Context, userID, tenantID string) (m *authz.Membership, created bool, err error) {
	ac, err := s.access.load(ctx, &userID, tenantID)
	if err != nil {
		return nil, false, err
	}
	if ac.membership != nil && ac.membership.Status != authz.StatusRejected {
		return ac.membership, false, nil
	}

	m = &authz.Membership{
		TenantID: tenantID,
		UserID:   userID,
		Status:   membership.InitialStatus,
		Roles:    []authz.RoleAssignment{{Role: authz.RoleMember, IsPrimary: true}},
	}
	if err := s.memberships.CreateMembership(ctx, m); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			// a concurrent request won the insert
			existing, getErr := s.memberships.GetLatestMembership(ctx, tenantID, userID)
			if getErr != nil {
				return nil, false, fmt.Errorf("failed to load membership: %w", getErr)
			}
			if existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("failed to create membership: %w", err)
	}

	s.auditor.Record(ctx, &audit.LogEntry{
		Action:       audit.ActionMembershipRequested,
		UserID:       userID,
		TenantID:     tenantID,
		ResourceType: "membership",
		ResourceID:   m.ID,
	})
	publish(ctx, s.publisher, events.New(events.MembershipRequested, tenantID, map[string]interface{}{
		"membership_id": m.ID,
		"user_id":       userID,
	}))
	return m, true, nil
}

// TransitionMembership applies action (approve, reject, ban, unban) on behalf of actorID.
// The actor needs the permission the action requires within the membership's tenant.
// A concurrent change to the same membership fails with membership.ErrInvalidTransition.
func (s *MembershipService) TransitionMembership(ctx context.Context, actorID, membershipID, action string) (*authz.Membership, error) {
	a, err := membership.ParseAction(action)
	if err != nil {
		return nil, err
	}

	m, err := s.memberships.GetMembershipByID(ctx, membershipID)
	if err != nil {
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: membership %s", ErrNotFound, membershipID)
	}

	perm, err := membership.RequiredPermission(a)
	if err != nil {
		return nil, err
	}
	if _, err := s.access.require(ctx, actorID, m.TenantID, perm); err != nil {
		return nil, err
	}

	from := m.Status
	to, err := membership.Transition(from, a)
	if err != nil {
		return nil, err
	}

	ok, err := s.memberships.UpdateMembershipStatus(ctx, m.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to update membership: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: membership %s changed concurrently", membership.ErrInvalidTransition, m.ID)
	}
	m.Status = to

	telemetry.MembershipTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	s.auditor.Record(ctx, &audit.LogEntry{
		Action:       audit.ActionMembershipTransition,
		UserID:       actorID,
		TenantID:     m.TenantID,
		ResourceType: "membership",
		ResourceID:   m.ID,
		Metadata: map[string]interface{}{
			"action": string(a),
			"from":   string(from),
			"to":     string(to),
			"member": m.UserID,
		},
	})
	publish(ctx, s.publisher, events.New(events.MembershipTransitioned, m.TenantID, map[string]interface{}{
		"membership_id": m.ID,
		"user_id":       m.UserID,
		"action":        string(a),
		"from":          string(from),
		"to":            string(to),
		"actor_id":      actorID,
	}))
	return m, nil
}

// AssignRole replaces the roles of an APPROVED membership. The actor needs canAssignRoles, and
// only an ADMIN may grant ADMIN or change the roles of a membership that holds it. Exactly one
// role ends up primary: the first flagged one, or the first in the list.
func (s *MembershipService) AssignRole(ctx context.Context, actorID, membershipID string, inputs []RoleInput) (*authz.Membership, error) {
	roles, err := parseRoles(inputs)
	if err != nil {
		return nil, err
	}

	m, err := s.memberships.GetMembershipByID(ctx, membershipID)
	if err != nil {
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: membership %s", ErrNotFound, membershipID)
	}

	ac, err := s.access.require(ctx, actorID, m.TenantID, authz.PermAssignRoles)
	if err != nil {
		return nil, err
	}
	if !authz.HasRole(ac.user, ac.tenant, ac.membership, authz.RoleAdmin) {
		if holdsRole(roles, authz.RoleAdmin) {
			return nil, fmt.Errorf("%w: only an ADMIN may grant ADMIN", ErrUnauthorized)
		}
		if holdsRole(m.Roles, authz.RoleAdmin) {
			return nil, fmt.Errorf("%w: only an ADMIN may change the roles of an ADMIN", ErrUnauthorized)
		}
	}
	if !m.IsActive() {
		return nil, fmt.Errorf("%w: cannot assign roles to a membership in status %s", membership.ErrInvalidTransition, m.Status)
	}

	if err := s.memberships.UpdateMembershipRoles(ctx, m.ID, roles); err != nil {
		return nil, fmt.Errorf("failed to update roles: %w", err)
	}
	m.Roles = roles

	names := make([]string, len(roles))
	for i, ra := range roles {
		names[i] = string(ra.Role)
	}
	s.auditor.Record(ctx, &audit.LogEntry{
		Action:       audit.ActionRoleAssigned,
		UserID:       actorID,
		TenantID:     m.TenantID,
		ResourceType: "membership",
		ResourceID:   m.ID,
		Metadata:     map[string]interface{}{"roles": strings.Join(names, ","), "member": m.UserID},
	})
	publish(ctx, s.publisher, events.New(events.RoleAssigned, m.TenantID, map[string]interface{}{
		"membership_id": m.ID,
		"user_id":       m.UserID,
		"roles":         names,
		"actor_id":      actorID,
	}))
	return m, nil
}

// ListMemberships lists the tenant's memberships, optionally filtered by status.
// The actor needs canApproveMembership.
func (s *MembershipService) ListMemberships(ctx context.Context, actorID, tenantID string, status *authz.MembershipStatus, limit, offset int) ([]*authz.Membership, error) {
	if _, err := s.access.require(ctx, actorID, tenantID, authz.PermApproveMembership); err != nil {
		return nil, err
	}
	list, err := s.memberships.ListMemberships(ctx, tenantID, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	return list, nil
}

func holdsRole(roles []authz.RoleAssignment, role authz.TenantRole) bool {
	for _, ra := range roles {
		if ra.Role == role {
			return true
		}
	}
	return false
}

func parseRoles(inputs []RoleInput) ([]authz.RoleAssignment, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: at least one role is required", authz.ErrUnknownRole)
	}

	roles := make([]authz.RoleAssignment, 0, len(inputs))
	seen := make(map[authz.TenantRole]bool, len(inputs))
	primary := -1
	for _, in := range inputs {
		r, err := authz.ParseRole(in.Role)
		if err != nil {
			return nil, err
		}
		if seen[r] {
			continue
		}
		seen[r] = true
		if in.IsPrimary && primary < 0 {
			primary = len(roles)
		}
		roles = append(roles, authz.RoleAssignment{Role: r, DisplayTitle: in.DisplayTitle})
	}
	if primary < 0 {
		primary = 0
	}
	roles[primary].IsPrimary = true
	return roles, nil
}
