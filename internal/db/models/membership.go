package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/temple4/community-core/internal/authz"
)

// MembershipRow is a row of the memberships table. Roles is a JSONB array of role assignments.
type MembershipRow struct {
	ID          string    `db:"id"`
	TenantID    string    `db:"tenant_id"`
	UserID      string    `db:"user_id"`
	Status      string    `db:"status"`
	Roles       []byte    `db:"roles"`
	RequestedAt time.Time `db:"requested_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// ToDomain converts the row to an authz.Membership
func (r *MembershipRow) ToDomain() (*authz.Membership, error) {
	m := &authz.Membership{
		ID:          r.ID,
		TenantID:    r.TenantID,
		UserID:      r.UserID,
		Status:      authz.MembershipStatus(r.Status),
		RequestedAt: r.RequestedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if len(r.Roles) > 0 {
		if err := json.Unmarshal(r.Roles, &m.Roles); err != nil {
			return nil, fmt.Errorf("failed to decode roles for membership %s: %w", r.ID, err)
		}
	}
	return m, nil
}

// EncodeRoles serializes role assignments for the roles column.
func EncodeRoles(roles []authz.RoleAssignment) ([]byte, error) {
	if roles == nil {
		roles = []authz.RoleAssignment{}
	}
	b, err := json.Marshal(roles)
	if err != nil {
		return nil, fmt.Errorf("failed to encode roles: %w", err)
	}
	return b, nil
}
