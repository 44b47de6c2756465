package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/temple4/community-core/internal/authz"
	"github.com/temple4/community-core/internal/db"
	"github.com/temple4/community-core/internal/db/models"
)

// MembershipRepository handles membership database operations.
// Memberships are never deleted; a rejected request stays as history and a new request inserts
// a new row. The partial unique index on (tenant_id, user_id) ignores REJECTED rows.
type MembershipRepository struct {
	db *sqlx.DB
}

// NewMembershipRepository creates a new MembershipRepository
func NewMembershipRepository(db *sqlx.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

const membershipColumns = `id, tenant_id, user_id, status, roles, requested_at, updated_at`

// CreateMembership inserts a membership row
func (r *MembershipRepository) CreateMembership(ctx context.Context, m *authz.Membership) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.RequestedAt = time.Now()
	m.UpdatedAt = m.RequestedAt

	roles, err := models.EncodeRoles(m.Roles)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO memberships (id, tenant_id, user_id, status, roles, requested_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = db.Executor(ctx, r.db).ExecContext(ctx, query,
		m.ID, m.TenantID, m.UserID, string(m.Status), roles, m.RequestedAt, m.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to create membership: %w", ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

// GetMembershipByID retrieves a membership by ID
func (r *MembershipRepository) GetMembershipByID(ctx context.Context, id string) (*authz.Membership, error) {
	return r.getOne(ctx, `SELECT `+membershipColumns+` FROM memberships WHERE id = $1`, id)
}

// GetLatestMembership retrieves the most recent membership of a user in a tenant
func (r *MembershipRepository) GetLatestMembership(ctx context.Context, tenantID, userID string) (*authz.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships
		WHERE tenant_id = $1 AND user_id = $2
		ORDER BY requested_at DESC
		LIMIT 1`
	return r.getOne(ctx, query, tenantID, userID)
}

func (r *MembershipRepository) getOne(ctx context.Context, query string, args ...any) (*authz.Membership, error) {
	var row models.MembershipRow
	err := sqlx.GetContext(ctx, db.Executor(ctx, r.db), &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return row.ToDomain()
}

// ListMemberships lists a tenant's memberships, optionally filtered by status, newest first
func (r *MembershipRepository) ListMemberships(ctx context.Context, tenantID string, status *authz.MembershipStatus, limit, offset int) ([]*authz.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE tenant_id = $1`
	args := []any{tenantID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, string(*status))
	}
	query += fmt.Sprintf(` ORDER BY requested_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	var rows []models.MembershipRow
	if err := sqlx.SelectContext(ctx, db.Executor(ctx, r.db), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}

	out := make([]*authz.Membership, 0, len(rows))
	for i := range rows {
		m, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// UpdateMembershipStatus moves a membership from one status to another with compare-and-set
// semantics. It reports false when the row was not in the from status.
func (r *MembershipRepository) UpdateMembershipStatus(ctx context.Context, id string, from, to authz.MembershipStatus) (bool, error) {
	query := `UPDATE memberships SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	res, err := db.Executor(ctx, r.db).ExecContext(ctx, query, id, string(from), string(to), time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to update membership status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update membership status: %w", err)
	}
	return n == 1, nil
}

// UpdateMembershipRoles replaces the membership's role assignments
func (r *MembershipRepository) UpdateMembershipRoles(ctx context.Context, id string, roles []authz.RoleAssignment) error {
	encoded, err := models.EncodeRoles(roles)
	if err != nil {
		return err
	}

	query := `UPDATE memberships SET roles = $2, updated_at = $3 WHERE id = $1`
	if _, err := db.Executor(ctx, r.db).ExecContext(ctx, query, id, encoded, time.Now()); err != nil {
		return fmt.Errorf("failed to update membership roles: %w", err)
	}
	return nil
}
