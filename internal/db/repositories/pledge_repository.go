package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/temple4/community-core/internal/db"
	"github.com/temple4/community-core/internal/db/models"
	"github.com/temple4/community-core/internal/giving"
)

// PledgeRepository handles pledge database operations
type PledgeRepository struct {
	db *sqlx.DB
}

// NewPledgeRepository creates a new PledgeRepository
func NewPledgeRepository(db *sqlx.DB) *PledgeRepository {
	return &PledgeRepository{db: db}
}

const pledgeColumns = `id, tenant_id, user_id, fund_id, amount_cents, currency, frequency, start_date, end_date,
	next_charge_at, status, last_charged_at, charge_count, failed_attempts, last_failed_at, reminder_sent_for,
	created_at, updated_at`

// CreatePledge creates a new pledge
func (r *PledgeRepository) CreatePledge(ctx context.Context, p *giving.Pledge) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt

	query := `
		INSERT INTO pledges (id, tenant_id, user_id, fund_id, amount_cents, currency, frequency, start_date, end_date,
			next_charge_at, status, last_charged_at, charge_count, failed_attempts, created_at, updated_at)
		VALUES (:id, :tenant_id, :user_id, :fund_id, :amount_cents, :currency, :frequency, :start_date, :end_date,
			:next_charge_at, :status, :last_charged_at, :charge_count, :failed_attempts, :created_at, :updated_at)
	`
	if _, err := sqlx.NamedExecContext(ctx, db.Executor(ctx, r.db), query, models.PledgeRowFromDomain(p)); err != nil {
		return fmt.Errorf("failed to create pledge: %w", err)
	}
	return nil
}

// GetPledge retrieves a pledge by ID
func (r *PledgeRepository) GetPledge(ctx context.Context, id string) (*giving.Pledge, error) {
	return r.getOne(ctx, `SELECT `+pledgeColumns+` FROM pledges WHERE id = $1`, id)
}

// GetPledgeForUpdate retrieves a pledge and locks its row until the surrounding transaction ends
func (r *PledgeRepository) GetPledgeForUpdate(ctx context.Context, id string) (*giving.Pledge, error) {
	return r.getOne(ctx, `SELECT `+pledgeColumns+` FROM pledges WHERE id = $1 FOR UPDATE`, id)
}

func (r *PledgeRepository) getOne(ctx context.Context, query string, arg any) (*giving.Pledge, error) {
	var row models.PledgeRow
	err := sqlx.GetContext(ctx, db.Executor(ctx, r.db), &row, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pledge: %w", err)
	}
	return row.ToDomain(), nil
}

// UpdatePledge persists the mutable scheduling fields of a pledge
func (r *PledgeRepository) UpdatePledge(ctx context.Context, p *giving.Pledge) error {
	p.UpdatedAt = time.Now()
	query := `
		UPDATE pledges
		SET next_charge_at = :next_charge_at, status = :status, last_charged_at = :last_charged_at,
			charge_count = :charge_count, failed_attempts = :failed_attempts, last_failed_at = :last_failed_at,
			updated_at = :updated_at
		WHERE id = :id
	`
	if _, err := sqlx.NamedExecContext(ctx, db.Executor(ctx, r.db), query, models.PledgeRowFromDomain(p)); err != nil {
		return fmt.Errorf("failed to update pledge: %w", err)
	}
	return nil
}

// ListUserPledges lists a user's pledges within a tenant, newest first
func (r *PledgeRepository) ListUserPledges(ctx context.Context, tenantID, userID string) ([]*giving.Pledge, error) {
	query := `SELECT ` + pledgeColumns + ` FROM pledges WHERE tenant_id = $1 AND user_id = $2 ORDER BY created_at DESC`
	return r.list(ctx, query, tenantID, userID)
}

// ListDuePledges lists ACTIVE pledges whose next charge is at or before now, oldest due first.
// An empty tenantID lists every tenant.
func (r *PledgeRepository) ListDuePledges(ctx context.Context, tenantID string, now time.Time, limit int) ([]*giving.Pledge, error) {
	if tenantID == "" {
		query := `SELECT ` + pledgeColumns + ` FROM pledges
			WHERE status = 'ACTIVE' AND next_charge_at <= $1
			ORDER BY next_charge_at
			LIMIT $2`
		return r.list(ctx, query, now, limit)
	}
	query := `SELECT ` + pledgeColumns + ` FROM pledges
		WHERE tenant_id = $1 AND status = 'ACTIVE' AND next_charge_at <= $2
		ORDER BY next_charge_at
		LIMIT $3`
	return r.list(ctx, query, tenantID, now, limit)
}

func (r *PledgeRepository) list(ctx context.Context, query string, args ...any) ([]*giving.Pledge, error) {
	var rows []models.PledgeRow
	if err := sqlx.SelectContext(ctx, db.Executor(ctx, r.db), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list pledges: %w", err)
	}
	pledges := make([]*giving.Pledge, 0, len(rows))
	for i := range rows {
		pledges = append(pledges, rows[i].ToDomain())
	}
	return pledges, nil
}

// ListUpcomingReminders returns ACTIVE pledges charging within (now, until] whose current charge
// date has not been announced yet, joined with donor, fund and tenant names.
func (r *PledgeRepository) ListUpcomingReminders(ctx context.Context, now, until time.Time, limit int) ([]*models.PledgeReminder, error) {
	query := `
		SELECT p.id AS pledge_id, p.tenant_id, p.amount_cents, p.currency, p.next_charge_at,
		       u.email AS user_email, u.name AS user_name, f.name AS fund_name, t.name AS tenant_name
		FROM pledges p
		JOIN users u ON u.id = p.user_id
		JOIN funds f ON f.id = p.fund_id
		JOIN tenants t ON t.id = p.tenant_id
		WHERE p.status = 'ACTIVE'
		  AND p.next_charge_at > $1 AND p.next_charge_at <= $2
		  AND (p.reminder_sent_for IS NULL OR p.reminder_sent_for <> p.next_charge_at)
		ORDER BY p.next_charge_at
		LIMIT $3
	`
	var reminders []*models.PledgeReminder
	if err := sqlx.SelectContext(ctx, db.Executor(ctx, r.db), &reminders, query, now, until, limit); err != nil {
		return nil, fmt.Errorf("failed to list pledge reminders: %w", err)
	}
	return reminders, nil
}

// MarkReminderSent records that the reminder for the charge at chargeAt was sent
func (r *PledgeRepository) MarkReminderSent(ctx context.Context, pledgeID string, chargeAt time.Time) error {
	query := `UPDATE pledges SET reminder_sent_for = $2 WHERE id = $1`
	if _, err := db.Executor(ctx, r.db).ExecContext(ctx, query, pledgeID, chargeAt); err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	return nil
}
