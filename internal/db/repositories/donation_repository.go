package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/temple4/community-core/internal/db"
	"github.com/temple4/community-core/internal/db/models"
	"github.com/temple4/community-core/internal/giving"
)

// DonationRepository handles donation database operations. Donations are insert-only.
type DonationRepository struct {
	db *sqlx.DB
}

// NewDonationRepository creates a new DonationRepository
func NewDonationRepository(db *sqlx.DB) *DonationRepository {
	return &DonationRepository{db: db}
}

// CreateDonation records a donation
func (r *DonationRepository) CreateDonation(ctx context.Context, d *giving.Donation) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}

	query := `
		INSERT INTO donations (id, tenant_id, fund_id, user_id, display_name, amount_cents, currency,
			is_anonymous_on_leaderboard, donated_at, pledge_id)
		VALUES (:id, :tenant_id, :fund_id, :user_id, :display_name, :amount_cents, :currency,
			:is_anonymous_on_leaderboard, :donated_at, :pledge_id)
	`
	if _, err := sqlx.NamedExecContext(ctx, db.Executor(ctx, r.db), query, models.DonationRowFromDomain(d)); err != nil {
		return fmt.Errorf("failed to create donation: %w", err)
	}
	return nil
}

// ListDonationsSince lists a tenant's donations made at or after since. A zero since lists all.
func (r *DonationRepository) ListDonationsSince(ctx context.Context, tenantID string, since time.Time) ([]giving.Donation, error) {
	query := `
		SELECT id, tenant_id, fund_id, user_id, display_name, amount_cents, currency,
		       is_anonymous_on_leaderboard, donated_at, pledge_id
		FROM donations
		WHERE tenant_id = $1 AND donated_at >= $2
		ORDER BY donated_at
	`

	var rows []models.DonationRow
	if err := sqlx.SelectContext(ctx, db.Executor(ctx, r.db), &rows, query, tenantID, since); err != nil {
		return nil, fmt.Errorf("failed to list donations: %w", err)
	}

	donations := make([]giving.Donation, 0, len(rows))
	for i := range rows {
		donations = append(donations, rows[i].ToDomain())
	}
	return donations, nil
}
