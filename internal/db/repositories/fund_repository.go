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

// FundRepository handles fund database operations
type FundRepository struct {
	db *sqlx.DB
}

// NewFundRepository creates a new FundRepository
func NewFundRepository(db *sqlx.DB) *FundRepository {
	return &FundRepository{db: db}
}

const fundColumns = `id, tenant_id, name, type, currency, min_amount_cents, max_amount_cents, goal_amount_cents,
	amount_raised_cents, start_date, end_date, archived_at, created_at, updated_at`

// CreateFund creates a new fund
func (r *FundRepository) CreateFund(ctx context.Context, fund *giving.Fund) error {
	if fund.ID == "" {
		fund.ID = uuid.New().String()
	}
	fund.CreatedAt = time.Now()
	fund.UpdatedAt = fund.CreatedAt

	query := `
		INSERT INTO funds (id, tenant_id, name, type, currency, min_amount_cents, max_amount_cents, goal_amount_cents,
			amount_raised_cents, start_date, end_date, archived_at, created_at, updated_at)
		VALUES (:id, :tenant_id, :name, :type, :currency, :min_amount_cents, :max_amount_cents, :goal_amount_cents,
			:amount_raised_cents, :start_date, :end_date, :archived_at, :created_at, :updated_at)
	`
	if _, err := sqlx.NamedExecContext(ctx, db.Executor(ctx, r.db), query, models.FundRowFromDomain(fund)); err != nil {
		return fmt.Errorf("failed to create fund: %w", err)
	}
	return nil
}

// GetFund retrieves a fund within a tenant
func (r *FundRepository) GetFund(ctx context.Context, tenantID, fundID string) (*giving.Fund, error) {
	return r.getOne(ctx, `SELECT `+fundColumns+` FROM funds WHERE tenant_id = $1 AND id = $2`, tenantID, fundID)
}

// GetFundForUpdate retrieves a fund and locks its row until the surrounding transaction ends
func (r *FundRepository) GetFundForUpdate(ctx context.Context, fundID string) (*giving.Fund, error) {
	return r.getOne(ctx, `SELECT `+fundColumns+` FROM funds WHERE id = $1 FOR UPDATE`, fundID)
}

func (r *FundRepository) getOne(ctx context.Context, query string, args ...any) (*giving.Fund, error) {
	var row models.FundRow
	err := sqlx.GetContext(ctx, db.Executor(ctx, r.db), &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fund: %w", err)
	}
	return row.ToDomain(), nil
}

// ListFunds lists a tenant's funds. Archived funds are included only when includeArchived is set.
func (r *FundRepository) ListFunds(ctx context.Context, tenantID string, includeArchived bool) ([]*giving.Fund, error) {
	query := `SELECT ` + fundColumns + ` FROM funds WHERE tenant_id = $1`
	if !includeArchived {
		query += ` AND archived_at IS NULL`
	}
	query += ` ORDER BY name`

	var rows []models.FundRow
	if err := sqlx.SelectContext(ctx, db.Executor(ctx, r.db), &rows, query, tenantID); err != nil {
		return nil, fmt.Errorf("failed to list funds: %w", err)
	}

	funds := make([]*giving.Fund, 0, len(rows))
	for i := range rows {
		funds = append(funds, rows[i].ToDomain())
	}
	return funds, nil
}

// IncrementRaised adds amountCents to the fund's raised total
func (r *FundRepository) IncrementRaised(ctx context.Context, fundID string, amountCents int64) error {
	if amountCents < 0 {
		return fmt.Errorf("failed to increment raised amount: negative amount %d", amountCents)
	}
	query := `UPDATE funds SET amount_raised_cents = amount_raised_cents + $2, updated_at = $3 WHERE id = $1`
	if _, err := db.Executor(ctx, r.db).ExecContext(ctx, query, fundID, amountCents, time.Now()); err != nil {
		return fmt.Errorf("failed to increment raised amount: %w", err)
	}
	return nil
}
