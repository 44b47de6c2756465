package models

import (
	"database/sql"
	"time"

	"github.com/temple4/community-core/internal/giving"
)

// FundRow is a row of the funds table
type FundRow struct {
	ID                string        `db:"id"`
	TenantID          string        `db:"tenant_id"`
	Name              string        `db:"name"`
	Type              string        `db:"type"`
	Currency          string        `db:"currency"`
	MinAmountCents    sql.NullInt64 `db:"min_amount_cents"`
	MaxAmountCents    sql.NullInt64 `db:"max_amount_cents"`
	GoalAmountCents   sql.NullInt64 `db:"goal_amount_cents"`
	AmountRaisedCents int64         `db:"amount_raised_cents"`
	StartDate         sql.NullTime  `db:"start_date"`
	EndDate           sql.NullTime  `db:"end_date"`
	ArchivedAt        sql.NullTime  `db:"archived_at"`
	CreatedAt         time.Time     `db:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at"`
}

// ToDomain converts the row to a giving.Fund
func (r *FundRow) ToDomain() *giving.Fund {
	return &giving.Fund{
		ID:                r.ID,
		TenantID:          r.TenantID,
		Name:              r.Name,
		Type:              r.Type,
		Currency:          r.Currency,
		MinAmountCents:    int64Ptr(r.MinAmountCents),
		MaxAmountCents:    int64Ptr(r.MaxAmountCents),
		GoalAmountCents:   int64Ptr(r.GoalAmountCents),
		AmountRaisedCents: r.AmountRaisedCents,
		StartDate:         timePtr(r.StartDate),
		EndDate:           timePtr(r.EndDate),
		ArchivedAt:        timePtr(r.ArchivedAt),
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

// FundRowFromDomain converts a giving.Fund to a row
func FundRowFromDomain(f *giving.Fund) *FundRow {
	return &FundRow{
		ID:                f.ID,
		TenantID:          f.TenantID,
		Name:              f.Name,
		Type:              f.Type,
		Currency:          f.Currency,
		MinAmountCents:    nullInt64(f.MinAmountCents),
		MaxAmountCents:    nullInt64(f.MaxAmountCents),
		GoalAmountCents:   nullInt64(f.GoalAmountCents),
		AmountRaisedCents: f.AmountRaisedCents,
		StartDate:         nullTime(f.StartDate),
		EndDate:           nullTime(f.EndDate),
		ArchivedAt:        nullTime(f.ArchivedAt),
		CreatedAt:         f.CreatedAt,
		UpdatedAt:         f.UpdatedAt,
	}
}
