package models

import (
	"database/sql"
	"time"

	"github.com/temple4/community-core/internal/giving"
)

// DonationRow is a row of the donations table
type DonationRow struct {
	ID                       string         `db:"id"`
	TenantID                 string         `db:"tenant_id"`
	FundID                   string         `db:"fund_id"`
	UserID                   sql.NullString `db:"user_id"`
	DisplayName              sql.NullString `db:"display_name"`
	AmountCents              int64          `db:"amount_cents"`
	Currency                 string         `db:"currency"`
	IsAnonymousOnLeaderboard bool           `db:"is_anonymous_on_leaderboard"`
	DonatedAt                time.Time      `db:"donated_at"`
	PledgeID                 sql.NullString `db:"pledge_id"`
}

// ToDomain converts the row to a giving.Donation
func (r *DonationRow) ToDomain() giving.Donation {
	return giving.Donation{
		ID:                       r.ID,
		TenantID:                 r.TenantID,
		FundID:                   r.FundID,
		UserID:                   stringPtr(r.UserID),
		DisplayName:              stringPtr(r.DisplayName),
		AmountCents:              r.AmountCents,
		Currency:                 r.Currency,
		IsAnonymousOnLeaderboard: r.IsAnonymousOnLeaderboard,
		DonatedAt:                r.DonatedAt,
		PledgeID:                 stringPtr(r.PledgeID),
	}
}

// DonationRowFromDomain converts a giving.Donation to a row
func DonationRowFromDomain(d *giving.Donation) *DonationRow {
	return &DonationRow{
		ID:                       d.ID,
		TenantID:                 d.TenantID,
		FundID:                   d.FundID,
		UserID:                   nullString(d.UserID),
		DisplayName:              nullString(d.DisplayName),
		AmountCents:              d.AmountCents,
		Currency:                 d.Currency,
		IsAnonymousOnLeaderboard: d.IsAnonymousOnLeaderboard,
		DonatedAt:                d.DonatedAt,
		PledgeID:                 nullString(d.PledgeID),
	}
}
