package models

import (
	"database/sql"
	"time"

	"github.com/temple4/community-core/internal/giving"
)

// PledgeRow is a row of the pledges table.
// ReminderSentFor records the charge date the last reminder email announced.
type PledgeRow struct {
	ID              string       `db:"id"`
	TenantID        string       `db:"tenant_id"`
	UserID          string       `db:"user_id"`
	FundID          string       `db:"fund_id"`
	AmountCents     int64        `db:"amount_cents"`
	Currency        string       `db:"currency"`
	Frequency       string       `db:"frequency"`
	StartDate       time.Time    `db:"start_date"`
	EndDate         sql.NullTime `db:"end_date"`
	NextChargeAt    time.Time    `db:"next_charge_at"`
	Status          string       `db:"status"`
	LastChargedAt   sql.NullTime `db:"last_charged_at"`
	ChargeCount     int          `db:"charge_count"`
	FailedAttempts  int          `db:"failed_attempts"`
	LastFailedAt    sql.NullTime `db:"last_failed_at"`
	ReminderSentFor sql.NullTime `db:"reminder_sent_for"`
	CreatedAt       time.Time    `db:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
}

// ToDomain converts the row to a giving.Pledge
func (r *PledgeRow) ToDomain() *giving.Pledge {
	return &giving.Pledge{
		ID:             r.ID,
		TenantID:       r.TenantID,
		UserID:         r.UserID,
		FundID:         r.FundID,
		AmountCents:    r.AmountCents,
		Currency:       r.Currency,
		Frequency:      giving.Frequency(r.Frequency),
		StartDate:      r.StartDate,
		EndDate:        timePtr(r.EndDate),
		NextChargeAt:   r.NextChargeAt,
		Status:         giving.PledgeStatus(r.Status),
		LastChargedAt:  timePtr(r.LastChargedAt),
		ChargeCount:    r.ChargeCount,
		FailedAttempts: r.FailedAttempts,
		LastFailedAt:   timePtr(r.LastFailedAt),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// PledgeRowFromDomain converts a giving.Pledge to a row. ReminderSentFor is left unset.
func PledgeRowFromDomain(p *giving.Pledge) *PledgeRow {
	return &PledgeRow{
		ID:             p.ID,
		TenantID:       p.TenantID,
		UserID:         p.UserID,
		FundID:         p.FundID,
		AmountCents:    p.AmountCents,
		Currency:       p.Currency,
		Frequency:      string(p.Frequency),
		StartDate:      p.StartDate,
		EndDate:        nullTime(p.EndDate),
		NextChargeAt:   p.NextChargeAt,
		Status:         string(p.Status),
		LastChargedAt:  nullTime(p.LastChargedAt),
		ChargeCount:    p.ChargeCount,
		FailedAttempts: p.FailedAttempts,
		LastFailedAt:   nullTime(p.LastFailedAt),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

// PledgeReminder is a pledge joined with its donor and fund, for reminder emails
type PledgeReminder struct {
	PledgeID     string    `db:"pledge_id"`
	TenantID     string    `db:"tenant_id"`
	AmountCents  int64     `db:"amount_cents"`
	Currency     string    `db:"currency"`
	NextChargeAt time.Time `db:"next_charge_at"`
	UserEmail    string    `db:"user_email"`
	UserName     string    `db:"user_name"`
	FundName     string    `db:"fund_name"`
	TenantName   string    `db:"tenant_name"`
}
