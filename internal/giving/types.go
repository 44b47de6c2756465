// Package giving holds the donation domain: funds, recurring pledges and their schedule,
// amount validation, fund progress, and donor leaderboards. Everything here is pure
// calendar and arithmetic code; persistence and payment live elsewhere.
package giving

import "time"

// Fund is a tenant-scoped giving target.
type Fund struct {
	ID                string     `json:"id"`
	TenantID          string     `json:"tenant_id"`
	Name              string     `json:"name"`
	Type              string     `json:"type"`
	Currency          string     `json:"currency"`
	MinAmountCents    *int64     `json:"min_amount_cents,omitempty"`
	MaxAmountCents    *int64     `json:"max_amount_cents,omitempty"`
	GoalAmountCents   *int64     `json:"goal_amount_cents,omitempty"`
	AmountRaisedCents int64      `json:"amount_raised_cents"`
	StartDate         *time.Time `json:"start_date,omitempty"`
	EndDate           *time.Time `json:"end_date,omitempty"`
	ArchivedAt        *time.Time `json:"archived_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// PledgeStatus is the lifecycle state of a recurring pledge.
type PledgeStatus string

const (
	PledgeActive    PledgeStatus = "ACTIVE"
	PledgePaused    PledgeStatus = "PAUSED"
	PledgeCancelled PledgeStatus = "CANCELLED"
	PledgeCompleted PledgeStatus = "COMPLETED"
)

// Pledge is a recurring commitment by a member to give to a fund.
type Pledge struct {
	ID             string       `json:"id"`
	TenantID       string       `json:"tenant_id"`
	UserID         string       `json:"user_id"`
	FundID         string       `json:"fund_id"`
	AmountCents    int64        `json:"amount_cents"`
	Currency       string       `json:"currency"`
	Frequency      Frequency    `json:"frequency"`
	StartDate      time.Time    `json:"start_date"`
	EndDate        *time.Time   `json:"end_date,omitempty"`
	NextChargeAt   time.Time    `json:"next_charge_at"`
	Status         PledgeStatus `json:"status"`
	LastChargedAt  *time.Time   `json:"last_charged_at,omitempty"`
	ChargeCount    int          `json:"charge_count"`
	FailedAttempts int          `json:"failed_attempts"`
	LastFailedAt   *time.Time   `json:"last_failed_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Donation is an immutable record of money given to a fund.
type Donation struct {
	ID                       string    `json:"id"`
	TenantID                 string    `json:"tenant_id"`
	FundID                   string    `json:"fund_id"`
	UserID                   *string   `json:"user_id,omitempty"`
	DisplayName              *string   `json:"display_name,omitempty"`
	AmountCents              int64     `json:"amount_cents"`
	Currency                 string    `json:"currency"`
	IsAnonymousOnLeaderboard bool      `json:"is_anonymous_on_leaderboard"`
	DonatedAt                time.Time `json:"donated_at"`
	PledgeID                 *string   `json:"pledge_id,omitempty"`
}
