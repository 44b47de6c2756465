package giving

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPledgeTransition is returned when a pause, resume or cancel does not apply to the
// pledge's current status.
var ErrInvalidPledgeTransition = errors.New("invalid pledge status transition")

// ChargeResult describes what ApplyCharge did to a pledge.
type ChargeResult string

const (
	ChargeSkipped   ChargeResult = "skipped"
	ChargeSucceeded ChargeResult = "succeeded"
	ChargeFailed    ChargeResult = "failed"
)

// NewPledge builds an ACTIVE pledge after validating it against fund.
func NewPledge(fund *Fund, userID string, amountCents int64, currency string, freq Frequency, start time.Time, end *time.Time) (*Pledge, error) {
	first, err := ValidatePledge(fund, amountCents, currency, freq, start, end)
	if err != nil {
		return nil, err
	}
	return &Pledge{
		TenantID:     fund.TenantID,
		UserID:       userID,
		FundID:       fund.ID,
		AmountCents:  amountCents,
		Currency:     fund.Currency,
		Frequency:    freq,
		StartDate:    start,
		EndDate:      end,
		NextChargeAt: first,
		Status:       PledgeActive,
	}, nil
}

// ApplyCharge applies the result of a charge attempt to p.
//
// For a successful charge, at is the scheduled date the charge was collected for. It must fall in
// the current period, from p.NextChargeAt up to the following charge date; any other value is a
// stale or replayed outcome and is skipped. The period's scheduled date, not at, becomes
// LastChargedAt and the donation date, so a replay can never record a second donation for the
// same period. NextChargeAt then moves one period forward and the pledge completes once that
// passes EndDate; the returned donation must be recorded by the caller.
//
// For a decline, at is when the attempt was made. A decline at or before the last recorded one
// is a replay and is skipped; otherwise FailedAttempts is incremented and the pledge is paused
// when maxFailed (if positive) is reached.
//
// Nothing is applied to a pledge that is not ACTIVE or not yet due.
func ApplyCharge(p *Pledge, succeeded bool, at time.Time, maxFailed int) (ChargeResult, *Donation, error) {
	if p.Status != PledgeActive || at.Before(p.NextChargeAt) {
		return ChargeSkipped, nil, nil
	}

	if !succeeded {
		if p.LastFailedAt != nil && !at.After(*p.LastFailedAt) {
			return ChargeSkipped, nil, nil
		}
		failed := at
		p.LastFailedAt = &failed
		p.FailedAttempts++
		if maxFailed > 0 && p.FailedAttempts >= maxFailed {
			p.Status = PledgePaused
		}
		return ChargeFailed, nil, nil
	}

	next, err := NextChargeDate(p.NextChargeAt, p.Frequency)
	if err != nil {
		return ChargeSkipped, nil, err
	}
	if !at.Before(next) {
		return ChargeSkipped, nil, nil
	}

	basis := p.NextChargeAt
	p.LastChargedAt = &basis
	p.ChargeCount++
	p.FailedAttempts = 0
	p.NextChargeAt = next
	if p.EndDate != nil && next.After(*p.EndDate) {
		p.Status = PledgeCompleted
	}

	pledgeID := p.ID
	userID := p.UserID
	return ChargeSucceeded, &Donation{
		TenantID:    p.TenantID,
		FundID:      p.FundID,
		UserID:      &userID,
		AmountCents: p.AmountCents,
		Currency:    p.Currency,
		DonatedAt:   basis,
		PledgeID:    &pledgeID,
	}, nil
}

// Pause moves an ACTIVE pledge to PAUSED.
func Pause(p *Pledge) error {
	if p.Status != PledgeActive {
		return fmt.Errorf("%w: cannot pause a %s pledge", ErrInvalidPledgeTransition, p.Status)
	}
	p.Status = PledgePaused
	return nil
}

// Resume moves a PAUSED pledge back to ACTIVE. Failed attempts are cleared and missed charge dates
// are skipped, so the next charge is the first scheduled date at or after now.
func Resume(p *Pledge, now time.Time) error {
	if p.Status != PledgePaused {
		return fmt.Errorf("%w: cannot resume a %s pledge", ErrInvalidPledgeTransition, p.Status)
	}
	next := p.NextChargeAt
	for next.Before(now) {
		n, err := NextChargeDate(next, p.Frequency)
		if err != nil {
			return err
		}
		next = n
	}

	p.NextChargeAt = next
	p.FailedAttempts = 0
	p.Status = PledgeActive
	if p.EndDate != nil && next.After(*p.EndDate) {
		p.Status = PledgeCompleted
	}
	return nil
}

// Cancel ends an ACTIVE or PAUSED pledge.
func Cancel(p *Pledge) error {
	if p.Status != PledgeActive && p.Status != PledgePaused {
		return fmt.Errorf("%w: cannot cancel a %s pledge", ErrInvalidPledgeTransition, p.Status)
	}
	p.Status = PledgeCancelled
	return nil
}
