package services

import (
	"context"
	"fmt"
	"time"

	"github.com/temple4/community-core/internal/audit"
	"github.com/temple4/community-core/internal/authz"
	"github.com/temple4/community-core/internal/cache"
	"github.com/temple4/community-core/internal/events"
	"github.com/temple4/community-core/internal/giving"
	"github.com/temple4/community-core/internal/telemetry"
)

// GivingConfig holds the tunables of GivingService.
type GivingConfig struct {
	// MaxFailedAttempts pauses a pledge after this many consecutive failed charges. 0 disables.
	MaxFailedAttempts int
	// Location is the timezone leaderboard windows are computed in. Defaults to UTC.
	Location *time.Location
	// LeaderboardTopN is the leaderboard size when the caller does not ask for one.
	LeaderboardTopN int
}

// GivingService manages pledges, donations and fund reporting.
type GivingService struct {
	access       *AccessService
	funds        FundStore
	pledges      PledgeStore
	donations    DonationStore
	tx           TxRunner
	leaderboards *cache.LeaderboardCache
	auditor      Auditor
	publisher    events.Publisher
	cfg          GivingConfig
	now          func() time.Time
}

// NewGivingService creates a GivingService. tx and leaderboards may be nil.
func NewGivingService(access *AccessService, funds FundStore, pledges PledgeStore, donations DonationStore, tx TxRunner, leaderboards *cache.LeaderboardCache, cfg GivingConfig) *GivingService {
	if tx == nil {
		tx = passthroughTx{}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LeaderboardTopN <= 0 {
		cfg.LeaderboardTopN = giving.DefaultTopN
	}
	return &GivingService{
		access:       access,
		funds:        funds,
		pledges:      pledges,
		donations:    donations,
		tx:           tx,
		leaderboards: leaderboards,
		auditor:      access.auditor,
		publisher:    access.publisher,
		cfg:          cfg,
		now:          time.Now,
	}
}

// CreatePledgeInput describes a new recurring pledge.
type CreatePledgeInput struct {
	TenantID    string     `json:"-"`
	UserID      string     `json:"-"`
	FundID      string     `json:"fund_id" binding:"required"`
	AmountCents int64      `json:"amount_cents"`
	Currency    string     `json:"currency" binding:"required"`
	Frequency   string     `json:"frequency" binding:"required"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
}

// CreatePledge creates an ACTIVE pledge for a member with an APPROVED membership.
// The start date defaults to now.
func (s *GivingService) CreatePledge(ctx context.Context, in CreatePledgeInput) (*giving.Pledge, error) {
	freq, err := giving.ParseFrequency(in.Frequency)
	if err != nil {
		return nil, err
	}

	ac, err := s.access.load(ctx, &in.UserID, in.TenantID)
	if err != nil {
		return nil, err
	}
	if !ac.membership.IsActive() {
		return nil, fmt.Errorf("%w: an approved membership is required to pledge", ErrUnauthorized)
	}

	fund, err := s.funds.GetFund(ctx, in.TenantID, in.FundID)
	if err != nil {
		return nil, fmt.Errorf("failed to load fund: %w", err)
	}
	if fund == nil {
		return nil, fmt.Errorf("%w: fund %s", ErrNotFound, in.FundID)
	}

	start := s.now()
	if in.StartDate != nil {
		start = *in.StartDate
	}
	p, err := giving.NewPledge(fund, in.UserID, in.AmountCents, in.Currency, freq, start, in.EndDate)
	if err != nil {
		return nil, err
	}
	if err := s.pledges.CreatePledge(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create pledge: %w", err)
	}

	publish(ctx, s.publisher, events.New(events.PledgeCreated, p.TenantID, p))
	return p, nil
}

// AdvancePledge applies the outcome of a charge attempt; see giving.ApplyCharge for how at is
// read. A non-empty tenantID restricts the call to pledges of that tenant, and any other pledge
// is reported as not found.
//
// The pledge row is locked for the duration of the update. Replaying a charge that was already
// applied, or one for a pledge that is not ACTIVE or not yet due, returns the pledge unchanged.
// A successful charge records a donation and adds it to the fund's raised amount.
func (s *GivingService) AdvancePledge(ctx context.Context, tenantID, pledgeID string, chargeSucceeded bool, at time.Time) (*giving.Pledge, error) {
	var (
		p        *giving.Pledge
		result   giving.ChargeResult
		donation *giving.Donation
		from     giving.PledgeStatus
	)

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.pledges.GetPledgeForUpdate(ctx, pledgeID)
		if err != nil {
			return fmt.Errorf("failed to load pledge: %w", err)
		}
		if p == nil || (tenantID != "" && p.TenantID != tenantID) {
			return fmt.Errorf("%w: pledge %s", ErrNotFound, pledgeID)
		}
		from = p.Status

		result, donation, err = giving.ApplyCharge(p, chargeSucceeded, at, s.cfg.MaxFailedAttempts)
		if err != nil {
			return err
		}
		if result == giving.ChargeSkipped {
			return nil
		}

		if donation != nil {
			if err := s.donations.CreateDonation(ctx, donation); err != nil {
				return fmt.Errorf("failed to record donation: %w", err)
			}
			if err := s.funds.IncrementRaised(ctx, donation.FundID, donation.AmountCents); err != nil {
				return fmt.Errorf("failed to update fund total: %w", err)
			}
		}
		if err := s.pledges.UpdatePledge(ctx, p); err != nil {
			return fmt.Errorf("failed to update pledge: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.PledgeChargesTotal.WithLabelValues(string(result)).Inc()
	if result == giving.ChargeSkipped {
		return p, nil
	}

	s.auditor.Record(ctx, &audit.LogEntry{
		Action:       audit.ActionPledgeAdvanced,
		UserID:       p.UserID,
		TenantID:     p.TenantID,
		ResourceType: "pledge",
		ResourceID:   p.ID,
		Metadata: map[string]interface{}{
			"result":          string(result),
			"charged_at":      at.UTC().Format(time.RFC3339),
			"status":          string(p.Status),
			"failed_attempts": p.FailedAttempts,
		},
	})

	evs := []events.Event{events.New(events.PledgeAdvanced, p.TenantID, map[string]interface{}{
		"pledge_id":      p.ID,
		"result":         string(result),
		"from":           string(from),
		"status":         string(p.Status),
		"next_charge_at": p.NextChargeAt,
	})}
	if donation != nil {
		s.leaderboards.Invalidate(ctx, p.TenantID)
		evs = append(evs, events.New(events.DonationRecorded, p.TenantID, donation))
	}
	publish(ctx, s.publisher, evs...)
	return p, nil
}

// PausePledge pauses an ACTIVE pledge.
func (s *GivingService) PausePledge(ctx context.Context, actorID, tenantID, pledgeID string) (*giving.Pledge, error) {
	return s.changePledgeStatus(ctx, actorID, tenantID, pledgeID, giving.Pause)
}

// ResumePledge reactivates a PAUSED pledge. Charge dates missed while paused are skipped.
func (s *GivingService) ResumePledge(ctx context.Context, actorID, tenantID, pledgeID string) (*giving.Pledge, error) {
	return s.changePledgeStatus(ctx, actorID, tenantID, pledgeID, func(p *giving.Pledge) error {
		return giving.Resume(p, s.now())
	})
}

// CancelPledge cancels an ACTIVE or PAUSED pledge.
func (s *GivingService) CancelPledge(ctx context.Context, actorID, tenantID, pledgeID string) (*giving.Pledge, error) {
	return s.changePledgeStatus(ctx, actorID, tenantID, pledgeID, giving.Cancel)
}

// changePledgeStatus applies change to the locked pledge. Only the pledge owner or an actor
// holding canManageFunds may change it.
func (s *GivingService) changePledgeStatus(ctx context.Context, actorID, tenantID, pledgeID string, change func(*giving.Pledge) error) (*giving.Pledge, error) {
	var (
		p    *giving.Pledge
		from giving.PledgeStatus
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.pledges.GetPledgeForUpdate(ctx, pledgeID)
		if err != nil {
			return fmt.Errorf("failed to load pledge: %w", err)
		}
		if p == nil || p.TenantID != tenantID {
			return fmt.Errorf("%w: pledge %s", ErrNotFound, pledgeID)
		}
		if p.UserID != actorID {
			if _, err := s.access.require(ctx, actorID, tenantID, authz.PermManageFunds); err != nil {
				return err
			}
		}

		from = p.Status
		if err := change(p); err != nil {
			return err
		}
		if err := s.pledges.UpdatePledge(ctx, p); err != nil {
			return fmt.Errorf("failed to update pledge: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, &audit.LogEntry{
		Action:       audit.ActionPledgeStatusChanged,
		UserID:       actorID,
		TenantID:     tenantID,
		ResourceType: "pledge",
		ResourceID:   p.ID,
		Metadata:     map[string]interface{}{"from": string(from), "to": string(p.Status)},
	})
	publish(ctx, s.publisher, events.New(events.PledgeStatusChanged, tenantID, map[string]interface{}{
		"pledge_id": p.ID,
		"from":      string(from),
		"to":        string(p.Status),
		"actor_id":  actorID,
	}))
	return p, nil
}

// ListUserPledges lists the pledges a user holds in the tenant.
func (s *GivingService) ListUserPledges(ctx context.Context, tenantID, userID string) ([]*giving.Pledge, error) {
	list, err := s.pledges.ListUserPledges(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pledges: %w", err)
	}
	return list, nil
}

// ListDuePledges returns up to limit ACTIVE pledges whose next charge is due now. A non-empty
// tenantID restricts the list to that tenant.
func (s *GivingService) ListDuePledges(ctx context.Context, tenantID string, limit int) ([]*giving.Pledge, error) {
	list, err := s.pledges.ListDuePledges(ctx, tenantID, s.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due pledges: %w", err)
	}
	return list, nil
}

// RecordDonationInput describes a one-off gift entered by staff.
type RecordDonationInput struct {
	TenantID    string     `json:"-"`
	FundID      string     `json:"-"`
	UserID      *string    `json:"user_id,omitempty"`
	DisplayName *string    `json:"display_name,omitempty"`
	AmountCents int64      `json:"amount_cents"`
	Currency    string     `json:"currency" binding:"required"`
	Anonymous   bool       `json:"is_anonymous_on_leaderboard"`
	DonatedAt   *time.Time `json:"donated_at,omitempty"`
}

// RecordDonation records a one-off donation. The actor needs canManageDonations and the amount
// must satisfy the fund's constraints at the donation time (default now).
func (s *GivingService) RecordDonation(ctx context.Context, actorID string, in RecordDonationInput) (*giving.Donation, error) {
	if _, err := s.access.require(ctx, actorID, in.TenantID, authz.PermManageDonations); err != nil {
		return nil, err
	}

	at := s.now()
	if in.DonatedAt != nil {
		at = *in.DonatedAt
	}

	var d *giving.Donation
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		fund, err := s.funds.GetFundForUpdate(ctx, in.FundID)
		if err != nil {
			return fmt.Errorf("failed to load fund: %w", err)
		}
		if fund == nil || fund.TenantID != in.TenantID {
			return fmt.Errorf("%w: fund %s", ErrNotFound, in.FundID)
		}
		if err := giving.ValidateAmount(fund, in.AmountCents, at); err != nil {
			return err
		}
		if err := giving.ValidateCurrency(fund, in.Currency); err != nil {
			return err
		}

		d = &giving.Donation{
			TenantID:                 in.TenantID,
			FundID:                   fund.ID,
			UserID:                   in.UserID,
			DisplayName:              in.DisplayName,
			AmountCents:              in.AmountCents,
			Currency:                 fund.Currency,
			IsAnonymousOnLeaderboard: in.Anonymous,
			DonatedAt:                at,
		}
		if err := s.donations.CreateDonation(ctx, d); err != nil {
			return fmt.Errorf("failed to record donation: %w", err)
		}
		if err := s.funds.IncrementRaised(ctx, fund.ID, d.AmountCents); err != nil {
			return fmt.Errorf("failed to update fund total: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.leaderboards.Invalidate(ctx, in.TenantID)
	s.auditor.Record(ctx, &audit.LogEntry{
		Action:       audit.ActionDonationRecorded,
		UserID:       actorID,
		TenantID:     in.TenantID,
		ResourceType: "donation",
		ResourceID:   d.ID,
		Metadata:     map[string]interface{}{"fund_id": d.FundID, "amount_cents": d.AmountCents},
	})
	publish(ctx, s.publisher, events.New(events.DonationRecorded, in.TenantID, d))
	return d, nil
}

// FundProgress reports how far the fund is toward its goal.
func (s *GivingService) FundProgress(ctx context.Context, tenantID, fundID string) (giving.FundProgress, error) {
	fund, err := s.funds.GetFund(ctx, tenantID, fundID)
	if err != nil {
		return giving.FundProgress{}, fmt.Errorf("failed to load fund: %w", err)
	}
	if fund == nil {
		return giving.FundProgress{}, fmt.Errorf("%w: fund %s", ErrNotFound, fundID)
	}
	return giving.Progress(fund), nil
}

// FundLeaderboard ranks the tenant's donors over timeframe (ALL_TIME, YEARLY or MONTHLY).
// Windows start at midnight in the configured timezone. topN <= 0 uses the configured default.
func (s *GivingService) FundLeaderboard(ctx context.Context, tenantID, timeframe string, topN int) ([]giving.LeaderboardEntry, error) {
	tf, err := giving.ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	if topN <= 0 {
		topN = s.cfg.LeaderboardTopN
	}
	if _, err := s.access.loadTenant(ctx, tenantID); err != nil {
		return nil, err
	}

	now := s.now().In(s.cfg.Location)
	since := giving.WindowStart(tf, now)
	if entries, ok := s.leaderboards.Get(ctx, tenantID, tf, since, topN); ok {
		return entries, nil
	}

	donations, err := s.donations.ListDonationsSince(ctx, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list donations: %w", err)
	}
	entries := giving.Leaderboard(donations, tf, now, topN)
	s.leaderboards.Set(ctx, tenantID, tf, since, topN, entries)
	return entries, nil
}
