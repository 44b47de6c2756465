// Package services implements the operations exposed over HTTP and used by background jobs.
// Services load the user, tenant and membership involved in a request through repository
// ports, apply the pure rules of the authz, membership and giving packages, and persist the
// outcome. Read-modify-write sequences run inside a transaction or use compare-and-set updates.
// Side effects that must not fail the operation (audit records, domain events, cache
// invalidation) happen after the write succeeds.
package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/temple4/community-core/internal/audit"
	"github.com/temple4/community-core/internal/authz"
	"github.com/temple4/community-core/internal/events"
	"github.com/temple4/community-core/internal/giving"
)

var (
	// ErrNotFound is returned when a referenced user, tenant, membership, fund or pledge does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is returned when the caller lacks the permission or membership an operation needs.
	ErrUnauthorized = errors.New("unauthorized")
)

// UserStore loads users. Repositories return (nil, nil) when a row does not exist.
type UserStore interface {
	GetUserByID(ctx context.Context, userID string) (*authz.User, error)
}

// TenantStore loads tenants and persists permission matrix changes.
type TenantStore interface {
	GetTenantByID(ctx context.Context, id string) (*authz.Tenant, error)
	UpdateTenantPermissions(ctx context.Context, id string, matrix authz.PermissionMatrix) error
}

// MembershipStore persists memberships.
type MembershipStore interface {
	CreateMembership(ctx context.Context, m *authz.Membership) error
	GetMembershipByID(ctx context.Context, id string) (*authz.Membership, error)
	GetLatestMembership(ctx context.Context, tenantID, userID string) (*authz.Membership, error)
	ListMemberships(ctx context.Context, tenantID string, status *authz.MembershipStatus, limit, offset int) ([]*authz.Membership, error)
	UpdateMembershipStatus(ctx context.Context, id string, from, to authz.MembershipStatus) (bool, error)
	UpdateMembershipRoles(ctx context.Context, id string, roles []authz.RoleAssignment) error
}

// FundStore persists funds.
type FundStore interface {
	GetFund(ctx context.Context, tenantID, fundID string) (*giving.Fund, error)
	GetFundForUpdate(ctx context.Context, fundID string) (*giving.Fund, error)
	ListFunds(ctx context.Context, tenantID string, includeArchived bool) ([]*giving.Fund, error)
	IncrementRaised(ctx context.Context, fundID string, amountCents int64) error
}

// PledgeStore persists pledges.
type PledgeStore interface {
	CreatePledge(ctx context.Context, p *giving.Pledge) error
	GetPledge(ctx context.Context, id string) (*giving.Pledge, error)
	GetPledgeForUpdate(ctx context.Context, id string) (*giving.Pledge, error)
	UpdatePledge(ctx context.Context, p *giving.Pledge) error
	ListUserPledges(ctx context.Context, tenantID, userID string) ([]*giving.Pledge, error)
	ListDuePledges(ctx context.Context, tenantID string, now time.Time, limit int) ([]*giving.Pledge, error)
}

// DonationStore persists donations.
type DonationStore interface {
	CreateDonation(ctx context.Context, d *giving.Donation) error
	ListDonationsSince(ctx context.Context, tenantID string, since time.Time) ([]giving.Donation, error)
}

// TxRunner runs fn inside a transaction carried by the context passed to fn.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Auditor records audit entries. Implementations never fail the caller.
type Auditor interface {
	Record(ctx context.Context, entry *audit.LogEntry)
}

type noopAuditor struct{}

func (noopAuditor) Record(context.Context, *audit.LogEntry) {}

// passthroughTx runs fn without a transaction. Used when no TxRunner is configured.
type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// publish sends events after the triggering write has committed. Failures are logged only.
func publish(ctx context.Context, p events.Publisher, evs ...events.Event) {
	if err := p.Publish(ctx, evs...); err != nil {
		slog.Warn("failed to publish events", "count", len(evs), "error", err)
	}
}
