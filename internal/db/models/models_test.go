package models

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temple4/community-core/internal/authz"
	"github.com/temple4/community-core/internal/giving"
)

// ---------------------------------------------------------------------------
// TenantRow
// ---------------------------------------------------------------------------

func TestTenantRow_ToDomain_DropsUnknownEntries(t *testing.T) {
	row := &TenantRow{
		ID:   "t1",
		Slug: "grace",
		Name: "Grace Chapel",
		Permissions: []byte(`{
			"ADMIN": {"canManageFunds": true, "canLevitate": true},
			"MODERATOR": {"canBanMembers": true},
			"DEACON": {"canCreatePosts": true}
		}`),
		Settings: []byte(`{
			"features": {"posts": true, "telepathy": true},
			"visitor_visibility": {"sermons": true}
		}`),
	}

	tenant, err := row.ToDomain()
	require.NoError(t, err)

	assert.True(t, tenant.Permissions.Allows(authz.RoleTypeAdmin, authz.PermManageFunds))
	assert.True(t, tenant.Permissions.Allows(authz.RoleTypeModerator, authz.PermBanMembers))
	assert.Len(t, tenant.Permissions, 2)
	assert.Len(t, tenant.Permissions[authz.RoleTypeAdmin], 1)

	assert.Equal(t, map[authz.ContentCategory]bool{authz.CategoryPosts: true}, tenant.Settings.Features)
	assert.True(t, tenant.Settings.VisitorVisibility[authz.CategorySermons])
}

func TestTenantRow_ToDomain_EmptyDocuments(t *testing.T) {
	tenant, err := (&TenantRow{ID: "t1"}).ToDomain()
	require.NoError(t, err)
	assert.NotNil(t, tenant.Permissions)
	assert.False(t, tenant.Permissions.Allows(authz.RoleTypeAdmin, authz.PermManageFunds))
	assert.NotNil(t, tenant.Settings.Features)
}

func TestTenantRow_ToDomain_InvalidJSON(t *testing.T) {
	_, err := (&TenantRow{ID: "t1", Permissions: []byte(`[`)}).ToDomain()
	assert.Error(t, err)
}

func TestTenantRowFromDomain_RoundTripsThroughToDomain(t *testing.T) {
	in := &authz.Tenant{
		ID:          "t1",
		Slug:        "grace",
		Name:        "Grace Chapel",
		Permissions: authz.DefaultMatrix(),
		Settings:    authz.DefaultSettings(),
	}

	row, err := TenantRowFromDomain(in)
	require.NoError(t, err)

	out, err := row.ToDomain()
	require.NoError(t, err)
	assert.Equal(t, in.Permissions, out.Permissions)
	assert.Equal(t, in.Settings, out.Settings)
}

// ---------------------------------------------------------------------------
// MembershipRow
// ---------------------------------------------------------------------------

func TestMembershipRow_ToDomain(t *testing.T) {
	row := &MembershipRow{
		ID:       "m1",
		TenantID: "t1",
		UserID:   "u1",
		Status:   "APPROVED",
		Roles:    []byte(`[{"role":"CLERGY","is_primary":true,"display_title":"Pastor"},{"role":"MODERATOR","is_primary":false}]`),
	}

	m, err := row.ToDomain()
	require.NoError(t, err)
	assert.Equal(t, authz.StatusApproved, m.Status)
	require.Len(t, m.Roles, 2)
	assert.Equal(t, authz.RoleClergy, m.PrimaryRole())
	require.NotNil(t, m.Roles[0].DisplayTitle)
	assert.Equal(t, "Pastor", *m.Roles[0].DisplayTitle)
	assert.Nil(t, m.Roles[1].DisplayTitle)
}

func TestEncodeRoles_NilIsEmptyArray(t *testing.T) {
	b, err := EncodeRoles(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))
}

// ---------------------------------------------------------------------------
// Giving rows
// ---------------------------------------------------------------------------

func TestFundRow_NullableColumns(t *testing.T) {
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	row := &FundRow{
		ID:              "f1",
		GoalAmountCents: sql.NullInt64{Int64: 100000, Valid: true},
		EndDate:         sql.NullTime{Time: end, Valid: true},
	}

	f := row.ToDomain()
	require.NotNil(t, f.GoalAmountCents)
	assert.Equal(t, int64(100000), *f.GoalAmountCents)
	assert.Nil(t, f.MinAmountCents)
	assert.Nil(t, f.StartDate)
	require.NotNil(t, f.EndDate)
	assert.Equal(t, end, *f.EndDate)

	back := FundRowFromDomain(f)
	assert.Equal(t, row.GoalAmountCents, back.GoalAmountCents)
	assert.False(t, back.MaxAmountCents.Valid)
	assert.Equal(t, row.EndDate, back.EndDate)
}

func TestPledgeRow_ToDomain(t *testing.T) {
	row := &PledgeRow{
		ID:        "p1",
		Frequency: "MONTHLY",
		Status:    "PAUSED",
		LastChargedAt: sql.NullTime{
			Time:  time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
			Valid: true,
		},
		FailedAttempts: 3,
	}

	p := row.ToDomain()
	assert.Equal(t, giving.Monthly, p.Frequency)
	assert.Equal(t, giving.PledgePaused, p.Status)
	require.NotNil(t, p.LastChargedAt)
	assert.Nil(t, p.EndDate)
	assert.Equal(t, 3, p.FailedAttempts)
}

func TestDonationRow_AnonymousGift(t *testing.T) {
	name := "A friend"
	d := giving.Donation{ID: "d1", DisplayName: &name, AmountCents: 500}

	row := DonationRowFromDomain(&d)
	assert.False(t, row.UserID.Valid)
	assert.True(t, row.DisplayName.Valid)

	back := row.ToDomain()
	assert.Nil(t, back.UserID)
	assert.Nil(t, back.PledgeID)
	assert.Equal(t, "A friend", *back.DisplayName)
}

// ---------------------------------------------------------------------------
// APIKey
// ---------------------------------------------------------------------------

func TestAPIKey_ExpiryAndScopes(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	k := &APIKey{Scopes: []string{"pledges:charge"}}

	assert.False(t, k.IsExpired(now))
	k.ExpiresAt = &past
	assert.True(t, k.IsExpired(now))

	assert.True(t, k.HasScope("pledges:charge"))
	assert.False(t, k.HasScope("admin"))
}
