package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/temple4/community-core/internal/audit"
	"github.com/temple4/community-core/internal/authz"
	"github.com/temple4/community-core/internal/cache"
	"github.com/temple4/community-core/internal/events"
	"github.com/temple4/community-core/internal/giving"
)

const testTenant = "tenant-1"

// fakeStore implements every store port over in-memory maps.
type fakeStore struct {
	mu          sync.Mutex
	users       map[string]*authz.User
	tenants     map[string]*authz.Tenant
	memberships []*authz.Membership
	funds       map[string]*giving.Fund
	pledges     map[string]*giving.Pledge
	donations   []giving.Donation
	nextID      int

	// loseStatusRace makes the next UpdateMembershipStatus report a concurrent change.
	loseStatusRace bool
	tenantReads    int
}

func newFakeStore() *fakeStore {
	s := &fakeStore{
		users:   make(map[string]*authz.User),
		tenants: make(map[string]*authz.Tenant),
		funds:   make(map[string]*giving.Fund),
		pledges: make(map[string]*giving.Pledge),
	}
	s.tenants[testTenant] = &authz.Tenant{
		ID:          testTenant,
		Slug:        "grace",
		Name:        "Grace Chapel",
		Permissions: authz.DefaultMatrix(),
		Settings:    authz.DefaultSettings(),
	}
	return s
}

func (s *fakeStore) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

func (s *fakeStore) addUser(id string, superAdmin bool) {
	s.users[id] = &authz.User{ID: id, Email: id + "@example.org", Name: id, IsSuperAdmin: superAdmin}
}

// addMember creates a user with a membership in testTenant.
func (s *fakeStore) addMember(id string, status authz.MembershipStatus, roles ...authz.TenantRole) *authz.Membership {
	s.addUser(id, false)
	m := &authz.Membership{ID: "m-" + id, TenantID: testTenant, UserID: id, Status: status}
	for i, r := range roles {
		m.Roles = append(m.Roles, authz.RoleAssignment{Role: r, IsPrimary: i == 0})
	}
	s.memberships = append(s.memberships, m)
	return m
}

func (s *fakeStore) addFund(f *giving.Fund) *giving.Fund {
	if f.TenantID == "" {
		f.TenantID = testTenant
	}
	if f.Currency == "" {
		f.Currency = "USD"
	}
	s.funds[f.ID] = f
	return f
}

func copyMembership(m *authz.Membership) *authz.Membership {
	c := *m
	c.Roles = append([]authz.RoleAssignment(nil), m.Roles...)
	return &c
}

func (s *fakeStore) GetUserByID(_ context.Context, id string) (*authz.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (s *fakeStore) GetTenantByID(_ context.Context, id string) (*authz.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenantReads++
	t, ok := s.tenants[id]
	if !ok {
		return nil, nil
	}
	c := *t
	c.Permissions = t.Permissions.Clone()
	return &c, nil
}

func (s *fakeStore) UpdateTenantPermissions(_ context.Context, id string, matrix authz.PermissionMatrix) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return errors.New("no such tenant")
	}
	t.Permissions = matrix.Clone()
	return nil
}

func (s *fakeStore) CreateMembership(_ context.Context, m *authz.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = s.id("m")
	}
	s.memberships = append(s.memberships, copyMembership(m))
	return nil
}

func (s *fakeStore) GetMembershipByID(_ context.Context, id string) (*authz.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.memberships {
		if m.ID == id {
			return copyMembership(m), nil
		}
	}
	return nil, nil
}

func (s *fakeStore) GetLatestMembership(_ context.Context, tenantID, userID string) (*authz.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.memberships) - 1; i >= 0; i-- {
		m := s.memberships[i]
		if m.TenantID == tenantID && m.UserID == userID {
			return copyMembership(m), nil
		}
	}
	return nil, nil
}

func (s *fakeStore) ListMemberships(_ context.Context, tenantID string, status *authz.MembershipStatus, limit, offset int) ([]*authz.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*authz.Membership
	for _, m := range s.memberships {
		if m.TenantID != tenantID || (status != nil && m.Status != *status) {
			continue
		}
		out = append(out, copyMembership(m))
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) UpdateMembershipStatus(_ context.Context, id string, from, to authz.MembershipStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loseStatusRace {
		s.loseStatusRace = false
		return false, nil
	}
	for _, m := range s.memberships {
		if m.ID == id && m.Status == from {
			m.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) UpdateMembershipRoles(_ context.Context, id string, roles []authz.RoleAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.memberships {
		if m.ID == id {
			m.Roles = append([]authz.RoleAssignment(nil), roles...)
			return nil
		}
	}
	return errors.New("no such membership")
}

func (s *fakeStore) GetFund(_ context.Context, tenantID, fundID string) (*giving.Fund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.funds[fundID]
	if !ok || f.TenantID != tenantID {
		return nil, nil
	}
	c := *f
	return &c, nil
}

func (s *fakeStore) GetFundForUpdate(_ context.Context, fundID string) (*giving.Fund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.funds[fundID]
	if !ok {
		return nil, nil
	}
	c := *f
	return &c, nil
}

func (s *fakeStore) ListFunds(_ context.Context, tenantID string, includeArchived bool) ([]*giving.Fund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*giving.Fund
	for _, f := range s.funds {
		if f.TenantID == tenantID && (includeArchived || f.ArchivedAt == nil) {
			c := *f
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *fakeStore) IncrementRaised(_ context.Context, fundID string, amountCents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.funds[fundID]
	if !ok {
		return errors.New("no such fund")
	}
	f.AmountRaisedCents += amountCents
	return nil
}

func (s *fakeStore) CreatePledge(_ context.Context, p *giving.Pledge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = s.id("p")
	}
	c := *p
	s.pledges[p.ID] = &c
	return nil
}

func (s *fakeStore) GetPledge(_ context.Context, id string) (*giving.Pledge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pledges[id]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (s *fakeStore) GetPledgeForUpdate(ctx context.Context, id string) (*giving.Pledge, error) {
	return s.GetPledge(ctx, id)
}

func (s *fakeStore) UpdatePledge(_ context.Context, p *giving.Pledge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pledges[p.ID]; !ok {
		return errors.New("no such pledge")
	}
	c := *p
	s.pledges[p.ID] = &c
	return nil
}

func (s *fakeStore) ListUserPledges(_ context.Context, tenantID, userID string) ([]*giving.Pledge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*giving.Pledge
	for _, p := range s.pledges {
		if p.TenantID == tenantID && p.UserID == userID {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *fakeStore) ListDuePledges(_ context.Context, tenantID string, now time.Time, limit int) ([]*giving.Pledge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*giving.Pledge
	for _, p := range s.pledges {
		if tenantID != "" && p.TenantID != tenantID {
			continue
		}
		if p.Status == giving.PledgeActive && !p.NextChargeAt.After(now) {
			c := *p
			out = append(out, &c)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) CreateDonation(_ context.Context, d *giving.Donation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == "" {
		d.ID = s.id("d")
	}
	s.donations = append(s.donations, *d)
	return nil
}

func (s *fakeStore) ListDonationsSince(_ context.Context, tenantID string, since time.Time) ([]giving.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []giving.Donation
	for _, d := range s.donations {
		if d.TenantID == tenantID && !d.DonatedAt.Before(since) {
			out = append(out, d)
		}
	}
	return out, nil
}

// fakeTx counts transactions and rolls nothing back.
type fakeTx struct {
	runs int
}

func (f *fakeTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.runs++
	return fn(ctx)
}

type fakeAuditor struct {
	mu      sync.Mutex
	entries []*audit.LogEntry
}

func (a *fakeAuditor) Record(_ context.Context, entry *audit.LogEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
}

func (a *fakeAuditor) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.Action
	}
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, evs ...events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evs...)
	return p.err
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// fixture wires every service over one fakeStore.
//
// Seeded users in testTenant: admin (ADMIN), staff (STAFF), moderator (MODERATOR),
// member (MEMBER), pending (REQUESTED), banned (BANNED). root is a super admin without a
// membership and outsider has no membership at all.
type fixture struct {
	store      *fakeStore
	tx         *fakeTx
	auditor    *fakeAuditor
	publisher  *fakePublisher
	access     *AccessService
	membership *MembershipService
	giving     *GivingService
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithCache(t, nil)
}

func newFixtureWithCache(t *testing.T, c cache.Cache) *fixture {
	t.Helper()

	store := newFakeStore()
	store.addMember("admin", authz.StatusApproved, authz.RoleAdmin)
	store.addMember("staff", authz.StatusApproved, authz.RoleStaff)
	store.addMember("moderator", authz.StatusApproved, authz.RoleModerator)
	store.addMember("member", authz.StatusApproved, authz.RoleMember)
	store.addMember("pending", authz.StatusRequested, authz.RoleMember)
	store.addMember("banned", authz.StatusBanned, authz.RoleMember)
	store.addUser("root", true)
	store.addUser("outsider", false)

	f := &fixture{
		store:     store,
		tx:        &fakeTx{},
		auditor:   &fakeAuditor{},
		publisher: &fakePublisher{},
		now:       time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC),
	}

	var tenantCache *cache.TenantCache
	var leaderboards *cache.LeaderboardCache
	if c != nil {
		tenantCache = cache.NewTenantCache(c, time.Minute)
		leaderboards = cache.NewLeaderboardCache(c, time.Minute)
	}

	f.access = NewAccessService(store, store, store, tenantCache, f.auditor, f.publisher)
	f.membership = NewMembershipService(f.access)
	f.giving = NewGivingService(f.access, store, store, store, f.tx, leaderboards, GivingConfig{MaxFailedAttempts: 3})
	f.giving.now = func() time.Time { return f.now }
	return f
}

func int64Ptr(v int64) *int64 { return &v }

func strPtr(s string) *string { return &s }
