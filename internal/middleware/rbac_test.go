package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/temple4/community-core/internal/auth"
	"github.com/temple4/community-core/internal/authz"
	"github.com/temple4/community-core/internal/db/models"
	"github.com/temple4/community-core/internal/services"
)

// fakeAuthorizer grants the permissions and roles listed per "user/tenant" key.
type fakeAuthorizer struct {
	perms   map[string]map[string]bool
	roles   map[string]map[string]bool
	visible map[string]map[string]bool
	err     error
	calls   []string
}

func (f *fakeAuthorizer) Authorize(_ context.Context, userID, tenantID, permission string) (bool, error) {
	f.calls = append(f.calls, fmt.Sprintf("perm %s/%s %s", userID, tenantID, permission))
	if f.err != nil {
		return false, f.err
	}
	return f.perms[userID+"/"+tenantID][permission], nil
}

func (f *fakeAuthorizer) HasRole(_ context.Context, userID, tenantID, role string) (bool, error) {
	f.calls = append(f.calls, fmt.Sprintf("role %s/%s %s", userID, tenantID, role))
	if f.err != nil {
		return false, f.err
	}
	return f.roles[userID+"/"+tenantID][role], nil
}

func (f *fakeAuthorizer) CanViewContent(_ context.Context, userID *string, tenantID, category string) (bool, error) {
	f.calls = append(f.calls, fmt.Sprintf("view %s/%s %s", *userID, tenantID, category))
	if f.err != nil {
		return false, f.err
	}
	return f.visible[*userID+"/"+tenantID][category], nil
}

// newTenantRouter mounts mid on /tenants/:tenantId after a handler that installs the identity.
func newTenantRouter(identity func(c *gin.Context), mid gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.GET("/tenants/:tenantId", identity, mid, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func asUser(id string, superAdmin bool) func(c *gin.Context) {
	return func(c *gin.Context) {
		c.Set(ContextUserKey, &authz.User{ID: id, IsSuperAdmin: superAdmin})
		c.Set(ContextUserIDKey, id)
		c.Set(ContextAuthMethodKey, AuthMethodJWT)
	}
}

func asKey(scopes interface{}) func(c *gin.Context) {
	return func(c *gin.Context) {
		c.Set(ContextAPIKeyIDKey, "key-1")
		c.Set(ContextAuthMethodKey, AuthMethodAPIKey)
		if scopes != nil {
			c.Set(ContextScopesKey, scopes)
		}
	}
}

func asBoundKey(tenantID string, scopes []string) func(c *gin.Context) {
	return func(c *gin.Context) {
		asKey(scopes)(c)
		key := &models.APIKey{ID: "key-1", Scopes: scopes}
		if tenantID != "" {
			key.TenantID = &tenantID
		}
		c.Set(ContextAPIKeyKey, key)
	}
}

func anonymous(*gin.Context) {}

func serveTenant(r *gin.Engine, tenantID string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tenants/"+tenantID, nil))
	return w
}

// ---------------------------------------------------------------------------
// RequirePermission / RequireRole
// ---------------------------------------------------------------------------

func TestRequirePermission(t *testing.T) {
	a := &fakeAuthorizer{perms: map[string]map[string]bool{
		"staff/t-1": {string(authz.PermCreatePosts): true},
	}}

	tests := []struct {
		name       string
		identity   func(c *gin.Context)
		tenant     string
		err        error
		wantStatus int
	}{
		{"granted", asUser("staff", false), "t-1", nil, http.StatusOK},
		{"not granted", asUser("member", false), "t-1", nil, http.StatusForbidden},
		{"granted in another tenant only", asUser("staff", false), "t-2", nil, http.StatusForbidden},
		{"anonymous", anonymous, "t-1", nil, http.StatusForbidden},
		{"integration key has no user", asKey([]string{"admin"}), "t-1", nil, http.StatusForbidden},
		{"unknown tenant", asUser("staff", false), "t-1", fmt.Errorf("tenant t-1: %w", services.ErrNotFound), http.StatusNotFound},
		{"store failure", asUser("staff", false), "t-1", errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a.err = tt.err
			w := serveTenant(newTenantRouter(tt.identity, RequirePermission(a, authz.PermCreatePosts)), tt.tenant)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestRequirePermission_PassesTenantFromPath(t *testing.T) {
	a := &fakeAuthorizer{}
	serveTenant(newTenantRouter(asUser("u-1", false), RequirePermission(a, authz.PermManageFunds)), "grace-chapel")

	want := "perm u-1/grace-chapel canManageFunds"
	if len(a.calls) != 1 || a.calls[0] != want {
		t.Errorf("calls = %v, want [%s]", a.calls, want)
	}
}

func TestRequireRole(t *testing.T) {
	a := &fakeAuthorizer{roles: map[string]map[string]bool{
		"admin/t-1": {"ADMIN": true},
	}}

	tests := []struct {
		name       string
		user       string
		wantStatus int
	}{
		{"holds role", "admin", http.StatusOK},
		{"lacks role", "member", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveTenant(newTenantRouter(asUser(tt.user, false), RequireRole(a, authz.RoleAdmin)), "t-1")
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRequireContentAccess(t *testing.T) {
	a := &fakeAuthorizer{visible: map[string]map[string]bool{
		"member/t-1": {"donations": true},
	}}
	mid := RequireContentAccess(a, authz.CategoryDonations)

	tests := []struct {
		name       string
		identity   func(c *gin.Context)
		tenant     string
		wantStatus int
	}{
		{"member", asUser("member", false), "t-1", http.StatusOK},
		{"non-member", asUser("outsider", false), "t-1", http.StatusForbidden},
		{"member of another tenant", asUser("member", false), "t-2", http.StatusForbidden},
		{"integration key", asKey([]string{"donations:read"}), "t-1", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveTenant(newTenantRouter(tt.identity, mid), tt.tenant)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}

	if want := "view member/t-1 donations"; len(a.calls) == 0 || a.calls[0] != want {
		t.Errorf("calls = %v, want first %q", a.calls, want)
	}
}

// ---------------------------------------------------------------------------
// Scopes
// ---------------------------------------------------------------------------

func TestRequireScope(t *testing.T) {
	tests := []struct {
		name       string
		scopes     interface{}
		wantStatus int
	}{
		{"no scopes in context", nil, http.StatusForbidden},
		{"wrong type in context", "pledges:charge", http.StatusForbidden},
		{"exact scope", []string{"pledges:charge"}, http.StatusOK},
		{"admin wildcard", []string{"admin"}, http.StatusOK},
		{"unrelated scope", []string{"audit:read"}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveTenant(newTenantRouter(asKey(tt.scopes), RequireScope(auth.ScopePledgesCharge)), "t-1")
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRequireAnyScope(t *testing.T) {
	mid := RequireAnyScope(auth.ScopeDonationsRead, auth.ScopePledgesRead)

	tests := []struct {
		name       string
		scopes     interface{}
		wantStatus int
	}{
		{"none", nil, http.StatusForbidden},
		{"one of them", []string{"donations:read"}, http.StatusOK},
		{"implied by charge", []string{"pledges:charge"}, http.StatusOK},
		{"neither", []string{"audit:read"}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveTenant(newTenantRouter(asKey(tt.scopes), mid), "t-1")
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRequireScopeOrSuperAdmin(t *testing.T) {
	mid := RequireScopeOrSuperAdmin(auth.ScopePledgesCharge)

	tests := []struct {
		name       string
		identity   func(c *gin.Context)
		wantStatus int
	}{
		{"billing key", asKey([]string{"pledges:charge"}), http.StatusOK},
		{"key without scope", asKey([]string{"pledges:read"}), http.StatusForbidden},
		{"super admin", asUser("root", true), http.StatusOK},
		{"ordinary user", asUser("u-1", false), http.StatusForbidden},
		{"anonymous", anonymous, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveTenant(newTenantRouter(tt.identity, mid), "t-1")
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRequireKeyTenant(t *testing.T) {
	readers := []string{"donations:read"}

	tests := []struct {
		name       string
		identity   func(c *gin.Context)
		tenant     string
		wantStatus int
	}{
		{"key bound to the tenant", asBoundKey("tenant-A", readers), "tenant-A", http.StatusOK},
		{"key bound to another tenant", asBoundKey("tenant-A", readers), "tenant-B", http.StatusForbidden},
		{"unbound key", asBoundKey("", readers), "tenant-B", http.StatusOK},
		{"user", asUser("u-1", false), "tenant-B", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveTenant(newTenantRouter(tt.identity, RequireKeyTenant()), tt.tenant)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestReportsChain_RejectsKeyBoundToAnotherTenant(t *testing.T) {
	r := gin.New()
	r.GET("/reports/tenants/:tenantId/leaderboard",
		asBoundKey("tenant-A", []string{"donations:read"}),
		RequireAnyScope(auth.ScopeDonationsRead, auth.ScopePledgesRead),
		RequireKeyTenant(),
		func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"entries": []string{}}) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/reports/tenants/tenant-B/leaderboard", nil))
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/reports/tenants/tenant-A/leaderboard", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for the bound tenant", w.Code)
	}
}
