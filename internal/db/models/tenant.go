package models

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/temple4/community-core/internal/authz"
)

// TenantRow is a row of the tenants table. Permissions and Settings are JSONB columns.
type TenantRow struct {
	ID          string    `db:"id"`
	Slug        string    `db:"slug"`
	Name        string    `db:"name"`
	Permissions []byte    `db:"permissions"`
	Settings    []byte    `db:"settings"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type settingsJSON struct {
	Features          map[string]bool `json:"features"`
	VisitorVisibility map[string]bool `json:"visitor_visibility"`
}

// ToDomain converts the row to an authz.Tenant.
//
// Stored documents may predate a permission or category rename, so unknown role types,
// permission names and categories are dropped (and logged) rather than failing the load.
// A dropped entry can only ever remove a grant.
func (r *TenantRow) ToDomain() (*authz.Tenant, error) {
	t := &authz.Tenant{
		ID:        r.ID,
		Slug:      r.Slug,
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}

	perms, err := decodeMatrix(r.ID, r.Permissions)
	if err != nil {
		return nil, err
	}
	t.Permissions = perms

	settings, err := decodeSettings(r.ID, r.Settings)
	if err != nil {
		return nil, err
	}
	t.Settings = settings

	return t, nil
}

// TenantRowFromDomain converts an authz.Tenant to a row.
func TenantRowFromDomain(t *authz.Tenant) (*TenantRow, error) {
	perms, err := EncodeMatrix(t.Permissions)
	if err != nil {
		return nil, err
	}
	settings, err := json.Marshal(t.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tenant settings: %w", err)
	}
	return &TenantRow{
		ID:          t.ID,
		Slug:        t.Slug,
		Name:        t.Name,
		Permissions: perms,
		Settings:    settings,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}, nil
}

// EncodeMatrix serializes a permission matrix for the permissions column.
func EncodeMatrix(m authz.PermissionMatrix) ([]byte, error) {
	if m == nil {
		m = authz.PermissionMatrix{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode permission matrix: %w", err)
	}
	return b, nil
}

func decodeMatrix(tenantID string, raw []byte) (authz.PermissionMatrix, error) {
	m := make(authz.PermissionMatrix)
	if len(raw) == 0 {
		return m, nil
	}

	var doc map[string]map[string]bool
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode permissions for tenant %s: %w", tenantID, err)
	}

	for rtName, perms := range doc {
		rt, err := authz.ParseRoleType(rtName)
		if err != nil {
			slog.Warn("dropping unknown role type from tenant permissions", "tenant_id", tenantID, "role_type", rtName)
			continue
		}
		for name, allowed := range perms {
			p, err := authz.ParsePermission(name)
			if err != nil {
				slog.Warn("dropping unknown permission from tenant permissions", "tenant_id", tenantID, "permission", name)
				continue
			}
			m.Set(rt, p, allowed)
		}
	}
	return m, nil
}

func decodeSettings(tenantID string, raw []byte) (authz.TenantSettings, error) {
	s := authz.TenantSettings{
		Features:          make(map[authz.ContentCategory]bool),
		VisitorVisibility: make(map[authz.ContentCategory]bool),
	}
	if len(raw) == 0 {
		return s, nil
	}

	var doc settingsJSON
	if err := json.Unmarshal(raw, &doc); err != nil {
		return s, fmt.Errorf("failed to decode settings for tenant %s: %w", tenantID, err)
	}

	copyFlags := func(dst map[authz.ContentCategory]bool, src map[string]bool) {
		for name, on := range src {
			c, err := authz.ParseCategory(name)
			if err != nil {
				slog.Warn("dropping unknown content category from tenant settings", "tenant_id", tenantID, "category", name)
				continue
			}
			dst[c] = on
		}
	}
	copyFlags(s.Features, doc.Features)
	copyFlags(s.VisitorVisibility, doc.VisitorVisibility)
	return s, nil
}
