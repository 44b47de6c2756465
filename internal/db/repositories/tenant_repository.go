package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/temple4/community-core/internal/authz"
	"github.com/temple4/community-core/internal/db"
	"github.com/temple4/community-core/internal/db/models"
)

// TenantRepository handles tenant database operations
type TenantRepository struct {
	db *sqlx.DB
}

// NewTenantRepository creates a new TenantRepository
func NewTenantRepository(db *sqlx.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

const tenantColumns = `id, slug, name, permissions, settings, created_at, updated_at`

// CreateTenant creates a tenant. A nil permission matrix or empty settings are replaced by the defaults.
func (r *TenantRepository) CreateTenant(ctx context.Context, tenant *authz.Tenant) error {
	if tenant.ID == "" {
		tenant.ID = uuid.New().String()
	}
	if tenant.Permissions == nil {
		tenant.Permissions = authz.DefaultMatrix()
	}
	if tenant.Settings.Features == nil {
		tenant.Settings = authz.DefaultSettings()
	}
	tenant.CreatedAt = time.Now()
	tenant.UpdatedAt = tenant.CreatedAt

	row, err := models.TenantRowFromDomain(tenant)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tenants (id, slug, name, permissions, settings, created_at, updated_at)
		VALUES (:id, :slug, :name, :permissions, :settings, :created_at, :updated_at)
	`
	if _, err := sqlx.NamedExecContext(ctx, db.Executor(ctx, r.db), query, row); err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// GetTenantByID retrieves a tenant by ID
func (r *TenantRepository) GetTenantByID(ctx context.Context, id string) (*authz.Tenant, error) {
	return r.getOne(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
}

// GetTenantBySlug retrieves a tenant by its URL slug
func (r *TenantRepository) GetTenantBySlug(ctx context.Context, slug string) (*authz.Tenant, error) {
	return r.getOne(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, slug)
}

func (r *TenantRepository) getOne(ctx context.Context, query string, arg any) (*authz.Tenant, error) {
	var row models.TenantRow
	err := sqlx.GetContext(ctx, db.Executor(ctx, r.db), &row, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return row.ToDomain()
}

// UpdateTenantPermissions replaces the tenant's permission matrix
func (r *TenantRepository) UpdateTenantPermissions(ctx context.Context, id string, matrix authz.PermissionMatrix) error {
	perms, err := models.EncodeMatrix(matrix)
	if err != nil {
		return err
	}

	query := `UPDATE tenants SET permissions = $2, updated_at = $3 WHERE id = $1`
	if _, err := db.Executor(ctx, r.db).ExecContext(ctx, query, id, perms, time.Now()); err != nil {
		return fmt.Errorf("failed to update tenant permissions: %w", err)
	}
	return nil
}
