// Package repositories implements the database access layer over sqlx.
// Each repository reads and writes one aggregate, converting between row types in models and the
// domain types in authz and giving. Lookups return (nil, nil) when the row does not exist.
// Every query runs on db.Executor(ctx, ...) so it joins a transaction started with db.TxManager.
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

// UserRepository handles user database operations
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, name, is_super_admin, created_at, updated_at`

// CreateUser creates a new user
func (r *UserRepository) CreateUser(ctx context.Context, user *authz.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now()

	query := `
		INSERT INTO users (id, email, name, is_super_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := db.Executor(ctx, r.db).ExecContext(ctx, query, user.ID, user.Email, user.Name, user.IsSuperAdmin, now, now)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by ID
func (r *UserRepository) GetUserByID(ctx context.Context, userID string) (*authz.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
}

// GetUserByEmail retrieves a user by email
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*authz.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*authz.User, error) {
	var row models.UserRow
	err := sqlx.GetContext(ctx, db.Executor(ctx, r.db), &row, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return row.ToDomain(), nil
}
