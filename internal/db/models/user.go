// Package models defines the database row types for the community platform.
// Each row type corresponds to a table and carries db tags for sqlx scanning.
// Rows are converted to and from the domain types in authz and giving at the repository
// boundary with ToDomain and the *FromDomain helpers; domain packages never see row types.
package models

import (
	"time"

	"github.com/temple4/community-core/internal/authz"
)

// UserRow is a row of the users table
type UserRow struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	Name         string    `db:"name"`
	IsSuperAdmin bool      `db:"is_super_admin"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// ToDomain converts the row to an authz.User
func (r *UserRow) ToDomain() *authz.User {
	return &authz.User{
		ID:           r.ID,
		Email:        r.Email,
		Name:         r.Name,
		IsSuperAdmin: r.IsSuperAdmin,
	}
}
