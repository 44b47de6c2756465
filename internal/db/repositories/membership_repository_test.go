package repositories

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temple4/community-core/internal/authz"
)

var membershipCols = []string{"id", "tenant_id", "user_id", "status", "roles", "requested_at", "updated_at"}

func newMembershipRepo(t *testing.T) (*MembershipRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewMembershipRepository(db), mock
}

func sampleMembershipRow(id, status string) []driver.Value {
	return []driver.Value{id, "tenant-1", "user-1", status, []byte(`[{"role":"STAFF","is_primary":true}]`), time.Now(), time.Now()}
}

func TestGetLatestMembership_ReturnsNewest(t *testing.T) {
	repo, mock := newMembershipRepo(t)
	mock.ExpectQuery("SELECT .* FROM memberships\\s+WHERE tenant_id = \\$1 AND user_id = \\$2\\s+ORDER BY requested_at DESC").
		WithArgs("tenant-1", "user-1").
		WillReturnRows(sqlmock.NewRows(membershipCols).AddRow(sampleMembershipRow("m-2", "REQUESTED")...))

	m, err := repo.GetLatestMembership(context.Background(), "tenant-1", "user-1")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "m-2", m.ID)
	assert.Equal(t, authz.StatusRequested, m.Status)
	assert.Equal(t, authz.RoleStaff, m.PrimaryRole())
}

func TestGetMembershipByID_NotFound(t *testing.T) {
	repo, mock := newMembershipRepo(t)
	mock.ExpectQuery("SELECT .* FROM memberships WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(membershipCols))

	m, err := repo.GetMembershipByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestCreateMembership(t *testing.T) {
	repo, mock := newMembershipRepo(t)
	mock.ExpectExec("INSERT INTO memberships").
		WithArgs(sqlmock.AnyArg(), "tenant-1", "user-1", "REQUESTED", []byte(`[]`), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	m := &authz.Membership{TenantID: "tenant-1", UserID: "user-1", Status: authz.StatusRequested}
	require.NoError(t, repo.CreateMembership(context.Background(), m))
	assert.NotEmpty(t, m.ID)
	assert.False(t, m.RequestedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMembership_Duplicate(t *testing.T) {
	repo, mock := newMembershipRepo(t)
	mock.ExpectExec("INSERT INTO memberships").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := repo.CreateMembership(context.Background(), &authz.Membership{TenantID: "tenant-1", UserID: "user-1", Status: authz.StatusRequested})
	assert.ErrorIs(t, err, ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMembershipStatus_CompareAndSet(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"row in expected status", 1, true},
		{"lost race", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMembershipRepo(t)
			mock.ExpectExec("UPDATE memberships SET status = \\$3, updated_at = \\$4 WHERE id = \\$1 AND status = \\$2").
				WithArgs("m-1", "REQUESTED", "APPROVED", sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			ok, err := repo.UpdateMembershipStatus(context.Background(), "m-1", authz.StatusRequested, authz.StatusApproved)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestListMemberships_FilterByStatus(t *testing.T) {
	repo, mock := newMembershipRepo(t)
	mock.ExpectQuery("SELECT .* FROM memberships WHERE tenant_id = \\$1 AND status = \\$2 ORDER BY requested_at DESC LIMIT \\$3 OFFSET \\$4").
		WithArgs("tenant-1", "REQUESTED", 50, 0).
		WillReturnRows(sqlmock.NewRows(membershipCols).
			AddRow(sampleMembershipRow("m-1", "REQUESTED")...).
			AddRow(sampleMembershipRow("m-2", "REQUESTED")...))

	status := authz.StatusRequested
	list, err := repo.ListMemberships(context.Background(), "tenant-1", &status, 50, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestUpdateMembershipRoles(t *testing.T) {
	repo, mock := newMembershipRepo(t)
	mock.ExpectExec("UPDATE memberships SET roles").
		WithArgs("m-1", []byte(`[{"role":"MODERATOR","is_primary":true}]`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateMembershipRoles(context.Background(), "m-1", []authz.RoleAssignment{{Role: authz.RoleModerator, IsPrimary: true}})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
