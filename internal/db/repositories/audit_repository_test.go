package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/temple4/community-core/internal/db/models"
)

var auditCols = []string{
	"id", "user_id", "tenant_id", "action",
	"resource_type", "resource_id", "metadata", "ip_address", "created_at",
}

func newAuditRepo(t *testing.T) (*AuditRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewAuditRepository(db), mock
}

func TestCreateAuditLog_WithMetadata(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	log := &models.AuditLog{
		UserID:       strPtr("user-1"),
		TenantID:     strPtr("tenant-1"),
		Action:       "membership.approve",
		ResourceType: strPtr("membership"),
		Metadata:     map[string]interface{}{"from": "REQUESTED"},
	}
	if err := repo.CreateAuditLog(context.Background(), log); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if log.ID == "" {
		t.Error("expected ID to be assigned")
	}
}

func TestListAuditLogs_TenantFilter(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM audit_logs WHERE 1=1 AND tenant_id = \\$1").
		WithArgs("tenant-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT id, .* FROM audit_logs WHERE 1=1 AND tenant_id = \\$1 ORDER BY created_at DESC LIMIT \\$2 OFFSET \\$3").
		WithArgs("tenant-1", 20, 0).
		WillReturnRows(sqlmock.NewRows(auditCols).
			AddRow("log-1", "user-1", "tenant-1", "pledge.advance", "pledge", "pledge-1", []byte(`{"result":"succeeded"}`), "10.0.0.1", time.Now()))

	logs, total, err := repo.ListAuditLogs(context.Background(), AuditFilters{TenantID: strPtr("tenant-1")}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(logs) != 1 {
		t.Fatalf("total = %d, len = %d, want 1/1", total, len(logs))
	}
	if logs[0].Metadata["result"] != "succeeded" {
		t.Errorf("Metadata = %v", logs[0].Metadata)
	}
}
