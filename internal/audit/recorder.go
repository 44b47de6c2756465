package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/temple4/community-core/internal/db/models"
	"github.com/temple4/community-core/internal/safego"
)

// Action names recorded by the service layer
const (
	ActionSuperAdminOverride    = "authz.super_admin_override"
	ActionMembershipTransition  = "membership.transition"
	ActionMembershipRequested   = "membership.request"
	ActionRoleAssigned          = "membership.assign_role"
	ActionPermissionsUpdated    = "tenant.update_permissions"
	ActionPledgeAdvanced        = "pledge.advance"
	ActionPledgeStatusChanged   = "pledge.status_change"
	ActionDonationRecorded      = "donation.record"
	ActionIntegrationKeyCreated = "api_key.create"
	ActionIntegrationKeyRevoked = "api_key.revoke"
)

// Store persists audit rows
type Store interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Recorder persists audit entries and forwards them to a Shipper. Either may be nil.
type Recorder struct {
	store   Store
	shipper Shipper
	timeout time.Duration
}

// NewRecorder creates a new Recorder
func NewRecorder(store Store, shipper Shipper) *Recorder {
	return &Recorder{store: store, shipper: shipper, timeout: 5 * time.Second}
}

// Record writes entry synchronously. Failures are logged and never returned, so a
// broken audit sink cannot fail the audited operation.
func (r *Recorder) Record(ctx context.Context, entry *LogEntry) {
	if r == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	if r.store != nil {
		if err := r.store.CreateAuditLog(ctx, toModel(entry)); err != nil {
			slog.Error("failed to create audit log in database", "action", entry.Action, "error", err)
		}
	}
	if r.shipper != nil {
		if err := r.shipper.Ship(ctx, entry); err != nil {
			slog.Error("failed to ship audit log", "action", entry.Action, "error", err)
		}
	}
}

// RecordAsync records entry on a background goroutine with its own timeout, detached from
// the request context.
func (r *Recorder) RecordAsync(entry *LogEntry) {
	if r == nil {
		return
	}
	safego.Go("audit-record", func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		r.Record(ctx, entry)
	})
}

func toModel(e *LogEntry) *models.AuditLog {
	log := &models.AuditLog{
		Action:    e.Action,
		UserID:    optional(e.UserID),
		TenantID:  optional(e.TenantID),
		IPAddress: optional(e.IPAddress),
		CreatedAt: e.Timestamp,
	}
	log.ResourceType = optional(e.ResourceType)
	log.ResourceID = optional(e.ResourceID)

	metadata := make(map[string]interface{}, len(e.Metadata)+2)
	for k, v := range e.Metadata {
		metadata[k] = v
	}
	if e.AuthMethod != "" {
		metadata["auth_method"] = e.AuthMethod
	}
	if e.StatusCode != 0 {
		metadata["status_code"] = e.StatusCode
	}
	if len(metadata) > 0 {
		log.Metadata = metadata
	}
	return log
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
