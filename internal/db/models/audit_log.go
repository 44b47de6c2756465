package models

import "time"

// AuditLog represents an audit log entry for tracking user actions
type AuditLog struct {
	ID           string                 `json:"id"`
	UserID       *string                `json:"user_id,omitempty"` // Nullable for system actions
	TenantID     *string                `json:"tenant_id,omitempty"`
	Action       string                 `json:"action"`                  // "membership.approve", "pledge.advance", "authz.super_admin_override"
	ResourceType *string                `json:"resource_type,omitempty"` // "membership", "pledge", "fund", "tenant"
	ResourceID   *string                `json:"resource_id,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"` // JSONB: additional context
	IPAddress    *string                `json:"ip_address,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}
