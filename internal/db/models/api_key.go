package models

import "time"

// APIKey represents an integration key used by external systems (the billing gateway) to call
// the API. Only the bcrypt hash of the key is stored.
type APIKey struct {
	ID         string
	TenantID   *string    // nil for platform-wide keys
	Name       string     // Friendly name (e.g., "Billing gateway")
	KeyHash    string     // Bcrypt hash of the full key
	KeyPrefix  string     // First chars for lookup and display (e.g., "tck_ab12cd34")
	Scopes     []string   // JSONB array: ["pledges:charge"]
	ExpiresAt  *time.Time // Optional expiration
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// IsExpired reports whether the key has an expiry in the past
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// HasScope reports whether the key carries scope
func (k *APIKey) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
