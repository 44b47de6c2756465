// Package auth - scopes.go defines the scopes an integration key can carry.
package auth

import "fmt"

// Scope is a capability granted to an integration key.
type Scope string

const (
	// ScopePledgesCharge lets the billing gateway report charge outcomes.
	ScopePledgesCharge Scope = "pledges:charge"
	// ScopePledgesRead lets reporting integrations list due pledges.
	ScopePledgesRead Scope = "pledges:read"
	// ScopeDonationsRead lets reporting integrations read leaderboards and fund progress.
	ScopeDonationsRead Scope = "donations:read"
	// ScopeAuditRead grants read access to audit logs.
	ScopeAuditRead Scope = "audit:read"

	// ScopeAdmin is a wildcard granting every scope.
	ScopeAdmin Scope = "admin"
)

// AllScopes returns all valid scopes
func AllScopes() []Scope {
	return []Scope{ScopePledgesCharge, ScopePledgesRead, ScopeDonationsRead, ScopeAuditRead, ScopeAdmin}
}

// ValidateScopes checks that every scope is known
func ValidateScopes(scopes []string) error {
	valid := make(map[string]bool, len(AllScopes()))
	for _, s := range AllScopes() {
		valid[string(s)] = true
	}
	for _, s := range scopes {
		if !valid[s] {
			return fmt.Errorf("invalid scope: %q", s)
		}
	}
	return nil
}

// HasScope checks whether userScopes grant required. admin grants everything and
// pledges:charge implies pledges:read.
func HasScope(userScopes []string, required Scope) bool {
	for _, s := range userScopes {
		switch {
		case s == string(required), s == string(ScopeAdmin):
			return true
		case required == ScopePledgesRead && s == string(ScopePledgesCharge):
			return true
		}
	}
	return false
}

// HasAnyScope checks if userScopes grant at least one of required
func HasAnyScope(userScopes []string, required []Scope) bool {
	for _, r := range required {
		if HasScope(userScopes, r) {
			return true
		}
	}
	return false
}

// DefaultBillingScopes are the scopes given to a billing gateway key
func DefaultBillingScopes() []string {
	return []string{string(ScopePledgesCharge)}
}
