package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/temple4/community-core/internal/authz"
	"github.com/temple4/community-core/internal/giving"
	"github.com/temple4/community-core/internal/telemetry"
)

// LeaderboardCache caches computed leaderboards per tenant. Entries are keyed by a
// per-tenant generation so a single write invalidates every timeframe and size at once.
type LeaderboardCache struct {
	cache Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewLeaderboardCache creates a LeaderboardCache. A non-positive ttl disables caching.
func NewLeaderboardCache(c Cache, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{cache: c, ttl: ttl, now: time.Now}
}

func generationKey(tenantID string) string {
	return fmt.Sprintf("leaderboard:%s:gen", tenantID)
}

func (l *LeaderboardCache) key(ctx context.Context, tenantID string, tf giving.Timeframe, windowStart time.Time, topN int) (string, error) {
	gen, ok, err := l.cache.Get(ctx, generationKey(tenantID))
	if err != nil {
		return "", err
	}
	if !ok {
		gen = []byte("0")
	}
	return fmt.Sprintf("leaderboard:%s:%s:%s:%d:%d", tenantID, gen, tf, windowStart.Unix(), topN), nil
}

// Get returns a cached leaderboard. Errors are logged and reported as a miss.
func (l *LeaderboardCache) Get(ctx context.Context, tenantID string, tf giving.Timeframe, windowStart time.Time, topN int) ([]giving.LeaderboardEntry, bool) {
	if l == nil || l.ttl <= 0 {
		return nil, false
	}

	key, err := l.key(ctx, tenantID, tf, windowStart, topN)
	if err != nil {
		slog.Warn("leaderboard cache unavailable", "tenant_id", tenantID, "error", err)
		telemetry.LeaderboardCacheMissesTotal.Inc()
		return nil, false
	}

	data, ok, err := l.cache.Get(ctx, key)
	if err != nil || !ok {
		if err != nil {
			slog.Warn("leaderboard cache read failed", "tenant_id", tenantID, "error", err)
		}
		telemetry.LeaderboardCacheMissesTotal.Inc()
		return nil, false
	}

	var entries []giving.LeaderboardEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		slog.Warn("discarding corrupt leaderboard cache entry", "key", key, "error", err)
		telemetry.LeaderboardCacheMissesTotal.Inc()
		return nil, false
	}
	telemetry.LeaderboardCacheHitsTotal.Inc()
	return entries, true
}

// Set stores a computed leaderboard.
func (l *LeaderboardCache) Set(ctx context.Context, tenantID string, tf giving.Timeframe, windowStart time.Time, topN int, entries []giving.LeaderboardEntry) {
	if l == nil || l.ttl <= 0 {
		return
	}

	key, err := l.key(ctx, tenantID, tf, windowStart, topN)
	if err != nil {
		slog.Warn("leaderboard cache unavailable", "tenant_id", tenantID, "error", err)
		return
	}
	if entries == nil {
		entries = []giving.LeaderboardEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		slog.Warn("failed to encode leaderboard for cache", "tenant_id", tenantID, "error", err)
		return
	}
	if err := l.cache.Set(ctx, key, data, l.ttl); err != nil {
		slog.Warn("leaderboard cache write failed", "tenant_id", tenantID, "error", err)
	}
}

// Invalidate drops every cached leaderboard of the tenant by bumping its generation.
func (l *LeaderboardCache) Invalidate(ctx context.Context, tenantID string) {
	if l == nil || l.ttl <= 0 {
		return
	}
	gen := strconv.FormatInt(l.now().UnixNano(), 10)
	if err := l.cache.Set(ctx, generationKey(tenantID), []byte(gen), 0); err != nil {
		slog.Warn("leaderboard cache invalidation failed", "tenant_id", tenantID, "error", err)
	}
}

// TenantCache caches tenants (permission matrix and settings) read on every authorization check.
type TenantCache struct {
	cache Cache
	ttl   time.Duration
}

// NewTenantCache creates a TenantCache. A non-positive ttl disables caching.
func NewTenantCache(c Cache, ttl time.Duration) *TenantCache {
	return &TenantCache{cache: c, ttl: ttl}
}

func tenantKey(tenantID string) string {
	return "tenant:" + tenantID
}

// Get returns the cached tenant, if any.
func (t *TenantCache) Get(ctx context.Context, tenantID string) (*authz.Tenant, bool) {
	if t == nil || t.ttl <= 0 {
		return nil, false
	}
	data, ok, err := t.cache.Get(ctx, tenantKey(tenantID))
	if err != nil {
		slog.Warn("tenant cache read failed", "tenant_id", tenantID, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var tenant authz.Tenant
	if err := json.Unmarshal(data, &tenant); err != nil {
		slog.Warn("discarding corrupt tenant cache entry", "tenant_id", tenantID, "error", err)
		return nil, false
	}
	return &tenant, true
}

// Set stores tenant.
func (t *TenantCache) Set(ctx context.Context, tenant *authz.Tenant) {
	if t == nil || t.ttl <= 0 || tenant == nil {
		return
	}
	data, err := json.Marshal(tenant)
	if err != nil {
		slog.Warn("failed to encode tenant for cache", "tenant_id", tenant.ID, "error", err)
		return
	}
	if err := t.cache.Set(ctx, tenantKey(tenant.ID), data, t.ttl); err != nil {
		slog.Warn("tenant cache write failed", "tenant_id", tenant.ID, "error", err)
	}
}

// Invalidate removes the cached tenant.
func (t *TenantCache) Invalidate(ctx context.Context, tenantID string) {
	if t == nil || t.ttl <= 0 {
		return
	}
	if err := t.cache.Delete(ctx, tenantKey(tenantID)); err != nil {
		slog.Warn("tenant cache invalidation failed", "tenant_id", tenantID, "error", err)
	}
}
