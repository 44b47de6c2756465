// audit.go provides Gin middleware that records authenticated API calls to the audit log.
// Domain-level events (membership transitions, super admin overrides, donations) are audited
// by the service layer; this middleware covers the HTTP surface.
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/temple4/community-core/internal/audit"
	"github.com/temple4/community-core/internal/config"
)

// AuditSink receives audit entries without blocking the request.
type AuditSink interface {
	RecordAsync(entry *audit.LogEntry)
}

// resource names keyed by route segment; the last matching segment wins so that
// /funds/:fundId/donations is recorded as a donation.
var auditResources = map[string]struct {
	name  string
	param string
}{
	"tenants":     {"tenant", "tenantId"},
	"permissions": {"permissions", ""},
	"memberships": {"membership", "membershipId"},
	"roles":       {"membership_roles", ""},
	"funds":       {"fund", "fundId"},
	"donations":   {"donation", ""},
	"pledges":     {"pledge", "pledgeId"},
}

// AuditMiddleware records API calls after the handler has run. With a nil cfg only successful
// writes are recorded.
func AuditMiddleware(sink AuditSink, cfg *config.AuditConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if sink == nil || c.Request.Method == http.MethodOptions {
			return
		}
		if cfg != nil && !cfg.Enabled {
			return
		}

		isReadOp := c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead
		isFailed := c.Writer.Status() >= 400

		logReadOps := cfg != nil && cfg.LogReadOperations
		logFailed := cfg != nil && cfg.LogFailedRequests
		if isReadOp && !logReadOps {
			return
		}
		if isFailed && !logFailed {
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		entry := &audit.LogEntry{
			Timestamp:  time.Now().UTC(),
			Action:     c.Request.Method + " " + route,
			UserID:     CurrentUserID(c),
			TenantID:   c.Param(TenantParam),
			IPAddress:  c.ClientIP(),
			AuthMethod: c.GetString(ContextAuthMethodKey),
			StatusCode: c.Writer.Status(),
		}
		entry.ResourceType, entry.ResourceID = auditResource(c, route)

		metadata := map[string]interface{}{}
		if id := RequestID(c); id != "" {
			metadata["request_id"] = id
		}
		if keyID := c.GetString(ContextAPIKeyIDKey); keyID != "" {
			metadata["api_key_id"] = keyID
		}
		if len(metadata) > 0 {
			entry.Metadata = metadata
		}

		sink.RecordAsync(entry)
	}
}

func auditResource(c *gin.Context, route string) (resourceType, resourceID string) {
	for _, segment := range strings.Split(route, "/") {
		r, ok := auditResources[segment]
		if !ok {
			continue
		}
		resourceType = r.name
		if r.param != "" {
			resourceID = c.Param(r.param)
		}
	}
	return resourceType, resourceID
}
