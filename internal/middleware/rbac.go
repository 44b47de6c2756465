// Package middleware (rbac.go) implements authorization middleware.
//
// User permissions are evaluated per request against the tenant's current permission matrix
// rather than being embedded in the JWT, so an edited matrix or a ban takes effect on the next
// request. Integration keys carry static scopes instead.

package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/temple4/community-core/internal/auth"
	"github.com/temple4/community-core/internal/authz"
	"github.com/temple4/community-core/internal/services"
)

// TenantParam is the route parameter naming the tenant a request acts on.
const TenantParam = "tenantId"

// Authorizer answers permission, role and visibility questions for a user within a tenant.
type Authorizer interface {
	Authorize(ctx context.Context, userID, tenantID, permission string) (bool, error)
	HasRole(ctx context.Context, userID, tenantID, role string) (bool, error)
	CanViewContent(ctx context.Context, userID *string, tenantID, category string) (bool, error)
}

// RequirePermission lets the request through when the authenticated user holds perm in the
// tenant named by the :tenantId path parameter.
func RequirePermission(a Authorizer, perm authz.Permission) gin.HandlerFunc {
	return tenantCheck("Missing required permission: "+string(perm), func(ctx context.Context, userID, tenantID string) (bool, error) {
		return a.Authorize(ctx, userID, tenantID, string(perm))
	})
}

// RequireRole lets the request through when the authenticated user holds role in the tenant
// named by the :tenantId path parameter.
func RequireRole(a Authorizer, role authz.TenantRole) gin.HandlerFunc {
	return tenantCheck("Missing required role: "+string(role), func(ctx context.Context, userID, tenantID string) (bool, error) {
		return a.HasRole(ctx, userID, tenantID, string(role))
	})
}

// RequireContentAccess lets the request through when content of category is visible to the
// authenticated user in the tenant named by the :tenantId path parameter.
func RequireContentAccess(a Authorizer, category authz.ContentCategory) gin.HandlerFunc {
	return tenantCheck("Content not available: "+string(category), func(ctx context.Context, userID, tenantID string) (bool, error) {
		return a.CanViewContent(ctx, &userID, tenantID, string(category))
	})
}

func tenantCheck(denied string, check func(ctx context.Context, userID, tenantID string) (bool, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := CurrentUserID(c)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "User not authenticated"})
			return
		}
		tenantID := c.Param(TenantParam)

		ok, err := check(c.Request.Context(), userID, tenantID)
		switch {
		case errors.Is(err, services.ErrNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
			return
		case err != nil:
			slog.Error("authorization check failed", "tenant_id", tenantID, "user_id", userID, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to check permissions"})
			return
		case !ok:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": denied})
			return
		}
		c.Next()
	}
}

func keyScopes(c *gin.Context) ([]string, bool) {
	v, exists := c.Get(ContextScopesKey)
	if !exists {
		return nil, false
	}
	scopes, ok := v.([]string)
	return scopes, ok
}

// RequireScope checks that the authenticated integration key carries scope
func RequireScope(scope auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		userScopes, ok := keyScopes(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			return
		}
		if !auth.HasScope(userScopes, scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Missing required scope",
				"details": "Required scope: " + string(scope),
			})
			return
		}
		c.Next()
	}
}

// RequireAnyScope checks that the authenticated integration key carries at least one of scopes
func RequireAnyScope(scopes ...auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		userScopes, ok := keyScopes(c)
		if !ok || !auth.HasAnyScope(userScopes, scopes) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Missing required scope"})
			return
		}
		c.Next()
	}
}

// RequireKeyTenant rejects integration keys bound to a tenant other than the one named by the
// :tenantId path parameter. Users and unbound keys pass.
func RequireKeyTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		if bound := KeyTenantID(c); bound != "" && bound != c.Param(TenantParam) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Integration key is not valid for this tenant"})
			return
		}
		c.Next()
	}
}

// RequireScopeOrSuperAdmin admits integration keys carrying scope and users flagged as
// super admin. It guards platform-level routes that are not scoped to a tenant.
func RequireScopeOrSuperAdmin(scope auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextAuthMethodKey) == AuthMethodAPIKey {
			if userScopes, ok := keyScopes(c); ok && auth.HasScope(userScopes, scope) {
				c.Next()
				return
			}
		} else if user, ok := CurrentUser(c); ok && user.IsSuperAdmin {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   "Missing required scope",
			"details": "Required scope: " + string(scope),
		})
	}
}
