// Package middleware provides Gin HTTP middleware for authentication, authorization,
// rate limiting, security headers, and audit logging.
//
// Middleware ordering matters and is enforced in internal/api/router.go:
//
//	Recovery → RequestID → Metrics → Logger → CORS → Security → RateLimit → Auth → RBAC → Audit → Handler
//
// Security headers run first so they appear on all responses including errors.
// Auth populates the caller identity; RBAC asks the access service about that identity
// within the tenant named by the :tenantId path parameter. Audit logging runs last so only
// requests that passed authorization are recorded as successful actions.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/temple4/community-core/internal/auth"
	"github.com/temple4/community-core/internal/authz"
	"github.com/temple4/community-core/internal/config"
	"github.com/temple4/community-core/internal/db/models"
	"github.com/temple4/community-core/internal/safego"
)

// Context keys set by the authenticator
const (
	ContextUserKey       = "user"
	ContextUserIDKey     = "user_id"
	ContextAuthMethodKey = "auth_method"
	ContextAPIKeyKey     = "api_key"
	ContextAPIKeyIDKey   = "api_key_id"
	ContextScopesKey     = "scopes"
)

// Auth methods recorded under ContextAuthMethodKey
const (
	AuthMethodJWT    = "jwt"
	AuthMethodAPIKey = "api_key"
)

// TokenValidator verifies user bearer tokens.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// UserLoader loads the user named by a token.
type UserLoader interface {
	GetUserByID(ctx context.Context, userID string) (*authz.User, error)
}

// APIKeyStore looks up integration keys.
type APIKeyStore interface {
	GetAPIKeysByPrefix(ctx context.Context, keyPrefix string) ([]*models.APIKey, error)
	UpdateLastUsed(ctx context.Context, keyID string) error
}

// Authenticator resolves the caller of a request from its bearer credential.
type Authenticator struct {
	tokens     TokenValidator
	users      UserLoader
	keys       APIKeyStore
	keysOn     bool
	keyPrefix  string
	now        func() time.Time
	touchAsync bool
}

// NewAuthenticator creates an Authenticator. keys may be nil when integration keys are disabled.
func NewAuthenticator(tokens TokenValidator, users UserLoader, keys APIKeyStore, cfg config.APIKeyConfig) *Authenticator {
	return &Authenticator{
		tokens:     tokens,
		users:      users,
		keys:       keys,
		keysOn:     cfg.Enabled && keys != nil,
		keyPrefix:  cfg.Prefix,
		now:        time.Now,
		touchAsync: true,
	}
}

type authFailure struct {
	status  int
	message string
}

func (a *Authenticator) authenticate(c *gin.Context) *authFailure {
	credential, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
	if err != nil {
		return &authFailure{http.StatusUnauthorized, err.Error()}
	}

	if a.keysOn && auth.IsAPIKey(credential, a.keyPrefix) {
		return a.authenticateAPIKey(c, credential)
	}

	claims, err := a.tokens.Validate(credential)
	if err != nil {
		return &authFailure{http.StatusUnauthorized, "Invalid credentials"}
	}
	user, err := a.users.GetUserByID(c.Request.Context(), claims.UserID)
	if err != nil {
		return &authFailure{http.StatusInternalServerError, "Failed to load user"}
	}
	if user == nil {
		return &authFailure{http.StatusUnauthorized, "User not found"}
	}

	c.Set(ContextUserKey, user)
	c.Set(ContextUserIDKey, user.ID)
	c.Set(ContextAuthMethodKey, AuthMethodJWT)
	return nil
}

// authenticateAPIKey narrows candidates by the plaintext prefix, then runs bcrypt on each.
func (a *Authenticator) authenticateAPIKey(c *gin.Context, credential string) *authFailure {
	candidates, err := a.keys.GetAPIKeysByPrefix(c.Request.Context(), auth.DisplayPrefix(credential))
	if err != nil {
		return &authFailure{http.StatusInternalServerError, "Authentication failed"}
	}

	var key *models.APIKey
	for _, k := range candidates {
		if auth.ValidateAPIKey(credential, k.KeyHash) {
			key = k
			break
		}
	}
	if key == nil {
		return &authFailure{http.StatusUnauthorized, "Invalid credentials"}
	}
	if key.IsExpired(a.now()) {
		return &authFailure{http.StatusUnauthorized, "API key expired"}
	}

	// last-used tracking is best effort
	touch := func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.keys.UpdateLastUsed(tctx, key.ID)
	}
	if a.touchAsync {
		safego.Go("api-key-last-used", touch)
	} else {
		touch()
	}

	c.Set(ContextAPIKeyKey, key)
	c.Set(ContextAPIKeyIDKey, key.ID)
	c.Set(ContextAuthMethodKey, AuthMethodAPIKey)
	c.Set(ContextScopesKey, key.Scopes)
	return nil
}

// Required rejects requests without valid credentials.
func (a *Authenticator) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		if f := a.authenticate(c); f != nil {
			c.AbortWithStatusJSON(f.status, gin.H{"error": f.message})
			return
		}
		c.Next()
	}
}

// Optional authenticates when credentials are present and valid, and otherwise lets the
// request through anonymously.
func (a *Authenticator) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") != "" {
			_ = a.authenticate(c)
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user, if any.
func CurrentUser(c *gin.Context) (*authz.User, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*authz.User)
	return u, ok && u != nil
}

// CurrentUserID returns the authenticated user's ID, or "" for anonymous and key callers.
func CurrentUserID(c *gin.Context) string {
	return c.GetString(ContextUserIDKey)
}

// KeyTenantID returns the tenant the calling integration key is bound to. It is "" for users
// and for keys that may act on any tenant.
func KeyTenantID(c *gin.Context) string {
	v, ok := c.Get(ContextAPIKeyKey)
	if !ok {
		return ""
	}
	key, ok := v.(*models.APIKey)
	if !ok || key == nil || key.TenantID == nil {
		return ""
	}
	return *key.TenantID
}
