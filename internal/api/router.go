// Package api wires together all HTTP routes for the community-core backend.
//
// Route grouping:
//   - /health, /ready and /version are public.
//   - /api/v1/tenants/:tenantId/... is the member-facing surface. Every route authenticates the
//     caller; tenant administration routes additionally pass RequireRole or RequirePermission,
//     which evaluate the tenant's current permission matrix on each request.
//   - /api/v1/pledges/... and /api/v1/reports/... are called by integrations (payment gateway,
//     reporting) with an integration key carrying the matching scope.
//   - /api/v1/admin/... is reserved for platform operators (super admins or admin-scoped keys).
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/temple4/community-core/internal/api/admin"
	"github.com/temple4/community-core/internal/api/billing"
	"github.com/temple4/community-core/internal/api/tenants"
	"github.com/temple4/community-core/internal/audit"
	"github.com/temple4/community-core/internal/auth"
	"github.com/temple4/community-core/internal/authz"
	"github.com/temple4/community-core/internal/cache"
	"github.com/temple4/community-core/internal/config"
	"github.com/temple4/community-core/internal/db"
	"github.com/temple4/community-core/internal/db/repositories"
	"github.com/temple4/community-core/internal/events"
	"github.com/temple4/community-core/internal/jobs"
	"github.com/temple4/community-core/internal/middleware"
	"github.com/temple4/community-core/internal/safego"
	"github.com/temple4/community-core/internal/services"
)

// Version is reported by GET /version. Overridden at build time with -ldflags.
var Version = "0.1.0"

// tenantCacheTTL bounds how stale a cached tenant (matrix and settings) may be on another replica.
const tenantCacheTTL = time.Minute

// Pinger is a dependency checked by the readiness endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping implements Pinger
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// GivingAPI is the giving surface used by both member and integration routes.
type GivingAPI interface {
	tenants.GivingService
	billing.PledgeService
}

// Routes holds everything the HTTP layer needs. NewRouter fills it from real dependencies;
// tests build it from fakes.
type Routes struct {
	DB          Pinger
	Cache       Pinger
	Auth        *middleware.Authenticator
	Authorizer  middleware.Authorizer
	Limiter     middleware.Limiter
	AuditSink   middleware.AuditSink
	Access      tenants.AccessService
	Memberships tenants.MembershipService
	Giving      GivingAPI
	AuditLogs   admin.AuditLogStore
}

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	chargeJob   *jobs.PledgeChargeJob
	reminder    *jobs.PledgeReminderNotifier
	rateLimiter *middleware.RateLimiter
	cancel      context.CancelFunc
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.chargeJob != nil {
		bg.chargeJob.Stop()
	}
	if bg.reminder != nil {
		bg.reminder.Stop()
	}
	if bg.rateLimiter != nil {
		bg.rateLimiter.Stop()
	}
	if bg.cancel != nil {
		bg.cancel()
	}
	slog.Info("all background services stopped")
}

// NewRouter builds repositories, services and middleware on top of the shared infrastructure,
// starts the background jobs and returns the configured Gin engine.
func NewRouter(cfg *config.Config, database *sqlx.DB, store cache.Cache, publisher events.Publisher, recorder *audit.Recorder) (*gin.Engine, *BackgroundServices, error) {
	loc, err := cfg.Giving.Location()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid giving timezone: %w", err)
	}

	tokens, err := auth.NewTokenManager(cfg.Auth.JWT)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize token manager: %w", err)
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(database)
	tenantRepo := repositories.NewTenantRepository(database)
	membershipRepo := repositories.NewMembershipRepository(database)
	fundRepo := repositories.NewFundRepository(database)
	pledgeRepo := repositories.NewPledgeRepository(database)
	donationRepo := repositories.NewDonationRepository(database)
	apiKeyRepo := repositories.NewAPIKeyRepository(database)
	auditRepo := repositories.NewAuditRepository(database)

	// Services
	accessSvc := services.NewAccessService(userRepo, tenantRepo, membershipRepo,
		cache.NewTenantCache(store, tenantCacheTTL), recorder, publisher)
	membershipSvc := services.NewMembershipService(accessSvc)
	givingSvc := services.NewGivingService(accessSvc, fundRepo, pledgeRepo, donationRepo,
		db.NewTxManager(database),
		cache.NewLeaderboardCache(store, cfg.Giving.LeaderboardCacheTTL),
		services.GivingConfig{
			MaxFailedAttempts: cfg.Giving.MaxFailedAttempts,
			Location:          loc,
			LeaderboardTopN:   cfg.Giving.LeaderboardTopN,
		})

	bg := &BackgroundServices{}

	// Rate limiting: shared GCRA budget in Redis when available, per-process otherwise
	var limiter middleware.Limiter
	if cfg.Security.RateLimiting.Enabled {
		rlCfg := middleware.NewRateLimitConfig(cfg.Security.RateLimiting)
		if rc, ok := store.(*cache.RedisCache); ok {
			limiter = middleware.NewRedisRateLimiter(rc.Client(), rlCfg)
			slog.Info("rate limiting backed by redis", "rpm", rlCfg.RequestsPerMinute, "burst", rlCfg.BurstSize)
		} else {
			rl := middleware.NewRateLimiter(rlCfg)
			bg.rateLimiter = rl
			limiter = rl
			slog.Info("rate limiting in memory", "rpm", rlCfg.RequestsPerMinute, "burst", rlCfg.BurstSize)
		}
	}

	var keys middleware.APIKeyStore
	if cfg.Auth.APIKeys.Enabled {
		keys = apiKeyRepo
	}

	router := newEngine(cfg, Routes{
		DB:          PingFunc(database.PingContext),
		Cache:       store,
		Auth:        middleware.NewAuthenticator(tokens, userRepo, keys, cfg.Auth.APIKeys),
		Authorizer:  accessSvc,
		Limiter:     limiter,
		AuditSink:   recorder,
		Access:      accessSvc,
		Memberships: membershipSvc,
		Giving:      givingSvc,
		AuditLogs:   auditRepo,
	})

	// Background jobs
	ctx, cancel := context.WithCancel(context.Background())
	bg.cancel = cancel

	if cfg.Jobs.PledgeCharge.Enabled {
		gateway, err := jobs.NewHTTPChargeGateway(cfg.Billing)
		if err != nil {
			slog.Warn("pledge charge job not started", "error", err)
		} else {
			bg.chargeJob = jobs.NewPledgeChargeJob(givingSvc, gateway, cfg.Jobs.PledgeCharge)
			bg.chargeJob.Start(ctx)
		}
	}

	if cfg.Jobs.PledgeReminder.Enabled {
		bg.reminder = jobs.NewPledgeReminderNotifier(pledgeRepo, jobs.NewSMTPMailer(cfg.Notifications.SMTP), cfg.Notifications, cfg.Jobs.PledgeReminder)
		safego.Go("pledge-reminder-notifier", func() { bg.reminder.Start(ctx) })
	}

	return router, bg, nil
}

// newEngine registers middleware and routes.
//
// Middleware order: Recovery, RequestID, Metrics, Logger, CORS, SecurityHeaders, RateLimit.
// Route groups then add Auth, RequireKeyTenant and Audit; routes add RequirePermission,
// RequireRole or RequireContentAccess.
func newEngine(cfg *config.Config, r Routes) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.SecurityHeadersFromConfig(cfg.Security.TLS)))
	if r.Limiter != nil {
		router.Use(middleware.RateLimitMiddleware(r.Limiter))
	}

	router.GET("/health", healthCheckHandler(r.DB))
	router.GET("/ready", readinessHandler(r.DB, r.Cache))
	router.GET("/version", versionHandler())

	audited := middleware.AuditMiddleware(r.AuditSink, &cfg.Audit)

	accessHandlers := tenants.NewAccessHandlers(r.Access)
	membershipHandlers := tenants.NewMembershipHandlers(r.Memberships)
	givingHandlers := tenants.NewGivingHandlers(r.Giving)
	billingHandlers := billing.NewHandlers(r.Giving)
	auditHandlers := admin.NewAuditHandlers(r.AuditLogs)

	apiV1 := router.Group("/api/v1")
	{
		// Visibility is answered for anonymous visitors too
		apiV1.GET("/tenants/:tenantId/content/:category/visible", r.Auth.Optional(), accessHandlers.ContentVisibleHandler())

		tenant := apiV1.Group("/tenants/:tenantId")
		tenant.Use(r.Auth.Required())
		tenant.Use(middleware.RequireKeyTenant())
		tenant.Use(audited)
		{
			tenant.GET("/authorize", accessHandlers.AuthorizeHandler())
			tenant.GET("/roles/:role", accessHandlers.HasRoleHandler())

			adminOnly := middleware.RequireRole(r.Authorizer, authz.RoleAdmin)
			tenant.GET("/permissions", adminOnly, accessHandlers.GetPermissionsHandler())
			tenant.PUT("/permissions", adminOnly, accessHandlers.UpdatePermissionsHandler())

			tenant.POST("/memberships", membershipHandlers.RequestMembershipHandler())
			tenant.GET("/memberships", middleware.RequirePermission(r.Authorizer, authz.PermApproveMembership), membershipHandlers.ListMembershipsHandler())
			tenant.POST("/memberships/:membershipId/roles", middleware.RequirePermission(r.Authorizer, authz.PermAssignRoles), membershipHandlers.AssignRolesHandler())
			tenant.POST("/memberships/:membershipId/:action", membershipHandlers.TransitionHandler())

			donationsVisible := middleware.RequireContentAccess(r.Authorizer, authz.CategoryDonations)
			tenant.GET("/funds/:fundId/progress", donationsVisible, givingHandlers.FundProgressHandler())
			tenant.POST("/funds/:fundId/donations", middleware.RequirePermission(r.Authorizer, authz.PermManageDonations), givingHandlers.RecordDonationHandler())
			tenant.GET("/leaderboard", donationsVisible, givingHandlers.LeaderboardHandler())

			tenant.POST("/pledges", givingHandlers.CreatePledgeHandler())
			tenant.GET("/pledges", givingHandlers.ListMyPledgesHandler())
			tenant.POST("/pledges/:pledgeId/pause", givingHandlers.PausePledgeHandler())
			tenant.POST("/pledges/:pledgeId/resume", givingHandlers.ResumePledgeHandler())
			tenant.POST("/pledges/:pledgeId/cancel", givingHandlers.CancelPledgeHandler())
		}

		// Payment gateway callbacks
		pledges := apiV1.Group("/pledges")
		pledges.Use(r.Auth.Required())
		pledges.Use(audited)
		{
			pledges.GET("/due", middleware.RequireScopeOrSuperAdmin(auth.ScopePledgesRead), billingHandlers.ListDuePledgesHandler())
			pledges.POST("/:pledgeId/advance", middleware.RequireScopeOrSuperAdmin(auth.ScopePledgesCharge), billingHandlers.AdvancePledgeHandler())
		}

		// Read-only reporting for integrations
		reports := apiV1.Group("/reports/tenants/:tenantId")
		reports.Use(r.Auth.Required())
		reports.Use(middleware.RequireAnyScope(auth.ScopeDonationsRead, auth.ScopePledgesRead))
		reports.Use(middleware.RequireKeyTenant())
		{
			reports.GET("/leaderboard", givingHandlers.LeaderboardHandler())
			reports.GET("/funds/:fundId/progress", givingHandlers.FundProgressHandler())
		}

		adminGroup := apiV1.Group("/admin")
		adminGroup.Use(r.Auth.Required())
		{
			adminGroup.GET("/audit-logs", middleware.RequireScopeOrSuperAdmin(auth.ScopeAuditRead), auditHandlers.ListAuditLogsHandler())
		}
	}

	return router
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(database Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := database.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks the database and the cache.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
// Unlike the liveness check (/health), this also checks the cache, so a replica whose Redis is
// unreachable stops receiving traffic instead of serving from a cold, divergent cache.
func readinessHandler(database, store Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}
		ctx := c.Request.Context()

		if err := database.Ping(ctx); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if store != nil {
			if err := store.Ping(ctx); err != nil {
				checks["cache"] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  "cache not ready",
				})
				return
			}
			checks["cache"] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current service and API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured request logging. The output format (json or text)
// follows the handler installed by telemetry.SetupLogger.
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		} else if path == "/health" || path == "/ready" {
			level = slog.LevelDebug
		}

		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", middleware.RequestID(c)),
			slog.String("user_agent", c.Request.UserAgent()),
		}
		if userID := middleware.CurrentUserID(c); userID != "" {
			attrs = append(attrs, slog.String("user_id", userID))
		}
		if cfg.Telemetry.ServiceName != "" {
			attrs = append(attrs, slog.String("service", cfg.Telemetry.ServiceName))
		}
		slog.LogAttrs(c.Request.Context(), level, "http request", attrs...)
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := "GET, POST, PUT, DELETE, OPTIONS"
	if len(cfg.Security.CORS.AllowedMethods) > 0 {
		methods = strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
