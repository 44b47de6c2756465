// security.go sets the protective headers every API response carries. The API only serves
// JSON, so framing, embedding and caching by browsers and proxies are all refused.
package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/temple4/community-core/internal/config"
)

const hstsOneYear = 365 * 24 * 60 * 60

// apiHeaders are set on every response, including errors raised by later middleware.
// Donation and membership data must not linger in shared caches, hence no-store.
var apiHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Referrer-Policy", "no-referrer"},
	{"Cache-Control", "no-store"},
	{"X-Permitted-Cross-Domain-Policies", "none"},
	{"Cross-Origin-Opener-Policy", "same-origin"},
	{"Cross-Origin-Resource-Policy", "same-origin"},
}

// SecurityHeadersConfig controls Strict-Transport-Security. A zero HSTSMaxAge omits the header.
type SecurityHeadersConfig struct {
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
}

// SecurityHeadersFromConfig enables a one-year HSTS policy only when the server terminates
// TLS itself; behind a proxy the proxy owns that header.
func SecurityHeadersFromConfig(tls config.TLSConfig) SecurityHeadersConfig {
	if !tls.Enabled {
		return SecurityHeadersConfig{}
	}
	return SecurityHeadersConfig{HSTSMaxAge: hstsOneYear, HSTSIncludeSubdomains: true}
}

// SecurityHeadersMiddleware adds the API header set to all responses
func SecurityHeadersMiddleware(cfg SecurityHeadersConfig) gin.HandlerFunc {
	var hsts string
	if cfg.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.Itoa(cfg.HSTSMaxAge)
		if cfg.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, kv := range apiHeaders {
			h.Set(kv[0], kv[1])
		}
		if hsts != "" {
			h.Set("Strict-Transport-Security", hsts)
		}
		c.Next()
	}
}
