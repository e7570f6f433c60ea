// Package security provides security middleware for the pagewatch API.
package security

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeadersMiddleware adds security headers to all responses
func HeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Prevent MIME type sniffing
		c.Header("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		c.Header("X-Frame-Options", "DENY")

		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// JSON API only: nothing to load, nothing may frame us.
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		c.Next()
	}
}

// OriginPolicy decides which browser origins may call the API.
type OriginPolicy struct {
	origins map[string]bool
	any     bool
	pattern *regexp.Regexp
}

// NewOriginPolicy builds a policy from an explicit origin list ("*" allows
// every origin) and an optional origin regular expression.
func NewOriginPolicy(origins []string, pattern string) (*OriginPolicy, error) {
	p := &OriginPolicy{origins: make(map[string]bool)}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		switch o {
		case "":
		case "*":
			p.any = true
		default:
			p.origins[o] = true
		}
	}
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		p.pattern = re
	}
	return p, nil
}

// Enabled reports whether any origin can be allowed at all.
func (p *OriginPolicy) Enabled() bool {
	return p != nil && (p.any || len(p.origins) > 0 || p.pattern != nil)
}

// Allowed reports whether origin may make cross-origin requests.
func (p *OriginPolicy) Allowed(origin string) bool {
	if p == nil || origin == "" {
		return false
	}
	if p.any || p.origins[origin] {
		return true
	}
	return p.pattern != nil && p.pattern.MatchString(origin)
}

// CORSMiddleware handles CORS for API endpoints. Credentials are never
// allowed. A disabled policy adds no headers and leaves preflights to the router.
func CORSMiddleware(policy *OriginPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !policy.Enabled() {
			c.Next()
			return
		}

		origin := c.GetHeader("Origin")
		c.Writer.Header().Add("Vary", "Origin")
		allowed := policy.Allowed(origin)
		if allowed {
			c.Header("Access-Control-Allow-Origin", origin)
		}

		// Handle preflight
		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			if !allowed {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error":   "cors_origin_denied",
					"message": "Origin not allowed",
				})
				return
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			reqHeaders := c.GetHeader("Access-Control-Request-Headers")
			if reqHeaders == "" {
				reqHeaders = "Content-Type, X-Request-ID"
			}
			c.Header("Access-Control-Allow-Headers", reqHeaders)
			c.Header("Access-Control-Max-Age", "600")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
