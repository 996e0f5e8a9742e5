package middleware

import (
	"net/http"
	"strings"
)

// SecurityHeadersMiddleware adds HTTP security headers to all responses.
type SecurityHeadersMiddleware struct {
	isSecure bool // Whether to enable HTTPS-specific headers (true in production)
	csp      string
}

// NewSecurityHeadersMiddleware creates a new security headers middleware.
//
// storageOrigins are the origins of the configured storage backends. They
// are allowed as image sources, and as connect targets since browsers PUT
// directly to presigned URLs.
func NewSecurityHeadersMiddleware(isSecure bool, storageOrigins ...string) *SecurityHeadersMiddleware {
	return &SecurityHeadersMiddleware{
		isSecure: isSecure,
		csp:      buildCSP(storageOrigins),
	}
}

// Handler returns middleware that sets security headers on all responses.
func (m *SecurityHeadersMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")

		// max-age=31536000 = 1 year
		if m.isSecure {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		h.Set("Content-Security-Policy", m.csp)
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		next.ServeHTTP(w, r)
	})
}

// buildCSP constructs the Content-Security-Policy header value.
func buildCSP(storageOrigins []string) string {
	sources := "'self'"
	for _, o := range storageOrigins {
		if strings.HasPrefix(o, "https://") || strings.HasPrefix(o, "http://") {
			sources += " " + o
		}
	}

	return "default-src 'self'; " +
		"img-src " + sources + " data: blob:; " +
		"connect-src " + sources + "; " +
		"style-src 'self' 'unsafe-inline'; " +
		"frame-ancestors 'none'; " +
		"base-uri 'self'; " +
		"form-action 'self'"
}
