package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// =============================================================================
// Security Headers Middleware Tests
// =============================================================================

func securityHeaders(mw *SecurityHeadersMiddleware) http.Header {
	h := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	return rec.Header()
}

func TestSecurityHeadersMiddleware_SetsHeaders(t *testing.T) {
	got := securityHeaders(NewSecurityHeadersMiddleware(true))

	tests := map[string]string{
		"X-Frame-Options":           "DENY",
		"X-Content-Type-Options":    "nosniff",
		"Referrer-Policy":           "strict-origin-when-cross-origin",
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"Permissions-Policy":        "geolocation=(), microphone=(), camera=()",
	}
	for header, want := range tests {
		if got.Get(header) != want {
			t.Errorf("%s = %q, want %q", header, got.Get(header), want)
		}
	}
}

func TestSecurityHeadersMiddleware_NoHSTSInDevelopment(t *testing.T) {
	got := securityHeaders(NewSecurityHeadersMiddleware(false))

	if v := got.Get("Strict-Transport-Security"); v != "" {
		t.Errorf("HSTS should not be set in development, got %q", v)
	}
}

func TestSecurityHeadersMiddleware_CSPAllowsStorageOrigins(t *testing.T) {
	got := securityHeaders(NewSecurityHeadersMiddleware(false,
		"https://store.public.blob.vercel-storage.com",
		"/uploads",
	))
	csp := got.Get("Content-Security-Policy")

	if !strings.Contains(csp, "img-src 'self' https://store.public.blob.vercel-storage.com data: blob:") {
		t.Errorf("CSP should allow storage images: %s", csp)
	}
	if !strings.Contains(csp, "connect-src 'self' https://store.public.blob.vercel-storage.com;") {
		t.Errorf("CSP should allow direct uploads to storage: %s", csp)
	}
	if strings.Contains(csp, "/uploads") {
		t.Errorf("relative base URLs are covered by 'self': %s", csp)
	}
	if !strings.Contains(csp, "frame-ancestors 'none'") {
		t.Errorf("CSP should forbid framing: %s", csp)
	}
}
