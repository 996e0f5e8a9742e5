package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// =============================================================================
// Metrics Auth Middleware Tests
// =============================================================================

func TestMetricsAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		user, pass string
		setAuth    bool
		header     string
		wantStatus int
	}{
		{name: "valid credentials", user: "prom", pass: "s3cret", setAuth: true, wantStatus: http.StatusOK},
		{name: "no credentials", wantStatus: http.StatusUnauthorized},
		{name: "wrong username", user: "root", pass: "s3cret", setAuth: true, wantStatus: http.StatusUnauthorized},
		{name: "wrong password", user: "prom", pass: "s3cre", setAuth: true, wantStatus: http.StatusUnauthorized},
		{name: "bearer instead of basic", header: "Bearer abc", wantStatus: http.StatusUnauthorized},
		{name: "malformed basic", header: "Basic not-base64!", wantStatus: http.StatusUnauthorized},
	}

	mw := NewMetricsAuthMiddleware("prom", "s3cret", newTestLogger())
	h := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/metrics", nil)
			if tt.setAuth {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("401 should carry WWW-Authenticate")
			}
		})
	}
}

func TestMetricsAuthMiddleware_DisabledWithoutCredentials(t *testing.T) {
	mw := NewMetricsAuthMiddleware("", "", newTestLogger())
	h := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when auth is disabled", rec.Code)
	}
}
