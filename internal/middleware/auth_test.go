package middleware

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DukeRupert/darkroom/internal/auth"
	"github.com/DukeRupert/darkroom/internal/session"
)

// =============================================================================
// Test Helpers
// =============================================================================

// mockSessions maps tokens to sessions.
type mockSessions map[string]*auth.Session

func (m mockSessions) ParseSession(token string) (*auth.Session, error) {
	s, ok := m[token]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return s, nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAuthMiddleware() *AuthMiddleware {
	exp := time.Now().Add(time.Hour)
	return NewAuthMiddleware(mockSessions{
		"admin-token":  {Email: "admin@example.com", Role: auth.RoleAdmin, ExpiresAt: exp},
		"viewer-token": {Email: "viewer@example.com", Role: auth.RolePublicViewer, ExpiresAt: exp},
	}, newTestLogger(), false)
}

// captureSession runs WithUser and returns the session seen by the handler.
func captureSession(t *testing.T, req *http.Request) (*auth.Session, *httptest.ResponseRecorder) {
	t.Helper()
	var got *auth.Session
	called := false
	h := newTestAuthMiddleware().WithUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		got = auth.GetSession(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if !called {
		t.Fatal("WithUser must always call the next handler")
	}
	return got, rec
}

// =============================================================================
// WithUser
// =============================================================================

func TestWithUser_NoCredentials(t *testing.T) {
	s, _ := captureSession(t, httptest.NewRequest("GET", "/", nil))
	if s != nil {
		t.Errorf("expected no session, got %+v", s)
	}
}

func TestWithUser_ValidCookie(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "admin-token"})

	s, _ := captureSession(t, req)
	if s == nil || s.Role != auth.RoleAdmin {
		t.Fatalf("expected admin session, got %+v", s)
	}
}

func TestWithUser_BearerWinsOverCookie(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer viewer-token")
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "admin-token"})

	s, _ := captureSession(t, req)
	if s == nil || s.Role != auth.RolePublicViewer {
		t.Fatalf("expected viewer session from bearer token, got %+v", s)
	}
}

func TestWithUser_InvalidCookieIsCleared(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "forged"})

	s, rec := captureSession(t, req)
	if s != nil {
		t.Errorf("expected no session, got %+v", s)
	}

	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("invalid session cookie should be cleared")
	}
}

func TestWithUser_InvalidBearerLeavesCookieAlone(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer forged")

	_, rec := captureSession(t, req)
	if len(rec.Result().Cookies()) != 0 {
		t.Error("a rejected bearer token must not touch cookies")
	}
}

// =============================================================================
// RequireUser / RequireAdmin
// =============================================================================

func serveStack(token, path string, mw func(http.Handler) http.Handler) (*httptest.ResponseRecorder, bool) {
	reached := false
	h := Stack(newTestAuthMiddleware().WithUser, mw)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest("GET", path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, reached
}

func TestRequireUser(t *testing.T) {
	mw := newTestAuthMiddleware()

	tests := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"viewer", "viewer-token", http.StatusNoContent},
		{"admin", "admin-token", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := serveStack(tt.token, "/api/photos", mw.RequireUser)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	mw := newTestAuthMiddleware()

	tests := []struct {
		name        string
		token       string
		wantStatus  int
		wantReached bool
	}{
		{"anonymous", "", http.StatusUnauthorized, false},
		{"viewer", "viewer-token", http.StatusForbidden, false},
		{"admin", "admin-token", http.StatusNoContent, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, reached := serveStack(tt.token, "/api/admin/storage", mw.RequireAdmin)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if reached != tt.wantReached {
				t.Errorf("handler reached = %v, want %v", reached, tt.wantReached)
			}
		})
	}
}

func TestStack_Order(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Stack(mark("outer"), mark("inner"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	want := []string{"outer", "inner", "handler"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}
