package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

// =============================================================================
// RateLimiter Tests
// =============================================================================

func newTestLimiter(t *testing.T, max int, window time.Duration) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(max, window, newTestLogger())
	t.Cleanup(rl.Stop)
	return rl
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := newTestLimiter(t, 3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("203.0.113.7") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("203.0.113.7") {
		t.Error("4th request should be denied")
	}
	if !rl.Allow("203.0.113.8") {
		t.Error("other clients keep their own budget")
	}
}

func TestRateLimiter_WindowExpiry(t *testing.T) {
	rl := newTestLimiter(t, 1, time.Minute)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("ip")
	if rl.Allow("ip") {
		t.Fatal("second request inside the window should be denied")
	}
	if got := rl.TimeUntilReset("ip"); got != time.Minute {
		t.Errorf("TimeUntilReset = %v, want 1m", got)
	}

	now = now.Add(61 * time.Second)
	if !rl.Allow("ip") {
		t.Error("request after the window should be allowed")
	}
}

func TestRateLimiter_Reset(t *testing.T) {
	rl := newTestLimiter(t, 1, time.Minute)

	rl.Allow("ip")
	rl.Reset("ip")

	if !rl.Allow("ip") {
		t.Error("Reset should restore the budget")
	}
	if rl.TimeUntilReset("unknown") != 0 {
		t.Error("unknown keys have nothing to wait for")
	}
}

func TestRateLimiter_StopTwice(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, newTestLogger())
	rl.Stop()
	rl.Stop()
}

// =============================================================================
// Middleware Tests
// =============================================================================

func TestRateLimitMiddleware_BlocksAfterLimit(t *testing.T) {
	mw := NewRateLimitMiddleware(newTestLimiter(t, 2, time.Minute), newTestLogger())
	h := mw.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var rec *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/api/auth/sign-in", nil)
		req.RemoteAddr = "198.51.100.4:5555"
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
	}

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("API routes should get JSON, got %q", rec.Header().Get("Content-Type"))
	}
	secs, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || secs < 1 {
		t.Errorf("Retry-After = %q, want a positive number of seconds", rec.Header().Get("Retry-After"))
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "192.0.2.1:1234", "192.0.2.1"},
		{"remote addr without port", nil, "192.0.2.1", "192.0.2.1"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "198.51.100.9, 10.0.0.1"}, "10.0.0.2:80", "198.51.100.9"},
		{"real ip", map[string]string{"X-Real-IP": " 198.51.100.10 "}, "10.0.0.2:80", "198.51.100.10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthRateLimiter_ResetSignIn(t *testing.T) {
	a := NewAuthRateLimiter(newTestLogger())
	t.Cleanup(a.Stop)

	h := a.LimitSignIn(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	newReq := func() *http.Request {
		req := httptest.NewRequest("POST", "/api/auth/sign-in", nil)
		req.RemoteAddr = "192.0.2.50:1"
		return req
	}

	for i := 0; i < 5; i++ {
		h.ServeHTTP(httptest.NewRecorder(), newReq())
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newReq())
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("6th sign-in attempt: status = %d, want 429", rec.Code)
	}

	a.ResetSignIn(newReq())
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, newReq())
	if rec.Code != http.StatusOK {
		t.Errorf("after reset: status = %d, want 200", rec.Code)
	}
}
