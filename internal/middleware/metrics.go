package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"
)

// MetricsAuthMiddleware guards the Prometheus scrape endpoint with basic
// auth. With no credentials configured it lets everything through.
type MetricsAuthMiddleware struct {
	userDigest [sha256.Size]byte
	passDigest [sha256.Size]byte
	enabled    bool
	logger     *slog.Logger
}

// NewMetricsAuthMiddleware creates a new metrics auth middleware.
func NewMetricsAuthMiddleware(username, password string, logger *slog.Logger) *MetricsAuthMiddleware {
	return &MetricsAuthMiddleware{
		userDigest: sha256.Sum256([]byte(username)),
		passDigest: sha256.Sum256([]byte(password)),
		enabled:    username != "" || password != "",
		logger:     logger,
	}
}

// Handler returns middleware that requires basic authentication.
func (m *MetricsAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled {
			next.ServeHTTP(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok || !m.matches(user, pass) {
			m.logger.Warn("metrics scrape rejected", "ip", getClientIP(r), "basic_auth", ok)
			w.Header().Set("WWW-Authenticate", `Basic realm="darkroom metrics"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// matches compares digests so neither value's length leaks through timing.
func (m *MetricsAuthMiddleware) matches(user, pass string) bool {
	u := sha256.Sum256([]byte(user))
	p := sha256.Sum256([]byte(pass))
	userOK := subtle.ConstantTimeCompare(u[:], m.userDigest[:])
	passOK := subtle.ConstantTimeCompare(p[:], m.passDigest[:])
	return userOK&passOK == 1
}
