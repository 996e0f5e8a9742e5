// Package middleware contains HTTP middleware for the darkroom application.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are designed to be composed using a middleware stack approach.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/DukeRupert/darkroom/internal/auth"
	"github.com/DukeRupert/darkroom/internal/domain"
	"github.com/DukeRupert/darkroom/internal/handler"
	"github.com/DukeRupert/darkroom/internal/session"
)

// SessionParser turns a session token into the session it carries.
// *auth.TokenIssuer satisfies it.
type SessionParser interface {
	ParseSession(token string) (*auth.Session, error)
}

// =============================================================================
// Auth Middleware Configuration
// =============================================================================

// AuthMiddleware provides authentication middleware functionality.
//
// Create one instance and use its methods as middleware.
type AuthMiddleware struct {
	sessions SessionParser
	logger   *slog.Logger
	isSecure bool // Whether to set Secure flag on cookies (true in production)
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
func NewAuthMiddleware(sessions SessionParser, logger *slog.Logger, isSecure bool) *AuthMiddleware {
	return &AuthMiddleware{
		sessions: sessions,
		logger:   logger,
		isSecure: isSecure,
	}
}

// =============================================================================
// WithUser Middleware
// =============================================================================

// WithUser loads the session from the session cookie or an
// "Authorization: Bearer" header and stores it in the request context.
//
// The request always continues; handlers that need a session use
// RequireUser or check auth.GetSession themselves.
//
// Flow:
//
//	Request -> WithUser -> Handler
//	           |
//	           +-> Read bearer token, else cookie
//	           +-> Parse token (if present)
//	           +-> Set session in context (if valid)
//	           +-> Call next handler (always)
func (m *AuthMiddleware) WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, fromCookie := sessionToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		s, err := m.sessions.ParseSession(token)
		if err != nil {
			m.logger.Debug("rejected session token", "error", err, "path", r.URL.Path)
			if fromCookie {
				session.ClearCookie(w, m.isSecure)
			}
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.SetSession(r.Context(), s)))
	})
}

// sessionToken returns the bearer token if present, otherwise the cookie
// value. fromCookie reports where it came from.
func sessionToken(r *http.Request) (token string, fromCookie bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		if t, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(t), false
		}
	}
	cookie, err := r.Cookie(session.CookieName)
	if err != nil {
		return "", false
	}
	return cookie.Value, true
}

// =============================================================================
// RequireUser / RequireAdmin Middleware
// =============================================================================

// RequireUser rejects requests without a session with 401.
//
// IMPORTANT: This middleware must be used AFTER WithUser in the middleware chain.
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.GetSession(r.Context()) == nil {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects requests without a session with 401 and requests
// from any role other than admin with 403.
//
// IMPORTANT: Use this AFTER WithUser in the middleware chain.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := auth.GetSession(r.Context())
		if s == nil {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}
		if !s.IsAdmin() {
			m.logger.Warn("admin route refused",
				"email", s.Email,
				"role", s.Role,
				"path", r.URL.Path,
			)
			handler.ErrorResponse(w, r, m.logger, domain.Forbidden("", "Admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Request Helpers
// =============================================================================

// isAPIRequest determines if the request expects a JSON response.
func isAPIRequest(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/api/")
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
//
// Example:
//
//	admin := Stack(authMw.WithUser, authMw.RequireAdmin)
//	mux.Handle("GET /api/admin/storage", admin(listHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

var (
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).WithUser
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireUser
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireAdmin
)
