// Package auth provides the session and upload-token primitives shared by
// the middleware and handler packages.
//
// This package is designed to be imported by both middleware and handler
// packages without causing import cycles.
package auth

import (
	"context"
	"net/http"
	"time"
)

// Role is what a signed-in account may do.
type Role string

const (
	RoleAdmin         Role = "admin"
	RolePrivateViewer Role = "private-viewer"
	RolePublicViewer  Role = "public-viewer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RolePrivateViewer, RolePublicViewer:
		return true
	}
	return false
}

// Session is the authenticated principal of a request.
type Session struct {
	Email     string
	Role      Role
	ExpiresAt time.Time
}

// IsAdmin reports whether the session may run admin operations.
func (s *Session) IsAdmin() bool {
	return s != nil && s.Role == RoleAdmin
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const sessionContextKey contextKey = "session"

// GetSession retrieves the authenticated session from the context.
//
// Returns nil if the request is not authenticated.
//
// Usage:
//
//	s := auth.GetSession(r.Context())
//	if s == nil {
//	    // Handle unauthenticated request
//	}
func GetSession(ctx context.Context) *Session {
	s, ok := ctx.Value(sessionContextKey).(*Session)
	if !ok {
		return nil
	}
	return s
}

// GetSessionFromRequest is GetSession on the request context.
func GetSessionFromRequest(r *http.Request) *Session {
	return GetSession(r.Context())
}

// SetSession stores s in the context.
func SetSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}
