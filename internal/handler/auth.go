package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/DukeRupert/darkroom/internal/auth"
	"github.com/DukeRupert/darkroom/internal/domain"
	"github.com/DukeRupert/darkroom/internal/session"
)

// Authenticator checks an email and password. *auth.Credentials
// satisfies it.
type Authenticator interface {
	Authenticate(email, password string) (auth.Role, error)
}

// SessionIssuer signs session tokens. *auth.TokenIssuer satisfies it.
type SessionIssuer interface {
	IssueSession(email string, role auth.Role) (string, time.Time, error)
}

// SignInThrottle forgets failed attempts once a client signs in.
type SignInThrottle interface {
	ResetSignIn(r *http.Request)
}

// AuthConfig holds AuthHandler dependencies.
type AuthConfig struct {
	Credentials Authenticator
	Sessions    SessionIssuer
	// Throttle may be nil.
	Throttle SignInThrottle
	IsSecure bool
	Logger   *slog.Logger
}

// AuthHandler handles sign-in and sign-out.
//
// Routes handled:
// - POST /api/auth/sign-in  -> SignIn
// - POST /api/auth/sign-out -> SignOut
type AuthHandler struct {
	credentials Authenticator
	sessions    SessionIssuer
	throttle    SignInThrottle
	isSecure    bool
	logger      *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(cfg AuthConfig) *AuthHandler {
	return &AuthHandler{
		credentials: cfg.Credentials,
		sessions:    cfg.Sessions,
		throttle:    cfg.Throttle,
		isSecure:    cfg.IsSecure,
		logger:      cfg.Logger,
	}
}

// RegisterRoutes registers the auth routes. limitSignIn wraps the sign-in
// route and may be nil.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, limitSignIn func(http.Handler) http.Handler) {
	var signIn http.Handler = http.HandlerFunc(h.SignIn)
	if limitSignIn != nil {
		signIn = limitSignIn(signIn)
	}
	mux.Handle("POST /api/auth/sign-in", signIn)
	mux.HandleFunc("POST /api/auth/sign-out", h.SignOut)
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Role      auth.Role `json:"role"`
}

// SignIn accepts a JSON or form body with email and password. On success
// it sets the session cookie and returns the token for API clients.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	const op = "auth.sign_in"

	req, err := readSignIn(w, r)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Invalid request body"))
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Email and password are required"))
		return
	}

	role, err := h.credentials.Authenticate(email, req.Password)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			ErrorResponse(w, r, h.logger, domain.Internal(err, op, "sign-in failed"))
			return
		}
		ErrorResponse(w, r, h.logger, domain.Unauthorized(op, "Invalid email or password"))
		return
	}

	token, expiresAt, err := h.sessions.IssueSession(email, role)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "failed to issue session"))
		return
	}

	if h.throttle != nil {
		h.throttle.ResetSignIn(r)
	}
	session.SetCookie(w, token, h.isSecure)

	h.logger.Info("signed in", "email", email, "role", role)

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, signInResponse{Token: token, ExpiresAt: expiresAt, Role: role})
}

// SignOut clears the session cookie. Bearer tokens stay valid until they
// expire.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	session.ClearCookie(w, h.isSecure)
	w.WriteHeader(http.StatusNoContent)
}

func readSignIn(w http.ResponseWriter, r *http.Request) (signInRequest, error) {
	var req signInRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAdminBodyBytes)).Decode(&req)
		return req, err
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAdminBodyBytes)
	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.Email = r.PostFormValue("email")
	req.Password = r.PostFormValue("password")
	return req, nil
}
