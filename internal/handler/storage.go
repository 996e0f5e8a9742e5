package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/darkroom/internal/auth"
	"github.com/DukeRupert/darkroom/internal/domain"
	"github.com/DukeRupert/darkroom/internal/service"
	"github.com/DukeRupert/darkroom/internal/storage"
)

// PresignedURLExpiry is how long a presigned upload URL stays valid.
const PresignedURLExpiry = time.Hour

const unauthorizedRequestBody = "Unauthorized request"

// UploadPresigner hands out presigned upload URLs on the current backend.
// *storage.Router satisfies it.
type UploadPresigner interface {
	PresignUpload(ctx context.Context, key string, expires time.Duration) (string, error)
}

// UploadVerifier checks a local upload token against the key it is used
// for. *auth.TokenIssuer satisfies it.
type UploadVerifier interface {
	VerifyUpload(token, key string) error
}

// ObjectWriter writes one object. *storage.LocalStorage satisfies it.
type ObjectWriter interface {
	Put(ctx context.Context, key string, data io.Reader, opts storage.PutOptions) (string, error)
}

// StorageHandler serves the presigned-upload gateway.
//
// Routes handled:
// - GET /api/storage/presigned-url/{key}  -> PresignedURL (400 without a key)
// - PUT /api/storage/local-upload/{key}   -> LocalUpload (local-fs only)
type StorageHandler struct {
	presigner     UploadPresigner
	verifier      UploadVerifier
	local         ObjectWriter
	maxUploadSize int64
	logger        *slog.Logger
}

// NewStorageHandler creates a StorageHandler. local may be nil when the
// local filesystem backend is not configured.
func NewStorageHandler(presigner UploadPresigner, verifier UploadVerifier, local ObjectWriter, maxUploadSize int64, logger *slog.Logger) *StorageHandler {
	return &StorageHandler{
		presigner:     presigner,
		verifier:      verifier,
		local:         local,
		maxUploadSize: maxUploadSize,
		logger:        logger,
	}
}

// =============================================================================
// GET /api/storage/presigned-url/{key}
// =============================================================================

// PresignedURL returns, as text/plain, a URL valid for one hour that
// accepts a PUT of exactly {key} on the current backend. Any signed-in
// role may call it; the route must sit behind WithUser.
func (h *StorageHandler) PresignedURL(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	if auth.GetSession(r.Context()) == nil {
		writeText(w, http.StatusUnauthorized, unauthorizedRequestBody)
		return
	}

	key := r.PathValue("key")
	if key == "" {
		writeText(w, http.StatusBadRequest, "Missing storage key")
		return
	}
	if err := storage.ValidateKey(key); err != nil {
		writeText(w, http.StatusBadRequest, "Invalid storage key")
		return
	}

	url, err := h.presigner.PresignUpload(r.Context(), key, PresignedURLExpiry)
	if err != nil {
		h.logger.Error("failed to presign upload", "key", key, "error", err)
		msg := "Failed to create presigned URL"
		if errors.Is(err, storage.ErrPresignUnsupported) {
			msg = "Current storage does not support presigned uploads"
		}
		writeText(w, http.StatusInternalServerError, msg)
		return
	}

	writeText(w, http.StatusOK, url)
}

// =============================================================================
// PUT /api/storage/local-upload/{key}?token=
// =============================================================================

// LocalUpload is the target of presigned URLs issued by the local
// filesystem backend. The token must have been signed for {key}.
func (h *StorageHandler) LocalUpload(w http.ResponseWriter, r *http.Request) {
	const op = "storage.local_upload"
	w.Header().Set("Cache-Control", "no-store")

	if h.local == nil {
		ErrorResponse(w, r, h.logger, domain.Unavailable(op, "Local storage is not configured"))
		return
	}

	key := r.PathValue("key")
	if err := h.verifier.VerifyUpload(r.URL.Query().Get("token"), key); err != nil {
		h.logger.Warn("rejected local upload token", "key", key, "error", err)
		writeText(w, http.StatusUnauthorized, unauthorizedRequestBody)
		return
	}

	body := r.Body
	if h.maxUploadSize > 0 {
		if r.ContentLength > h.maxUploadSize {
			ErrorResponse(w, r, h.logger, domain.TooLarge(op, h.maxUploadSize))
			return
		}
		body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	}

	url, err := h.local.Put(r.Context(), key, body, storage.PutOptions{
		ContentType: r.Header.Get("Content-Type"),
		Size:        r.ContentLength,
		MaxSize:     h.maxUploadSize,
	})
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			ErrorResponse(w, r, h.logger, domain.TooLarge(op, h.maxUploadSize))
			return
		}
		ErrorResponse(w, r, h.logger, service.StorageFailure(op, "Failed to store upload", err))
		return
	}

	h.logger.Info("local upload stored", "key", key, "url", url)
	writeText(w, http.StatusOK, url)
}

// RegisterRoutes registers the gateway routes. withUser must load the
// session; the presign route answers 401 itself.
func (h *StorageHandler) RegisterRoutes(mux *http.ServeMux, withUser func(http.Handler) http.Handler) {
	presign := withUser(http.HandlerFunc(h.PresignedURL))
	mux.Handle("GET /api/storage/presigned-url/{$}", presign)
	mux.Handle("GET /api/storage/presigned-url/{key}", presign)
	mux.HandleFunc("PUT /api/storage/local-upload/{key}", h.LocalUpload)
}

// writeText writes a plain-text response body.
func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
