package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/DukeRupert/darkroom/internal/domain"
	"github.com/DukeRupert/darkroom/internal/maintenance"
	"github.com/DukeRupert/darkroom/internal/service"
	"github.com/DukeRupert/darkroom/internal/storage"
)

const maxAdminBodyBytes = 1 << 20

// StorageBrowser lists and deletes objects across every configured
// backend. *storage.Router satisfies it.
type StorageBrowser interface {
	ListPrefix(ctx context.Context, prefix string) ([]storage.ListItem, []*storage.PartialListError)
	DeleteFile(ctx context.Context, url string) error
}

// DateRepairRunner repairs malformed capture times.
// *maintenance.DateRepairer satisfies it.
type DateRepairRunner interface {
	Run(ctx context.Context, dryRun bool) (maintenance.DateRepairResult, error)
}

// AdminConfig holds AdminHandler dependencies.
type AdminConfig struct {
	Photos  service.PhotoAssetService
	Storage StorageBrowser
	// Dates is nil when no database is configured.
	Dates           DateRepairRunner
	DefaultStripGPS bool
	Logger          *slog.Logger
}

// AdminHandler serves the admin storage API. Every route requires the
// admin role.
//
// Routes handled:
// - POST   /api/admin/photos/ingest             -> Ingest
// - GET    /api/admin/photos/files?url=         -> PhotoFiles
// - DELETE /api/admin/photos/files?url=         -> DeletePhotoFiles
// - GET    /api/admin/storage?prefix=           -> ListStorage
// - DELETE /api/admin/storage?url=              -> DeleteStorageFile
// - POST   /api/admin/maintenance/fix-dates     -> FixDates
type AdminHandler struct {
	photos          service.PhotoAssetService
	storage         StorageBrowser
	dates           DateRepairRunner
	defaultStripGPS bool
	logger          *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(cfg AdminConfig) *AdminHandler {
	return &AdminHandler{
		photos:          cfg.Photos,
		storage:         cfg.Storage,
		dates:           cfg.Dates,
		defaultStripGPS: cfg.DefaultStripGPS,
		logger:          cfg.Logger,
	}
}

// RegisterRoutes registers admin routes with the provided middleware.
func (h *AdminHandler) RegisterRoutes(
	mux *http.ServeMux,
	requireAdmin func(http.Handler) http.Handler,
) {
	mux.Handle("POST /api/admin/photos/ingest", requireAdmin(http.HandlerFunc(h.Ingest)))
	mux.Handle("GET /api/admin/photos/files", requireAdmin(http.HandlerFunc(h.PhotoFiles)))
	mux.Handle("DELETE /api/admin/photos/files", requireAdmin(http.HandlerFunc(h.DeletePhotoFiles)))
	mux.Handle("GET /api/admin/storage", requireAdmin(http.HandlerFunc(h.ListStorage)))
	mux.Handle("DELETE /api/admin/storage", requireAdmin(http.HandlerFunc(h.DeleteStorageFile)))
	mux.Handle("POST /api/admin/maintenance/fix-dates", requireAdmin(http.HandlerFunc(h.FixDates)))
}

// =============================================================================
// Photos
// =============================================================================

type ingestRequest struct {
	UploadURL  string `json:"uploadUrl"`
	StripGPS   *bool  `json:"stripGps"`
	KeepOrigin bool   `json:"keepOrigin"`
}

type photoResponse struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	Extension    string    `json:"extension"`
	Title        string    `json:"title"`
	Hidden       bool      `json:"hidden"`
	TakenAt      time.Time `json:"takenAt"`
	TakenAtNaive string    `json:"takenAtNaive"`
}

type ingestResponse struct {
	URL   string        `json:"url"`
	Photo photoResponse `json:"photo"`
}

// Ingest turns an upload into a photo original plus its variants.
// stripGps defaults to the server's STRIP_GPS_DATA setting.
func (h *AdminHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	const op = "admin.ingest"

	var req ingestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Invalid request body"))
		return
	}
	if req.UploadURL == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "uploadUrl is required"))
		return
	}

	stripGPS := h.defaultStripGPS
	if req.StripGPS != nil {
		stripGPS = *req.StripGPS
	}

	photo, err := h.photos.IngestUpload(r.Context(), service.ConvertUploadParams{
		UploadURL:  req.UploadURL,
		StripGPS:   stripGPS,
		KeepOrigin: req.KeepOrigin,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, ingestResponse{
		URL: photo.URL,
		Photo: photoResponse{
			ID:           photo.ID,
			URL:          photo.URL,
			Extension:    photo.Extension,
			Title:        photo.Title,
			Hidden:       photo.Hidden,
			TakenAt:      photo.TakenAt,
			TakenAtNaive: photo.TakenAtNaive,
		},
	})
}

// PhotoFiles lists the original and variants of the photo at ?url=.
func (h *AdminHandler) PhotoFiles(w http.ResponseWriter, r *http.Request) {
	items, err := h.photos.StorageURLsForPhoto(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
}

// DeletePhotoFiles deletes every file of the photo at ?url=.
func (h *AdminHandler) DeletePhotoFiles(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if err := h.photos.DeletePhotoFiles(r.Context(), url); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	h.logger.Info("photo files deleted", "url", url)
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Storage
// =============================================================================

type storageListResponse struct {
	Items          []storage.ListItem `json:"items"`
	FailedBackends []string           `json:"failedBackends"`
}

// ListStorage lists ?prefix= on every backend. Backends that fail are
// named in failedBackends and contribute no items.
func (h *AdminHandler) ListStorage(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	items, partial := h.storage.ListPrefix(r.Context(), prefix)

	failed := make([]string, 0, len(partial))
	for _, p := range partial {
		h.logger.Warn("storage listing failed", "backend", p.Backend, "prefix", prefix, "error", p.Err)
		failed = append(failed, string(p.Backend))
	}

	writeJSON(w, http.StatusOK, storageListResponse{Items: nonNil(items), FailedBackends: failed})
}

// DeleteStorageFile deletes the single object at ?url=.
func (h *AdminHandler) DeleteStorageFile(w http.ResponseWriter, r *http.Request) {
	const op = "admin.delete_storage_file"

	url := r.URL.Query().Get("url")
	if url == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "url is required"))
		return
	}
	if err := h.storage.DeleteFile(r.Context(), url); err != nil {
		ErrorResponse(w, r, h.logger, service.StorageFailure(op, "Failed to delete file", err))
		return
	}
	h.logger.Info("storage file deleted", "url", url)
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Maintenance
// =============================================================================

// FixDates repairs malformed capture times. ?dryRun=true reports without
// writing.
func (h *AdminHandler) FixDates(w http.ResponseWriter, r *http.Request) {
	const op = "admin.fix_dates"

	if h.dates == nil {
		ErrorResponse(w, r, h.logger, domain.Unavailable(op, "Database is not configured"))
		return
	}

	dryRun := false
	if v := r.URL.Query().Get("dryRun"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			ErrorResponse(w, r, h.logger, domain.Invalid(op, "dryRun must be a boolean"))
			return
		}
		dryRun = b
	}

	result, err := h.dates.Run(r.Context(), dryRun)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "failed to repair dates"))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// Helpers
// =============================================================================

// decodeJSON reads a single JSON object from a bounded request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAdminBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON object")
	}
	return nil
}

func nonNil(items []storage.ListItem) []storage.ListItem {
	if items == nil {
		return []storage.ListItem{}
	}
	return items
}
