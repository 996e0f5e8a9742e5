// Package service contains business logic for the darkroom application.
//
// This file implements the photo asset orchestrator: turning uploads into
// photos, generating resized variants and managing the group of files that
// make up one photo.
package service

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/DukeRupert/darkroom/internal/domain"
	"github.com/DukeRupert/darkroom/internal/metrics"
	"github.com/DukeRupert/darkroom/internal/storage"
)

// =============================================================================
// Dependencies
// =============================================================================

// PhotoStorage is the subset of the storage router the orchestrator uses.
type PhotoStorage interface {
	PutFile(ctx context.Context, key string, data []byte) (string, error)
	ReadFile(ctx context.Context, url string) ([]byte, error)
	CopyFile(ctx context.Context, originURL, destKey string) (string, error)
	MoveFile(ctx context.Context, originURL, destKey string) (string, error)
	DeleteFileBestEffort(ctx context.Context, url string) error
	DeleteFilesWithPrefix(ctx context.Context, prefix string) error
	GetStorageURLsForPrefix(ctx context.Context, prefix string) []storage.ListItem
}

// PhotoRecords persists photo records. It is optional; without it photos
// exist only in storage.
type PhotoRecords interface {
	CreatePhoto(ctx context.Context, p domain.Photo) (domain.Photo, error)
	DeletePhotoByURL(ctx context.Context, url string) error
}

// =============================================================================
// Interface Definition
// =============================================================================

// ConvertUploadParams describes one upload to turn into a photo.
type ConvertUploadParams struct {
	UploadURL string
	// FileBytes are the upload's bytes when the caller already has them.
	// When nil they are read from storage.
	FileBytes []byte
	StripGPS  bool
	// KeepOrigin leaves the upload in place instead of deleting it once
	// the photo original is written.
	KeepOrigin bool
}

// PhotoAssetService manages the storage files of photos.
type PhotoAssetService interface {
	// ConvertUploadToPhoto writes a photo original from an upload, stores
	// its variants and returns the original's URL.
	// Returns domain.EINVALID if UploadURL is not a storage URL.
	ConvertUploadToPhoto(ctx context.Context, params ConvertUploadParams) (string, error)

	// IngestUpload converts an upload and records the resulting photo when
	// a record store is configured.
	IngestUpload(ctx context.Context, params ConvertUploadParams) (*domain.Photo, error)

	// StoreOptimizedPhotos writes the sm, md and lg variants of the photo
	// original at url from its bytes. The first failure aborts.
	StoreOptimizedPhotos(ctx context.Context, url string, data []byte) (string, error)

	// StorageURLsForPhoto lists the original and variants of the photo at
	// url, ordered original, sm, md, lg.
	StorageURLsForPhoto(ctx context.Context, url string) ([]storage.ListItem, error)

	// StorageUploadURLs lists pending uploads on every backend.
	StorageUploadURLs(ctx context.Context) []storage.ListItem

	// StoragePhotoURLs lists photo files on every backend.
	StoragePhotoURLs(ctx context.Context) []storage.ListItem

	// DeletePhotoFiles deletes the original and every variant of the
	// photo at url.
	DeletePhotoFiles(ctx context.Context, url string) error
}

// =============================================================================
// Implementation
// =============================================================================

type photoAssetService struct {
	storage   PhotoStorage
	processor ImageProcessor
	records   PhotoRecords
	logger    *slog.Logger
}

// NewPhotoAssetService creates a new PhotoAssetService. records may be nil.
func NewPhotoAssetService(store PhotoStorage, processor ImageProcessor, records PhotoRecords, logger *slog.Logger) PhotoAssetService {
	return &photoAssetService{
		storage:   store,
		processor: processor,
		records:   records,
		logger:    logger,
	}
}

func (s *photoAssetService) ConvertUploadToPhoto(ctx context.Context, params ConvertUploadParams) (url string, err error) {
	const op = "photo.convert_upload"
	defer func() { metrics.PhotoIngested(err) }()

	url, _, err = s.convert(ctx, op, params)
	return url, err
}

func (s *photoAssetService) IngestUpload(ctx context.Context, params ConvertUploadParams) (photo *domain.Photo, err error) {
	const op = "photo.ingest"
	defer func() { metrics.PhotoIngested(err) }()

	url, data, err := s.convert(ctx, op, params)
	if err != nil {
		return nil, err
	}

	takenAt, ok := CaptureTime(data)
	if !ok {
		takenAt = time.Now()
	}
	p, ok := domain.NewPhoto(url, takenAt)
	if !ok {
		return nil, domain.Internal(nil, op, "stored photo has an unexpected URL")
	}

	if s.records == nil {
		return &p, nil
	}
	created, err := s.records.CreatePhoto(ctx, p)
	if err != nil {
		// The files are complete; only the record is missing.
		s.logger.Error("photo stored but not recorded", "url", url, "error", err)
		return nil, domain.Internal(err, op, "failed to record photo")
	}
	return &created, nil
}

// convert runs the ingest pipeline and returns the photo URL and the bytes
// its variants were generated from.
func (s *photoAssetService) convert(ctx context.Context, op string, params ConvertUploadParams) (string, []byte, error) {
	parts := storage.ParseKey(params.UploadURL)
	if !parts.Matched() {
		return "", nil, domain.Invalid(op, "upload URL is not a storage URL")
	}

	ext := parts.FileExtension
	key := storage.VariantKey(storage.GenerateFileNameWithID(storage.PrefixPhoto), storage.SizeOriginal, ext)

	data := params.FileBytes
	if data == nil {
		var err error
		data, err = s.storage.ReadFile(ctx, params.UploadURL)
		if err != nil {
			return "", nil, StorageFailure(op, "failed to read upload", err)
		}
	}

	var url string
	switch {
	case params.StripGPS:
		stripped, didStrip, err := s.processor.StripGPS(data, ext)
		if err != nil {
			return "", nil, processingFailure(op, err)
		}
		data = stripped

		url, err = s.storage.PutFile(ctx, key, data)
		if err != nil {
			return "", nil, StorageFailure(op, "failed to store photo", err)
		}
		if !params.KeepOrigin {
			_ = s.storage.DeleteFileBestEffort(ctx, params.UploadURL)
		}
		s.logger.Debug("stored photo original", "url", url, "gps_removed", didStrip)

	case params.KeepOrigin:
		var err error
		url, err = s.storage.CopyFile(ctx, params.UploadURL, key)
		if err != nil {
			return "", nil, StorageFailure(op, "failed to copy upload", err)
		}

	default:
		var err error
		url, err = s.storage.MoveFile(ctx, params.UploadURL, key)
		if err != nil {
			return "", nil, StorageFailure(op, "failed to move upload", err)
		}
	}

	if _, err := s.StoreOptimizedPhotos(ctx, url, data); err != nil {
		return "", nil, err
	}

	s.logger.Info("photo ingested",
		"upload_url", params.UploadURL,
		"url", url,
		"strip_gps", params.StripGPS,
		"keep_origin", params.KeepOrigin,
	)

	return url, data, nil
}

func (s *photoAssetService) StoreOptimizedPhotos(ctx context.Context, url string, data []byte) (string, error) {
	const op = "photo.store_optimized"

	parts := storage.ParseKey(url)
	if !parts.Matched() {
		return "", domain.Invalid(op, "photo URL is not a storage URL")
	}

	for _, v := range PhotoVariants {
		resized, err := s.processor.Resize(data, parts.FileExtension, v.Width, v.Quality)
		if err != nil {
			return "", processingFailure(op, err)
		}
		key := storage.VariantKey(parts.FileNameBase, v.Suffix, parts.FileExtension)
		if _, err := s.storage.PutFile(ctx, key, resized); err != nil {
			return "", StorageFailure(op, "failed to store "+string(v.Suffix)+" variant", err)
		}
		metrics.PhotoVariantGenerated(string(v.Suffix))
	}

	return url, nil
}

func (s *photoAssetService) StorageURLsForPhoto(ctx context.Context, url string) ([]storage.ListItem, error) {
	parts := storage.ParseKey(url)
	if !parts.Matched() {
		return nil, domain.Invalid("photo.storage_urls", "photo URL is not a storage URL")
	}

	items := s.storage.GetStorageURLsForPrefix(ctx, parts.FileNameBase)
	slices.SortStableFunc(items, func(a, b storage.ListItem) int {
		return cmp.Compare(storage.SuffixForURL(a.URL).Rank(), storage.SuffixForURL(b.URL).Rank())
	})
	return items, nil
}

func (s *photoAssetService) StorageUploadURLs(ctx context.Context) []storage.ListItem {
	return s.storage.GetStorageURLsForPrefix(ctx, storage.PrefixUpload+"-")
}

func (s *photoAssetService) StoragePhotoURLs(ctx context.Context) []storage.ListItem {
	return s.storage.GetStorageURLsForPrefix(ctx, storage.PrefixPhoto+"-")
}

func (s *photoAssetService) DeletePhotoFiles(ctx context.Context, url string) error {
	const op = "photo.delete_files"

	parts := storage.ParseKey(url)
	if !parts.Matched() {
		return domain.Invalid(op, "photo URL is not a storage URL")
	}

	if err := s.storage.DeleteFilesWithPrefix(ctx, parts.FileNameBase); err != nil {
		return StorageFailure(op, "failed to delete photo files", err)
	}

	if s.records != nil {
		if err := s.records.DeletePhotoByURL(ctx, url); err != nil {
			return domain.Internal(err, op, "failed to delete photo record")
		}
	}
	return nil
}

// =============================================================================
// Error Mapping
// =============================================================================

// StorageFailure converts a storage error into a domain error. Errors
// without a more specific code become EINTERNAL carrying message.
func StorageFailure(op, message string, err error) error {
	switch {
	case storage.IsNotFound(err):
		return domain.Wrap(err, domain.ENOTFOUND, op, "File not found in storage")
	case storage.IsInvalidKey(err):
		return domain.Wrap(err, domain.EINVALID, op, "Invalid storage key")
	case storage.IsTooLarge(err):
		return domain.Wrap(err, domain.ETOOLARGE, op, "File is too large")
	case errors.Is(err, storage.ErrBackendNotConfigured):
		return domain.Wrap(err, domain.EUNAVAILABLE, op, "Storage backend is not configured")
	}
	return domain.Internal(err, op, message)
}

func processingFailure(op string, err error) error {
	if errors.Is(err, ErrUnsupportedImageFormat) {
		return domain.Wrap(err, domain.EINVALID, op, "Unsupported image format")
	}
	return domain.Wrap(err, domain.EINVALID, op, "Could not process image")
}
