// Package domain contains core business types and interfaces.
//
// This file defines the Photo record. Photo bytes live in object storage;
// the record keeps the URL of the original and the metadata that is
// queried without touching storage.
package domain

import (
	"time"

	"github.com/DukeRupert/darkroom/internal/storage"
)

// Photo is a gallery photo.
type Photo struct {
	// ID is the storage id of the photo, shared by its original and
	// every variant: "photo-{ID}.{Extension}".
	ID        string
	URL       string
	Extension string
	Title     string
	Hidden    bool

	// TakenAt is the capture time as an absolute instant.
	TakenAt time.Time
	// TakenAtNaive is the wall-clock capture time as recorded by the
	// camera, "YYYY-MM-DD HH:MM:SS" with no zone.
	TakenAtNaive string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewPhoto builds a record for an original stored at url. The naive
// capture time is the wall clock of takenAt in its own location. It reports
// false when url is not the URL of a photo original.
func NewPhoto(url string, takenAt time.Time) (Photo, bool) {
	parts := storage.ParseKey(url)
	if !parts.Matched() || storage.SuffixForURL(url) != storage.SizeOriginal {
		return Photo{}, false
	}
	return Photo{
		ID:           parts.FileID,
		URL:          url,
		Extension:    parts.FileExtension,
		TakenAt:      takenAt.UTC(),
		TakenAtNaive: takenAt.Format(TakenAtNaiveLayout),
	}, true
}
