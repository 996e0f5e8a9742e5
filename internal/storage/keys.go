package storage

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// =============================================================================
// Key Naming
// =============================================================================

const (
	// PrefixPhoto starts the base name of every photo original.
	PrefixPhoto = "photo"

	// PrefixUpload starts the base name of files uploaded but not yet
	// turned into photos.
	PrefixUpload = "upload"

	storageIDLength = 16
)

// SizeSuffix names one resized variant of a photo.
type SizeSuffix string

const (
	SizeOriginal SizeSuffix = ""
	SizeSmall    SizeSuffix = "sm"
	SizeMedium   SizeSuffix = "md"
	SizeLarge    SizeSuffix = "lg"
)

// Rank orders variants: original, sm, md, lg.
func (s SizeSuffix) Rank() int {
	switch s {
	case SizeSmall:
		return 1
	case SizeMedium:
		return 2
	case SizeLarge:
		return 3
	}
	return 0
}

// GenerateStorageID returns a random 16-character lowercase id.
func GenerateStorageID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:storageIDLength]
}

// GenerateFileNameWithID returns "{prefix}-{id}".
func GenerateFileNameWithID(prefix string) string {
	return prefix + "-" + GenerateStorageID()
}

// VariantKey builds the key of a photo variant:
// {fileNameBase}-{suffix}.{ext}, or {fileNameBase}.{ext} for the original.
func VariantKey(fileNameBase string, suffix SizeSuffix, ext string) string {
	if suffix == SizeOriginal {
		return fmt.Sprintf("%s.%s", fileNameBase, ext)
	}
	return fmt.Sprintf("%s-%s.%s", fileNameBase, suffix, ext)
}

// SuffixForURL reports which variant a storage URL holds.
func SuffixForURL(url string) SizeSuffix {
	base := ParseKey(url).FileNameBase
	for _, s := range []SizeSuffix{SizeSmall, SizeMedium, SizeLarge} {
		if strings.HasSuffix(base, "-"+string(s)) {
			return s
		}
	}
	return SizeOriginal
}

// withRandomSuffix inserts "-{id}" before the extension of key.
func withRandomSuffix(key string) string {
	ext := path.Ext(key)
	return strings.TrimSuffix(key, ext) + "-" + GenerateStorageID() + ext
}

// ValidateKey rejects keys that are empty or not a single flat name.
func ValidateKey(key string) error {
	if key == "" || key == "." {
		return ErrInvalidKey
	}
	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return ErrInvalidKey
	}
	return nil
}
