package storage

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// =============================================================================
// Content Type Detection
// =============================================================================

// extraTypes covers photo formats mime.TypeByExtension doesn't know on
// minimal systems.
var extraTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
	".heic": "image/heic",
	".heif": "image/heif",
	".avif": "image/avif",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// DetectContentType determines the MIME type of an object.
//
// Detection priority:
// 1. providedType, when non-empty
// 2. the key's extension
// 3. "application/octet-stream"
func DetectContentType(providedType, key string) string {
	if providedType != "" {
		return providedType
	}

	ext := strings.ToLower(filepath.Ext(key))
	if t, ok := extraTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}

	return "application/octet-stream"
}

// IsImage returns true if the content type is any image format.
func IsImage(contentType string) bool {
	baseType := strings.Split(contentType, ";")[0]
	baseType = strings.TrimSpace(strings.ToLower(baseType))
	return strings.HasPrefix(baseType, "image/")
}

// formatSize renders a byte count for listings. Zero sizes are reported as
// unknown.
func formatSize(n int64) string {
	if n <= 0 {
		return ""
	}
	return humanize.Bytes(uint64(n))
}
