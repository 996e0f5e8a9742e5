// Package storage provides the object storage layer for darkroom.
//
// Five backends sit behind a single Adapter interface:
// - VercelBlobStorage: Vercel Blob REST API
// - S3Storage: AWS S3 and Cloudflare R2 (aws-sdk-go-v2)
// - MinIOStorage: self-hosted MinIO (minio-go)
// - LocalStorage: a directory on the local filesystem
//
// The Router picks the adapter that receives new writes and recovers the
// owning adapter of any stored object from its URL alone.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"
)

// =============================================================================
// Backends
// =============================================================================

// Backend identifies one of the supported storage services.
type Backend string

const (
	BackendVercelBlob   Backend = "vercel-blob"
	BackendAWSS3        Backend = "aws-s3"
	BackendCloudflareR2 Backend = "cloudflare-r2"
	BackendMinIO        Backend = "minio"
	BackendLocalFS      Backend = "local-fs"
)

// AllBackends lists every backend in the order aggregate listings are
// concatenated.
var AllBackends = []Backend{
	BackendVercelBlob,
	BackendAWSS3,
	BackendCloudflareR2,
	BackendMinIO,
	BackendLocalFS,
}

// DefaultOwnershipOrder is the order in which backends are asked whether
// they own a URL. Vercel Blob is never listed; it is the fallback.
var DefaultOwnershipOrder = []Backend{
	BackendCloudflareR2,
	BackendAWSS3,
	BackendMinIO,
	BackendLocalFS,
}

// ParseBackend converts a configuration string into a Backend.
func ParseBackend(s string) (Backend, error) {
	b := Backend(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(AllBackends, b) {
		return "", fmt.Errorf("unknown storage backend %q", s)
	}
	return b, nil
}

// Label returns the human-readable name of the backend.
func (b Backend) Label() string {
	switch b {
	case BackendVercelBlob:
		return "Vercel Blob"
	case BackendAWSS3:
		return "AWS S3"
	case BackendCloudflareR2:
		return "Cloudflare R2"
	case BackendMinIO:
		return "MinIO"
	case BackendLocalFS:
		return "Local FS"
	}
	return string(b)
}

// =============================================================================
// Interface Definition
// =============================================================================

// Adapter is the uniform operation set every backend implements.
//
// Keys are flat object names (see ValidateKey). All methods are
// context-aware; each call is a single round trip to the backend.
type Adapter interface {
	// Backend reports which backend this adapter talks to.
	Backend() Backend

	// BaseURLs returns every URL prefix this adapter's objects are served
	// from. The first entry is the one new URLs are built on.
	BaseURLs() []string

	// URLForKey builds the public URL of key.
	URLForKey(key string) string

	// OwnsURL reports whether url points into this adapter's storage.
	OwnsURL(url string) bool

	// Put writes data at key, overwriting any existing object, and returns
	// the public URL of the stored object.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) (string, error)

	// Get opens the object at key. The caller must close the reader.
	// Returns ErrNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Copy duplicates srcKey to dstKey. With addRandomSuffix the
	// destination name gets a fresh random id before the extension, and
	// the returned URL is that of the object actually written.
	Copy(ctx context.Context, srcKey, dstKey string, addRandomSuffix bool) (string, error)

	// Delete removes the object at key. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// List returns every object whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]ListItem, error)
}

// Presigner is implemented by adapters able to hand out time-limited URLs
// that accept a direct PUT of a single key.
type Presigner interface {
	PresignPut(ctx context.Context, key string, expires time.Duration) (string, error)
}

// =============================================================================
// Data Types
// =============================================================================

// PutOptions configures how an object is stored.
type PutOptions struct {
	// ContentType specifies the MIME type of the object.
	// If empty, it is detected from the key's extension.
	ContentType string

	// Size is the length of the data in bytes, or -1 when unknown.
	Size int64

	// MaxSize rejects data larger than this many bytes with ErrTooLarge.
	// Zero means no limit.
	MaxSize int64
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	ETag         string
}

// ListItem describes one stored object in a listing.
type ListItem struct {
	URL      string `json:"url"`
	FileName string `json:"fileName"`

	// UploadedAt is the zero time when the backend did not report one.
	UploadedAt time.Time `json:"uploadedAt,omitzero"`

	// Size is human readable ("1.2 MB"), empty when unknown.
	Size string `json:"size,omitempty"`
}

// =============================================================================
// Configuration Types
// =============================================================================

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	// BasePath is the directory files are written to.
	// Example: "./public/uploads"
	BasePath string

	// BaseURL is the URL prefix files are served from.
	// Example: "/uploads"
	BaseURL string

	// UploadEndpoint is the absolute URL of the application's direct upload
	// route. Presigned URLs are built as {UploadEndpoint}/{key}?token=...
	UploadEndpoint string

	// Signer issues the tokens embedded in presigned URLs. Presigning is
	// unavailable when nil.
	Signer UploadTokenSigner
}

// UploadTokenSigner issues short-lived tokens that authorize one upload.
type UploadTokenSigner interface {
	SignUpload(key string, expires time.Duration) (string, error)
}

// S3Config holds configuration for AWS S3 storage.
type S3Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string

	// Endpoint overrides the AWS endpoint. Used by tests and S3-compatible
	// gateways. Empty means the regional AWS endpoint.
	Endpoint string
}

// R2Config holds configuration for Cloudflare R2 storage.
type R2Config struct {
	// AccountID is your Cloudflare account ID.
	AccountID string

	AccessKeyID     string
	SecretAccessKey string
	Bucket          string

	// PublicDomain is the public host objects are served from, with or
	// without protocol. Example: "photos.example.com"
	// If empty, URLs point at the private bucket endpoint.
	PublicDomain string
}

// MinIOConfig holds configuration for MinIO storage.
type MinIOConfig struct {
	Bucket          string
	Domain          string
	Port            string
	DisableSSL      bool
	AccessKeyID     string
	SecretAccessKey string
}

// VercelBlobConfig holds configuration for Vercel Blob storage.
type VercelBlobConfig struct {
	// Token is the store's read-write token,
	// "vercel_blob_rw_{storeID}_{secret}".
	Token string

	// APIURL overrides the Blob API endpoint. Default:
	// "https://blob.vercel-storage.com"
	APIURL string

	// PublicURL overrides the store URL derived from the token,
	// "https://{storeID}.public.blob.vercel-storage.com".
	PublicURL string

	// HTTPClient is used for every request. Default: a client with a
	// 60 second timeout.
	HTTPClient *http.Client
}
