package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// =============================================================================
// MinIOStorage Implementation
// =============================================================================

// MinIOStorage implements Adapter for a MinIO bucket using path-style
// addressing: {http|https}://{domain}[:{port}]/{bucket}/{key}.
type MinIOStorage struct {
	bucket  string
	baseURL string
	logger  *slog.Logger
	client  func() (*minio.Client, error)
}

// NewMinIOStorage creates a new MinIOStorage. The SDK client is created
// on first use.
func NewMinIOStorage(cfg MinIOConfig, logger *slog.Logger) (*MinIOStorage, error) {
	if strings.TrimSpace(cfg.Domain) == "" {
		return nil, errors.New("minio domain is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("minio bucket is required")
	}

	host := cfg.Domain
	if cfg.Port != "" {
		host = host + ":" + cfg.Port
	}
	protocol := "https"
	if cfg.DisableSSL {
		protocol = "http"
	}
	baseURL := fmt.Sprintf("%s://%s/%s", protocol, host, cfg.Bucket)

	logger.Info("initialized MinIO storage", "bucket", cfg.Bucket, "endpoint", host)

	return &MinIOStorage{
		bucket:  cfg.Bucket,
		baseURL: baseURL,
		logger:  logger,
		client: sync.OnceValues(func() (*minio.Client, error) {
			return minio.New(host, &minio.Options{
				Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
				Secure:       !cfg.DisableSSL,
				Region:       "us-east-1",
				BucketLookup: minio.BucketLookupPath,
			})
		}),
	}, nil
}

func (s *MinIOStorage) Backend() Backend { return BackendMinIO }

func (s *MinIOStorage) BaseURLs() []string { return []string{s.baseURL} }

func (s *MinIOStorage) URLForKey(key string) string {
	return s.baseURL + "/" + key
}

func (s *MinIOStorage) OwnsURL(u string) bool {
	return strings.HasPrefix(u, s.baseURL+"/")
}

// Put stores data at the specified key.
func (s *MinIOStorage) Put(ctx context.Context, key string, data io.Reader, opts PutOptions) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", &StorageError{Op: "Put", Key: key, Err: err}
	}
	client, err := s.client()
	if err != nil {
		return "", &StorageError{Op: "Put", Key: key, Err: err}
	}

	size := opts.Size
	if size == 0 {
		size = -1
	}
	if opts.MaxSize > 0 {
		if size > opts.MaxSize {
			return "", &StorageError{Op: "Put", Key: key, Err: ErrTooLarge}
		}
		var n int64
		data, n, err = seekableBody(data, opts.MaxSize)
		if err != nil {
			return "", &StorageError{Op: "Put", Key: key, Err: err}
		}
		size = n
	}

	info, err := client.PutObject(ctx, s.bucket, key, data, size, minio.PutObjectOptions{
		ContentType: DetectContentType(opts.ContentType, key),
	})
	if err != nil {
		return "", &StorageError{Op: "Put", Key: key, Err: wrapMinIOError(err)}
	}

	s.logger.Debug("stored object", "backend", BackendMinIO, "key", key, "size", info.Size)

	return s.URLForKey(key), nil
}

// Get retrieves the data at the specified key.
func (s *MinIOStorage) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	if err := ValidateKey(key); err != nil {
		return nil, ObjectInfo{}, &StorageError{Op: "Get", Key: key, Err: err}
	}
	client, err := s.client()
	if err != nil {
		return nil, ObjectInfo{}, &StorageError{Op: "Get", Key: key, Err: err}
	}

	obj, err := client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, &StorageError{Op: "Get", Key: key, Err: wrapMinIOError(err)}
	}
	// GetObject is lazy; Stat surfaces missing keys.
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, ObjectInfo{}, &StorageError{Op: "Get", Key: key, Err: wrapMinIOError(err)}
	}

	return obj, ObjectInfo{
		Key:          key,
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		LastModified: stat.LastModified,
		ETag:         stat.ETag,
	}, nil
}

// Copy duplicates srcKey server-side.
func (s *MinIOStorage) Copy(ctx context.Context, srcKey, dstKey string, addRandomSuffix bool) (string, error) {
	if err := ValidateKey(srcKey); err != nil {
		return "", &StorageError{Op: "Copy", Key: srcKey, Err: err}
	}
	if addRandomSuffix {
		dstKey = withRandomSuffix(dstKey)
	}
	client, err := s.client()
	if err != nil {
		return "", &StorageError{Op: "Copy", Key: srcKey, Err: err}
	}

	_, err = client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: s.bucket, Object: srcKey},
	)
	if err != nil {
		return "", &StorageError{Op: "Copy", Key: srcKey, Err: wrapMinIOError(err)}
	}

	return s.URLForKey(dstKey), nil
}

// Delete removes the object at the specified key.
func (s *MinIOStorage) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return &StorageError{Op: "Delete", Key: key, Err: err}
	}
	client, err := s.client()
	if err != nil {
		return &StorageError{Op: "Delete", Key: key, Err: err}
	}

	if err := client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if errors.Is(wrapMinIOError(err), ErrNotFound) {
			return nil
		}
		return &StorageError{Op: "Delete", Key: key, Err: wrapMinIOError(err)}
	}

	s.logger.Debug("deleted object", "backend", BackendMinIO, "key", key)

	return nil
}

// List returns every object under prefix.
func (s *MinIOStorage) List(ctx context.Context, prefix string) ([]ListItem, error) {
	client, err := s.client()
	if err != nil {
		return nil, &StorageError{Op: "List", Key: prefix, Err: err}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var items []ListItem
	for obj := range client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, &StorageError{Op: "List", Key: prefix, Err: wrapMinIOError(obj.Err)}
		}
		items = append(items, ListItem{
			URL:        s.URLForKey(obj.Key),
			FileName:   obj.Key,
			UploadedAt: obj.LastModified,
			Size:       formatSize(obj.Size),
		})
	}

	return items, nil
}

// PresignPut returns a URL accepting a single PUT of key.
func (s *MinIOStorage) PresignPut(ctx context.Context, key string, expires time.Duration) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", &StorageError{Op: "PresignPut", Key: key, Err: err}
	}
	client, err := s.client()
	if err != nil {
		return "", &StorageError{Op: "PresignPut", Key: key, Err: err}
	}

	u, err := client.PresignedPutObject(ctx, s.bucket, key, expires)
	if err != nil {
		return "", &StorageError{Op: "PresignPut", Key: key, Err: fmt.Errorf("failed to generate presigned URL: %w", err)}
	}
	return u.String(), nil
}

// wrapMinIOError converts MinIO SDK errors to storage errors.
func wrapMinIOError(err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.Code == "AccessDenied" || resp.StatusCode == http.StatusForbidden:
		return ErrAccessDenied
	}
	return fmt.Errorf("minio operation failed: %w", err)
}

var (
	_ Adapter   = (*MinIOStorage)(nil)
	_ Presigner = (*MinIOStorage)(nil)
)
