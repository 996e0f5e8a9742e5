package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// =============================================================================
// S3Storage Implementation
// =============================================================================

// S3Storage implements Adapter for S3-compatible object stores reached
// through aws-sdk-go-v2. NewAWSS3Storage and NewR2Storage configure it for
// AWS S3 and Cloudflare R2.
type S3Storage struct {
	backend  Backend
	bucket   string
	baseURLs []string // first entry is used for new URLs
	logger   *slog.Logger

	// clients are built on first use and shared for the process lifetime.
	clients func() s3Clients
}

type s3Clients struct {
	client  *s3.Client
	presign *s3.PresignClient
}

// s3Options are the connection settings shared by the S3 flavours.
type s3Options struct {
	region          string
	endpoint        string
	pathStyle       bool
	accessKeyID     string
	secretAccessKey string
}

func newS3Storage(backend Backend, bucket string, baseURLs []string, opts s3Options, logger *slog.Logger) *S3Storage {
	for i, u := range baseURLs {
		baseURLs[i] = strings.TrimSuffix(u, "/")
	}
	return &S3Storage{
		backend:  backend,
		bucket:   bucket,
		baseURLs: baseURLs,
		logger:   logger,
		clients: sync.OnceValue(func() s3Clients {
			awsCfg := aws.Config{
				Region: opts.region,
				Credentials: credentials.NewStaticCredentialsProvider(
					opts.accessKeyID,
					opts.secretAccessKey,
					"",
				),
			}
			client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
				if opts.endpoint != "" {
					o.BaseEndpoint = aws.String(opts.endpoint)
				}
				o.UsePathStyle = opts.pathStyle
			})
			logger.Debug("created s3 client",
				"backend", backend,
				"bucket", bucket,
				"endpoint", opts.endpoint,
			)
			return s3Clients{client: client, presign: s3.NewPresignClient(client)}
		}),
	}
}

// NewAWSS3Storage creates an adapter for an AWS S3 bucket. Objects are
// addressed as https://{bucket}.s3.{region}.amazonaws.com/{key}.
func NewAWSS3Storage(cfg S3Config, logger *slog.Logger) (*S3Storage, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("aws s3: bucket and region are required")
	}

	base := fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	opts := s3Options{
		region:          cfg.Region,
		endpoint:        cfg.Endpoint,
		accessKeyID:     cfg.AccessKeyID,
		secretAccessKey: cfg.SecretAccessKey,
	}
	if cfg.Endpoint != "" {
		opts.pathStyle = true
	}

	logger.Info("initialized AWS S3 storage", "bucket", cfg.Bucket, "region", cfg.Region)

	return newS3Storage(BackendAWSS3, cfg.Bucket, []string{base}, opts, logger), nil
}

func (s *S3Storage) Backend() Backend { return s.backend }

func (s *S3Storage) BaseURLs() []string { return s.baseURLs }

func (s *S3Storage) URLForKey(key string) string {
	return s.baseURLs[0] + "/" + key
}

func (s *S3Storage) OwnsURL(u string) bool {
	for _, base := range s.baseURLs {
		if strings.HasPrefix(u, base+"/") {
			return true
		}
	}
	return false
}

// =============================================================================
// Interface Implementation
// =============================================================================

// Put stores data at the specified key.
func (s *S3Storage) Put(ctx context.Context, key string, data io.Reader, opts PutOptions) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", &StorageError{Op: "Put", Key: key, Err: err}
	}

	// The SDK signs the payload, so it needs a seekable body.
	body, size, err := seekableBody(data, opts.MaxSize)
	if err != nil {
		return "", &StorageError{Op: "Put", Key: key, Err: err}
	}

	result, err := s.clients().client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(DetectContentType(opts.ContentType, key)),
	})
	if err != nil {
		return "", &StorageError{Op: "Put", Key: key, Err: s.wrapS3Error(err)}
	}

	s.logger.Debug("stored object",
		"backend", s.backend,
		"key", key,
		"etag", aws.ToString(result.ETag),
	)

	return s.URLForKey(key), nil
}

// Get retrieves the data at the specified key.
func (s *S3Storage) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	if err := ValidateKey(key); err != nil {
		return nil, ObjectInfo{}, &StorageError{Op: "Get", Key: key, Err: err}
	}

	result, err := s.clients().client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, ObjectInfo{}, &StorageError{Op: "Get", Key: key, Err: s.wrapS3Error(err)}
	}

	info := ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(result.ContentLength),
		ContentType:  aws.ToString(result.ContentType),
		LastModified: aws.ToTime(result.LastModified),
		ETag:         aws.ToString(result.ETag),
	}

	return result.Body, info, nil
}

// Copy duplicates srcKey inside the bucket.
func (s *S3Storage) Copy(ctx context.Context, srcKey, dstKey string, addRandomSuffix bool) (string, error) {
	if err := ValidateKey(srcKey); err != nil {
		return "", &StorageError{Op: "Copy", Key: srcKey, Err: err}
	}
	if addRandomSuffix {
		dstKey = withRandomSuffix(dstKey)
	}
	if err := ValidateKey(dstKey); err != nil {
		return "", &StorageError{Op: "Copy", Key: dstKey, Err: err}
	}

	_, err := s.clients().client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(s.bucket + "/" + url.PathEscape(srcKey)),
		Key:        aws.String(dstKey),
	})
	if err != nil {
		return "", &StorageError{Op: "Copy", Key: srcKey, Err: s.wrapS3Error(err)}
	}

	s.logger.Debug("copied object", "backend", s.backend, "from", srcKey, "to", dstKey)

	return s.URLForKey(dstKey), nil
}

// Delete removes the object at the specified key.
// S3 reports success for absent keys.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return &StorageError{Op: "Delete", Key: key, Err: err}
	}

	_, err := s.clients().client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return &StorageError{Op: "Delete", Key: key, Err: s.wrapS3Error(err)}
	}

	s.logger.Debug("deleted object", "backend", s.backend, "key", key)

	return nil
}

// List pages through every object under prefix.
func (s *S3Storage) List(ctx context.Context, prefix string) ([]ListItem, error) {
	paginator := s3.NewListObjectsV2Paginator(s.clients().client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var items []ListItem
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, &StorageError{Op: "List", Key: prefix, Err: s.wrapS3Error(err)}
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			items = append(items, ListItem{
				URL:        s.URLForKey(key),
				FileName:   key,
				UploadedAt: aws.ToTime(obj.LastModified),
				Size:       formatSize(aws.ToInt64(obj.Size)),
			})
		}
	}

	return items, nil
}

// PresignPut returns a URL accepting a single PUT of key.
func (s *S3Storage) PresignPut(ctx context.Context, key string, expires time.Duration) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", &StorageError{Op: "PresignPut", Key: key, Err: err}
	}

	request, err := s.clients().presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", &StorageError{Op: "PresignPut", Key: key, Err: fmt.Errorf("failed to generate presigned URL: %w", err)}
	}

	return request.URL, nil
}

// =============================================================================
// Internal Helpers
// =============================================================================

// seekableBody returns data as an io.ReadSeeker with its length, buffering
// it in memory when necessary.
func seekableBody(data io.Reader, maxSize int64) (io.ReadSeeker, int64, error) {
	if br, ok := data.(*bytes.Reader); ok && (maxSize <= 0 || br.Size() <= maxSize) {
		return br, int64(br.Len()), nil
	}

	src := data
	if maxSize > 0 {
		src = io.LimitReader(data, maxSize+1)
	}
	buf, err := io.ReadAll(src)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read data: %w", err)
	}
	if maxSize > 0 && int64(len(buf)) > maxSize {
		return nil, 0, ErrTooLarge
	}
	return bytes.NewReader(buf), int64(len(buf)), nil
}

// wrapS3Error converts S3 SDK errors to storage errors.
func (s *S3Storage) wrapS3Error(err error) error {
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return ErrNotFound
	}

	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return ErrNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return ErrNotFound
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return ErrAccessDenied
		}
	}

	var httpErr interface{ HTTPStatusCode() int }
	if errors.As(err, &httpErr) {
		switch httpErr.HTTPStatusCode() {
		case http.StatusNotFound:
			return ErrNotFound
		case http.StatusForbidden:
			return ErrAccessDenied
		}
	}

	return fmt.Errorf("%s operation failed: %w", s.backend, err)
}

var (
	_ Adapter   = (*S3Storage)(nil)
	_ Presigner = (*S3Storage)(nil)
)
