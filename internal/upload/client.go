// Package upload is the client side of presigned uploads: it asks the
// application for a signed URL scoped to one key and PUTs the file to it,
// retrying transient failures.
package upload

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
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/DukeRupert/darkroom/internal/storage"
)

const (
	defaultAttempts       = 3
	defaultBackoffUnit    = time.Second
	defaultPresignTimeout = 30 * time.Second
	defaultUploadTimeout  = 300 * time.Second

	unauthorizedBody = "Unauthorized request"
)

// ErrUnauthorized is returned when the presign endpoint rejects the
// session. It is never retried.
var ErrUnauthorized = errors.New("upload unauthorized")

// UploadError is returned after every attempt failed.
type UploadError struct {
	Key      string
	Attempts int
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s failed after %d attempts: %v", e.Key, e.Attempts, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Config configures a Client.
type Config struct {
	// PresignEndpoint is the URL of the presigned-url route, without the
	// trailing key.
	PresignEndpoint string
	// StorageBaseURL is the public base URL of the current storage
	// backend. Upload returns StorageBaseURL + "/" + key.
	StorageBaseURL string
	// SessionToken is sent as a bearer token to the presign endpoint.
	SessionToken string

	HTTPClient     *http.Client
	Attempts       int
	BackoffUnit    time.Duration
	PresignTimeout time.Duration
	UploadTimeout  time.Duration
}

// Client uploads files through presigned URLs.
type Client struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// NewClient fills in defaults for zero Config fields.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.PresignEndpoint == "" {
		return nil, errors.New("upload: presign endpoint is required")
	}
	cfg.PresignEndpoint = strings.TrimSuffix(cfg.PresignEndpoint, "/")
	cfg.StorageBaseURL = strings.TrimSuffix(cfg.StorageBaseURL, "/")
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultAttempts
	}
	if cfg.BackoffUnit <= 0 {
		cfg.BackoffUnit = defaultBackoffUnit
	}
	if cfg.PresignTimeout <= 0 {
		cfg.PresignTimeout = defaultPresignTimeout
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = defaultUploadTimeout
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	return &Client{cfg: cfg, client: client, logger: logger}, nil
}

// Upload stores data under "{fileNameBase}[-{id}].{ext}" and returns its
// storage URL. Each attempt presigns and uploads from scratch.
func (c *Client) Upload(ctx context.Context, data []byte, fileNameBase, ext string, addRandomSuffix bool) (string, error) {
	key := fileNameBase
	if addRandomSuffix {
		key += "-" + storage.GenerateStorageID()
	}
	key += "." + ext
	if err := storage.ValidateKey(key); err != nil {
		return "", fmt.Errorf("upload %q: %w", key, err)
	}

	var attempts int
	var lastErr error
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		attempts++
		err := c.attempt(ctx, key, data)
		if err == nil {
			return nil
		}
		lastErr = err
		c.logger.Warn("upload attempt failed",
			"key", key,
			"attempt", attempts,
			"max_attempts", c.cfg.Attempts,
			"error", err,
		)
		if errors.Is(err, ErrUnauthorized) {
			return err
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return "", ErrUnauthorized
		}
		if lastErr == nil {
			lastErr = err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			lastErr = fmt.Errorf("%w (last error: %v)", ctxErr, lastErr)
		}
		return "", &UploadError{Key: key, Attempts: attempts, Err: lastErr}
	}

	return c.cfg.StorageBaseURL + "/" + key, nil
}

// backoff waits BackoffUnit × attempt between attempts.
func (c *Client) backoff() retry.Backoff {
	var n atomic.Int64
	b := retry.BackoffFunc(func() (time.Duration, bool) {
		return time.Duration(n.Add(1)) * c.cfg.BackoffUnit, false
	})
	return retry.WithMaxRetries(uint64(c.cfg.Attempts-1), b)
}

func (c *Client) attempt(ctx context.Context, key string, data []byte) error {
	signed, err := c.presign(ctx, key)
	if err != nil {
		return err
	}
	return c.put(ctx, signed, key, data)
}

func (c *Client) presign(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.PresignTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.PresignEndpoint+"/"+url.PathEscape(key), nil)
	if err != nil {
		return "", err
	}
	if c.cfg.SessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.SessionToken)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("presign request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 16<<10))
	if err != nil {
		return "", fmt.Errorf("presign response: %w", err)
	}
	text := strings.TrimSpace(string(body))

	if res.StatusCode == http.StatusUnauthorized || text == unauthorizedBody {
		return "", ErrUnauthorized
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("presign failed with status %d: %s", res.StatusCode, text)
	}
	if text == "" {
		return "", errors.New("presign returned an empty URL")
	}

	return c.resolve(text)
}

// resolve makes a relative signed URL absolute against the presign
// endpoint, as local storage signs paths on the application itself.
func (c *Client) resolve(signed string) (string, error) {
	u, err := url.Parse(signed)
	if err != nil {
		return "", fmt.Errorf("invalid signed URL: %w", err)
	}
	if u.IsAbs() {
		return signed, nil
	}
	base, err := url.Parse(c.cfg.PresignEndpoint)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(u).String(), nil
}

func (c *Client) put(ctx context.Context, signed, key string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.UploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, signed, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.ContentLength = int64(len(data))
	req.Header.Set("Content-Type", storage.DetectContentType("", key))

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload request: %w", err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("upload failed with status %d", res.StatusCode)
	}
	return nil
}
