package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	defaultVercelBlobAPIURL = "https://blob.vercel-storage.com"
	vercelBlobAPIVersion    = "7"
	vercelBlobListLimit     = 1000
)

var vercelBlobTokenPattern = regexp.MustCompile(`(?i)^vercel_blob_rw_([a-z0-9]+)_[a-z0-9]+$`)

// VercelBlobStoreID extracts the store id from a read-write token, or ""
// when the token is malformed.
func VercelBlobStoreID(token string) string {
	m := vercelBlobTokenPattern.FindStringSubmatch(token)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// =============================================================================
// VercelBlobStorage Implementation
// =============================================================================

// VercelBlobStorage implements Adapter on the Vercel Blob REST API.
// Vercel Blob has no presigned PUT; uploads from clients go through the
// server.
type VercelBlobStorage struct {
	token   string
	apiURL  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewVercelBlobStorage creates a new VercelBlobStorage.
func NewVercelBlobStorage(cfg VercelBlobConfig, logger *slog.Logger) (*VercelBlobStorage, error) {
	baseURL := strings.TrimSuffix(cfg.PublicURL, "/")
	if baseURL == "" {
		storeID := VercelBlobStoreID(cfg.Token)
		if storeID == "" {
			return nil, fmt.Errorf("vercel blob: malformed read-write token")
		}
		baseURL = fmt.Sprintf("https://%s.public.blob.vercel-storage.com", storeID)
	}

	apiURL := strings.TrimSuffix(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultVercelBlobAPIURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	logger.Info("initialized Vercel Blob storage", "base_url", baseURL)

	return &VercelBlobStorage{
		token:   cfg.Token,
		apiURL:  apiURL,
		baseURL: baseURL,
		client:  client,
		logger:  logger,
	}, nil
}

func (s *VercelBlobStorage) Backend() Backend { return BackendVercelBlob }

func (s *VercelBlobStorage) BaseURLs() []string { return []string{s.baseURL} }

func (s *VercelBlobStorage) URLForKey(key string) string {
	return s.baseURL + "/" + key
}

func (s *VercelBlobStorage) OwnsURL(u string) bool {
	return strings.HasPrefix(u, s.baseURL+"/")
}

// =============================================================================
// API Types
// =============================================================================

type vercelBlobPutResponse struct {
	URL      string `json:"url"`
	Pathname string `json:"pathname"`
}

type vercelBlob struct {
	URL        string    `json:"url"`
	Pathname   string    `json:"pathname"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}

type vercelBlobListResponse struct {
	Blobs   []vercelBlob `json:"blobs"`
	Cursor  string       `json:"cursor"`
	HasMore bool         `json:"hasMore"`
}

type vercelBlobErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// Interface Implementation
// =============================================================================

// Put uploads data as a public blob at exactly key.
func (s *VercelBlobStorage) Put(ctx context.Context, key string, data io.Reader, opts PutOptions) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", &StorageError{Op: "Put", Key: key, Err: err}
	}

	body, size, err := seekableBody(data, opts.MaxSize)
	if err != nil {
		return "", &StorageError{Op: "Put", Key: key, Err: err}
	}

	req, err := s.newRequest(ctx, http.MethodPut, "/"+url.PathEscape(key), nil, body)
	if err != nil {
		return "", &StorageError{Op: "Put", Key: key, Err: err}
	}
	req.ContentLength = size
	req.Header.Set("x-add-random-suffix", "0")
	req.Header.Set("x-allow-overwrite", "1")
	req.Header.Set("x-content-type", DetectContentType(opts.ContentType, key))

	var resp vercelBlobPutResponse
	if err := s.do(req, &resp); err != nil {
		return "", &StorageError{Op: "Put", Key: key, Err: err}
	}

	s.logger.Debug("stored blob", "key", key, "url", resp.URL)

	return resp.URL, nil
}

// Get downloads the blob from its public URL.
func (s *VercelBlobStorage) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	if err := ValidateKey(key); err != nil {
		return nil, ObjectInfo{}, &StorageError{Op: "Get", Key: key, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URLForKey(key), nil)
	if err != nil {
		return nil, ObjectInfo{}, &StorageError{Op: "Get", Key: key, Err: err}
	}
	res, err := s.client.Do(req)
	if err != nil {
		return nil, ObjectInfo{}, &StorageError{Op: "Get", Key: key, Err: err}
	}
	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		return nil, ObjectInfo{}, &StorageError{Op: "Get", Key: key, Err: errorForStatus(res.StatusCode, "")}
	}

	info := ObjectInfo{
		Key:         key,
		Size:        res.ContentLength,
		ContentType: res.Header.Get("Content-Type"),
		ETag:        res.Header.Get("ETag"),
	}
	if lm, err := http.ParseTime(res.Header.Get("Last-Modified")); err == nil {
		info.LastModified = lm
	}

	return res.Body, info, nil
}

// Copy duplicates a blob server-side.
func (s *VercelBlobStorage) Copy(ctx context.Context, srcKey, dstKey string, addRandomSuffix bool) (string, error) {
	if err := ValidateKey(srcKey); err != nil {
		return "", &StorageError{Op: "Copy", Key: srcKey, Err: err}
	}
	if err := ValidateKey(dstKey); err != nil {
		return "", &StorageError{Op: "Copy", Key: dstKey, Err: err}
	}

	query := url.Values{"fromUrl": {s.URLForKey(srcKey)}}
	req, err := s.newRequest(ctx, http.MethodPut, "/"+url.PathEscape(dstKey), query, nil)
	if err != nil {
		return "", &StorageError{Op: "Copy", Key: srcKey, Err: err}
	}
	if addRandomSuffix {
		req.Header.Set("x-add-random-suffix", "1")
	} else {
		req.Header.Set("x-add-random-suffix", "0")
		req.Header.Set("x-allow-overwrite", "1")
	}

	var resp vercelBlobPutResponse
	if err := s.do(req, &resp); err != nil {
		return "", &StorageError{Op: "Copy", Key: srcKey, Err: err}
	}

	return resp.URL, nil
}

// Delete removes a blob. Vercel Blob treats absent URLs as deleted.
func (s *VercelBlobStorage) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return &StorageError{Op: "Delete", Key: key, Err: err}
	}

	payload, err := json.Marshal(map[string][]string{"urls": {s.URLForKey(key)}})
	if err != nil {
		return &StorageError{Op: "Delete", Key: key, Err: err}
	}
	req, err := s.newRequest(ctx, http.MethodPost, "/delete", nil, bytes.NewReader(payload))
	if err != nil {
		return &StorageError{Op: "Delete", Key: key, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	if err := s.do(req, nil); err != nil {
		if IsNotFound(err) {
			return nil
		}
		return &StorageError{Op: "Delete", Key: key, Err: err}
	}

	s.logger.Debug("deleted blob", "key", key)

	return nil
}

// List follows the cursor until every blob under prefix has been read.
func (s *VercelBlobStorage) List(ctx context.Context, prefix string) ([]ListItem, error) {
	var items []ListItem
	cursor := ""
	for {
		query := url.Values{
			"prefix": {prefix},
			"limit":  {fmt.Sprint(vercelBlobListLimit)},
		}
		if cursor != "" {
			query.Set("cursor", cursor)
		}
		req, err := s.newRequest(ctx, http.MethodGet, "", query, nil)
		if err != nil {
			return nil, &StorageError{Op: "List", Key: prefix, Err: err}
		}

		var page vercelBlobListResponse
		if err := s.do(req, &page); err != nil {
			return nil, &StorageError{Op: "List", Key: prefix, Err: err}
		}
		for _, b := range page.Blobs {
			items = append(items, ListItem{
				URL:        b.URL,
				FileName:   ParseKey(b.URL).FileName,
				UploadedAt: b.UploadedAt,
				Size:       formatSize(b.Size),
			})
		}

		if !page.HasMore || page.Cursor == "" {
			return items, nil
		}
		cursor = page.Cursor
	}
}

// =============================================================================
// Internal Helpers
// =============================================================================

func (s *VercelBlobStorage) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := s.apiURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("x-api-version", vercelBlobAPIVersion)
	return req, nil
}

// do sends req and decodes a JSON response into out (when non-nil).
func (s *VercelBlobStorage) do(req *http.Request, out any) error {
	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("vercel blob request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var apiErr vercelBlobErrorResponse
		_ = json.NewDecoder(io.LimitReader(res.Body, 64<<10)).Decode(&apiErr)
		return errorForStatus(res.StatusCode, apiErr.Error.Message)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("vercel blob: invalid response: %w", err)
	}
	return nil
}

// errorForStatus maps an HTTP status from a storage service to a sentinel.
func errorForStatus(status int, message string) error {
	switch status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAccessDenied
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return fmt.Errorf("unexpected status %d: %s", status, message)
}

var _ Adapter = (*VercelBlobStorage)(nil)
