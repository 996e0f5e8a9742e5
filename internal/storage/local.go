package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// LocalStorage Implementation
// =============================================================================

// LocalStorage implements Adapter on a directory of the local filesystem.
// Files are served by the application under baseURL.
//
// Security: every key is resolved strictly inside basePath by resolvePath().
type LocalStorage struct {
	basePath       string
	baseURL        string
	uploadEndpoint string
	signer         UploadTokenSigner
	logger         *slog.Logger
}

// NewLocalStorage creates a new LocalStorage instance.
//
// The directory is not touched until the first write.
func NewLocalStorage(cfg LocalConfig, logger *slog.Logger) (*LocalStorage, error) {
	absPath, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base path: %w", err)
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "/uploads"
	}

	logger.Info("initialized local storage",
		"base_path", absPath,
		"base_url", baseURL,
	)

	return &LocalStorage{
		basePath:       absPath,
		baseURL:        baseURL,
		uploadEndpoint: strings.TrimSuffix(cfg.UploadEndpoint, "/"),
		signer:         cfg.Signer,
		logger:         logger,
	}, nil
}

// Dir returns the absolute directory files are stored in.
func (s *LocalStorage) Dir() string { return s.basePath }

func (s *LocalStorage) Backend() Backend { return BackendLocalFS }

func (s *LocalStorage) BaseURLs() []string { return []string{s.baseURL} }

func (s *LocalStorage) URLForKey(key string) string {
	return s.baseURL + "/" + key
}

func (s *LocalStorage) OwnsURL(u string) bool {
	return strings.HasPrefix(u, s.baseURL+"/")
}

// =============================================================================
// Interface Implementation
// =============================================================================

// Put stores data at the specified key, creating the directory on first use.
func (s *LocalStorage) Put(ctx context.Context, key string, data io.Reader, opts PutOptions) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	filePath, err := s.resolvePath(key)
	if err != nil {
		return "", &StorageError{Op: "Put", Key: key, Err: err}
	}

	if err := os.MkdirAll(s.basePath, 0755); err != nil {
		return "", &StorageError{Op: "Put", Key: key, Err: fmt.Errorf("failed to create directory: %w", err)}
	}

	// Write to a temp file and rename so readers never see partial data.
	tmp, err := os.CreateTemp(s.basePath, ".upload-*")
	if err != nil {
		return "", &StorageError{Op: "Put", Key: key, Err: fmt.Errorf("failed to create file: %w", err)}
	}
	defer os.Remove(tmp.Name())

	src := data
	if opts.MaxSize > 0 {
		src = io.LimitReader(data, opts.MaxSize+1)
	}
	written, err := io.Copy(tmp, src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", &StorageError{Op: "Put", Key: key, Err: fmt.Errorf("failed to write file: %w", err)}
	}
	if opts.MaxSize > 0 && written > opts.MaxSize {
		return "", &StorageError{Op: "Put", Key: key, Err: ErrTooLarge}
	}

	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return "", &StorageError{Op: "Put", Key: key, Err: fmt.Errorf("failed to store file: %w", err)}
	}

	s.logger.Debug("stored file",
		"key", key,
		"path", filePath,
		"size", written,
	)

	return s.URLForKey(key), nil
}

// Get retrieves the data at the specified key.
func (s *LocalStorage) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	if ctx.Err() != nil {
		return nil, ObjectInfo{}, ctx.Err()
	}

	filePath, err := s.resolvePath(key)
	if err != nil {
		return nil, ObjectInfo{}, &StorageError{Op: "Get", Key: key, Err: err}
	}

	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ObjectInfo{}, &StorageError{Op: "Get", Key: key, Err: ErrNotFound}
		}
		return nil, ObjectInfo{}, &StorageError{Op: "Get", Key: key, Err: fmt.Errorf("failed to open file: %w", err)}
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, ObjectInfo{}, &StorageError{Op: "Get", Key: key, Err: fmt.Errorf("failed to stat file: %w", err)}
	}

	info := ObjectInfo{
		Key:          key,
		Size:         stat.Size(),
		ContentType:  DetectContentType("", key),
		LastModified: stat.ModTime(),
	}

	return file, info, nil
}

// Copy duplicates srcKey within the directory.
func (s *LocalStorage) Copy(ctx context.Context, srcKey, dstKey string, addRandomSuffix bool) (string, error) {
	if addRandomSuffix {
		dstKey = withRandomSuffix(dstKey)
	}

	src, _, err := s.Get(ctx, srcKey)
	if err != nil {
		return "", &StorageError{Op: "Copy", Key: srcKey, Err: storageCause(err)}
	}
	defer src.Close()

	url, err := s.Put(ctx, dstKey, src, PutOptions{Size: -1})
	if err != nil {
		return "", &StorageError{Op: "Copy", Key: dstKey, Err: storageCause(err)}
	}
	return url, nil
}

// Delete removes the object at the specified key.
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	filePath, err := s.resolvePath(key)
	if err != nil {
		return &StorageError{Op: "Delete", Key: key, Err: err}
	}

	err = os.Remove(filePath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return &StorageError{Op: "Delete", Key: key, Err: fmt.Errorf("failed to delete file: %w", err)}
	}

	s.logger.Debug("deleted file", "key", key, "path", filePath)

	return nil
}

// List returns files whose names start with prefix. A directory that was
// never written to lists as empty.
func (s *LocalStorage) List(ctx context.Context, prefix string) ([]ListItem, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &StorageError{Op: "List", Key: prefix, Err: err}
	}

	var items []ListItem
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasPrefix(name, prefix) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		items = append(items, ListItem{
			URL:        s.URLForKey(name),
			FileName:   name,
			UploadedAt: fi.ModTime(),
			Size:       formatSize(fi.Size()),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].UploadedAt.After(items[j].UploadedAt)
	})

	return items, nil
}

// PresignPut returns a URL on the application's own upload route carrying
// a token scoped to key.
func (s *LocalStorage) PresignPut(ctx context.Context, key string, expires time.Duration) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if _, err := s.resolvePath(key); err != nil {
		return "", &StorageError{Op: "PresignPut", Key: key, Err: err}
	}
	if s.signer == nil || s.uploadEndpoint == "" {
		return "", &StorageError{Op: "PresignPut", Key: key, Err: ErrPresignUnsupported}
	}

	token, err := s.signer.SignUpload(key, expires)
	if err != nil {
		return "", &StorageError{Op: "PresignPut", Key: key, Err: fmt.Errorf("failed to sign upload: %w", err)}
	}

	return fmt.Sprintf("%s/%s?token=%s", s.uploadEndpoint, url.PathEscape(key), url.QueryEscape(token)), nil
}

// =============================================================================
// Internal Helpers
// =============================================================================

// resolvePath converts a storage key to an absolute file path inside
// basePath. Keys are flat names; anything else is ErrInvalidKey.
func (s *LocalStorage) resolvePath(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}

	absPath := filepath.Join(s.basePath, key)
	if filepath.Dir(absPath) != s.basePath {
		return "", ErrInvalidKey
	}

	return absPath, nil
}

var (
	_ Adapter   = (*LocalStorage)(nil)
	_ Presigner = (*LocalStorage)(nil)
)
