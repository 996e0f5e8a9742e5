package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DukeRupert/darkroom/internal/metrics"
)

// =============================================================================
// Router
// =============================================================================

// Router dispatches storage operations across the configured backends.
//
// New objects are always written to the current backend. Operations on an
// existing object are routed to the backend that owns its URL, found by
// asking each backend in ownership order and falling back to Vercel Blob.
type Router struct {
	current  Backend
	adapters map[Backend]Adapter
	order    []Backend
	logger   *slog.Logger
}

// NewRouter validates the backend set and returns a Router.
//
// It fails when the current backend is not among adapters, when the
// ownership order names an unknown or duplicate backend, and when two
// backends serve objects from overlapping URL prefixes. Configured
// backends missing from order are appended in DefaultOwnershipOrder
// order, so only Vercel Blob is ever reached by fallback.
func NewRouter(current Backend, order []Backend, adapters []Adapter, logger *slog.Logger) (*Router, error) {
	byBackend := make(map[Backend]Adapter, len(adapters))
	for _, a := range adapters {
		if _, dup := byBackend[a.Backend()]; dup {
			return nil, fmt.Errorf("storage backend %s configured twice", a.Backend())
		}
		byBackend[a.Backend()] = a
	}

	if _, ok := byBackend[current]; !ok {
		return nil, fmt.Errorf("current storage %s: %w", current, ErrBackendNotConfigured)
	}

	if len(order) == 0 {
		order = DefaultOwnershipOrder
	}
	seen := make(map[Backend]bool, len(order))
	for _, b := range order {
		if !slices.Contains(AllBackends, b) {
			return nil, fmt.Errorf("ownership order: unknown backend %q", b)
		}
		if b == BackendVercelBlob {
			return nil, fmt.Errorf("ownership order: %s is the fallback and cannot be listed", b)
		}
		if seen[b] {
			return nil, fmt.Errorf("ownership order: %s listed twice", b)
		}
		seen[b] = true
	}
	order = completeOrder(order, byBackend)

	if err := checkOverlap(adapters); err != nil {
		return nil, err
	}

	return &Router{
		current:  current,
		adapters: byBackend,
		order:    order,
		logger:   logger,
	}, nil
}

// completeOrder returns a copy of order extended with every configured
// backend it leaves out, except the Vercel Blob fallback.
func completeOrder(order []Backend, configured map[Backend]Adapter) []Backend {
	out := slices.Clone(order)
	for _, b := range DefaultOwnershipOrder {
		if _, ok := configured[b]; ok && !slices.Contains(out, b) {
			out = append(out, b)
		}
	}
	return out
}

// checkOverlap rejects configurations where one backend's base URL is a
// prefix of another's, which would make ownership depend on check order.
func checkOverlap(adapters []Adapter) error {
	for i, a := range adapters {
		for _, b := range adapters[i+1:] {
			for _, ua := range a.BaseURLs() {
				for _, ub := range b.BaseURLs() {
					pa, pb := ua+"/", ub+"/"
					if strings.HasPrefix(pa, pb) || strings.HasPrefix(pb, pa) {
						return fmt.Errorf("%w: %s (%s) and %s (%s)",
							ErrAmbiguousOwnership, a.Backend(), ua, b.Backend(), ub)
					}
				}
			}
		}
	}
	return nil
}

// CurrentBackend returns the backend new objects are written to.
func (r *Router) CurrentBackend() Backend { return r.current }

// Current returns the adapter new objects are written to.
func (r *Router) Current() Adapter { return r.adapters[r.current] }

// Adapter returns the adapter for b, if configured.
func (r *Router) Adapter(b Backend) (Adapter, bool) {
	a, ok := r.adapters[b]
	return a, ok
}

// Configured lists the configured backends in listing order.
func (r *Router) Configured() []Backend {
	var out []Backend
	for _, b := range AllBackends {
		if _, ok := r.adapters[b]; ok {
			out = append(out, b)
		}
	}
	return out
}

// BackendForURL returns the backend owning url.
func (r *Router) BackendForURL(url string) Backend {
	for _, b := range r.order {
		if a, ok := r.adapters[b]; ok && a.OwnsURL(url) {
			return b
		}
	}
	return BackendVercelBlob
}

// resolve finds the adapter owning url and the key of the object in it.
func (r *Router) resolve(url string) (Adapter, string, error) {
	b := r.BackendForURL(url)
	a, ok := r.adapters[b]
	if !ok {
		return nil, "", fmt.Errorf("%s for %s: %w", b, url, ErrBackendNotConfigured)
	}

	key := ""
	for _, base := range a.BaseURLs() {
		if rest, found := strings.CutPrefix(url, base+"/"); found {
			key = rest
			break
		}
	}
	if key == "" {
		key = ParseKey(url).FileName
	}
	if err := ValidateKey(key); err != nil {
		return nil, "", fmt.Errorf("%s: %w", url, err)
	}
	return a, key, nil
}

func (r *Router) observe(b Backend, op string, start time.Time, err error) {
	metrics.StorageOperation(string(b), op, start, err)
}

// =============================================================================
// Operations
// =============================================================================

// PutFile writes data under key on the current backend.
func (r *Router) PutFile(ctx context.Context, key string, data []byte) (string, error) {
	a := r.Current()
	start := time.Now()
	url, err := a.Put(ctx, key, bytes.NewReader(data), PutOptions{Size: int64(len(data))})
	r.observe(a.Backend(), "put", start, err)
	if err != nil {
		return "", err
	}
	return url, nil
}

// ReadFile downloads the object at url from its owning backend.
func (r *Router) ReadFile(ctx context.Context, url string) ([]byte, error) {
	a, key, err := r.resolve(url)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rc, _, err := a.Get(ctx, key)
	if err == nil {
		defer rc.Close()
		var data []byte
		data, err = io.ReadAll(rc)
		if err == nil {
			r.observe(a.Backend(), "get", start, nil)
			return data, nil
		}
		err = &StorageError{Op: "Get", Key: key, Err: err}
	}
	r.observe(a.Backend(), "get", start, err)
	return nil, err
}

// CopyFile copies the object at originURL to destKey within the backend
// that owns it.
func (r *Router) CopyFile(ctx context.Context, originURL, destKey string) (string, error) {
	return r.copy(ctx, originURL, destKey, false)
}

// DuplicateFile copies the object at originURL next to itself under a
// name with a fresh random suffix.
func (r *Router) DuplicateFile(ctx context.Context, originURL string) (string, error) {
	a, key, err := r.resolve(originURL)
	if err != nil {
		return "", err
	}
	start := time.Now()
	url, err := a.Copy(ctx, key, key, true)
	r.observe(a.Backend(), "copy", start, err)
	return url, err
}

func (r *Router) copy(ctx context.Context, originURL, destKey string, addRandomSuffix bool) (string, error) {
	a, key, err := r.resolve(originURL)
	if err != nil {
		return "", err
	}
	start := time.Now()
	url, err := a.Copy(ctx, key, destKey, addRandomSuffix)
	r.observe(a.Backend(), "copy", start, err)
	if err != nil {
		return "", err
	}
	return url, nil
}

// DeleteFile removes the object at url from its owning backend.
func (r *Router) DeleteFile(ctx context.Context, url string) error {
	a, key, err := r.resolve(url)
	if err != nil {
		return err
	}
	start := time.Now()
	err = a.Delete(ctx, key)
	r.observe(a.Backend(), "delete", start, err)
	return err
}

// DeleteFileBestEffort deletes url and reports failure as a
// *BestEffortDeleteError after logging it. Callers may ignore the result.
func (r *Router) DeleteFileBestEffort(ctx context.Context, url string) error {
	err := r.DeleteFile(ctx, url)
	if err == nil {
		return nil
	}

	metrics.StorageObjectOrphaned(string(r.BackendForURL(url)))
	r.logger.Warn("best-effort delete failed; object may be orphaned",
		"url", url,
		"error", err,
	)
	return &BestEffortDeleteError{URL: url, Err: err}
}

// MoveFile copies originURL to destKey, then deletes the origin. The origin
// is only deleted after the copy succeeded, and a failed delete does not
// fail the move.
func (r *Router) MoveFile(ctx context.Context, originURL, destKey string) (string, error) {
	url, err := r.CopyFile(ctx, originURL, destKey)
	if err != nil {
		return "", err
	}
	_ = r.DeleteFileBestEffort(ctx, originURL)
	return url, nil
}

// DeleteFilesWithPrefix deletes every object, on any backend, whose name
// starts with prefix.
func (r *Router) DeleteFilesWithPrefix(ctx context.Context, prefix string) error {
	if prefix == "" {
		return fmt.Errorf("delete with empty prefix: %w", ErrInvalidKey)
	}

	items := r.GetStorageURLsForPrefix(ctx, prefix)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, item := range items {
		g.Go(func() error {
			return r.DeleteFile(ctx, item.URL)
		})
	}
	return g.Wait()
}

// ListPrefix lists prefix on every configured backend in parallel. A
// backend that fails contributes no items and one PartialListError.
// Items are sorted most recent first; items without a timestamp go last.
func (r *Router) ListPrefix(ctx context.Context, prefix string) ([]ListItem, []*PartialListError) {
	backends := r.Configured()
	results := make([][]ListItem, len(backends))
	failures := make([]error, len(backends))

	var g errgroup.Group
	for i, b := range backends {
		a := r.adapters[b]
		g.Go(func() error {
			start := time.Now()
			items, err := a.List(ctx, prefix)
			r.observe(b, "list", start, err)
			results[i], failures[i] = items, err
			return nil
		})
	}
	_ = g.Wait()

	var items []ListItem
	var partial []*PartialListError
	for i, b := range backends {
		if failures[i] != nil {
			metrics.StorageListFailed(string(b))
			partial = append(partial, &PartialListError{Backend: b, Err: failures[i]})
			continue
		}
		items = append(items, results[i]...)
	}

	SortListItems(items)
	return items, partial
}

// GetStorageURLsForPrefix is ListPrefix with backend failures logged and
// otherwise ignored.
func (r *Router) GetStorageURLsForPrefix(ctx context.Context, prefix string) []ListItem {
	items, partial := r.ListPrefix(ctx, prefix)
	for _, p := range partial {
		r.logger.Warn("storage listing failed",
			"backend", p.Backend,
			"prefix", prefix,
			"error", p.Err,
		)
	}
	return items
}

// TestConnection lists every configured backend and reports the ones that
// failed.
func (r *Router) TestConnection(ctx context.Context) error {
	_, partial := r.ListPrefix(ctx, "")
	errs := make([]error, len(partial))
	for i, p := range partial {
		errs[i] = p
	}
	return errors.Join(errs...)
}

// PresignUpload returns a URL accepting a direct PUT of key on the current
// backend, valid for expires.
func (r *Router) PresignUpload(ctx context.Context, key string, expires time.Duration) (string, error) {
	a := r.Current()
	p, ok := a.(Presigner)
	if !ok {
		return "", &StorageError{Op: "PresignPut", Key: key, Err: ErrPresignUnsupported}
	}

	start := time.Now()
	url, err := p.PresignPut(ctx, key, expires)
	r.observe(a.Backend(), "presign", start, err)
	if err != nil {
		return "", err
	}
	metrics.PresignedURLIssued(string(a.Backend()))
	return url, nil
}

// SortListItems orders items most recent first, keeping items without a
// timestamp at the end. The sort is stable.
func SortListItems(items []ListItem) {
	slices.SortStableFunc(items, func(a, b ListItem) int {
		switch {
		case a.UploadedAt.IsZero() && b.UploadedAt.IsZero():
			return 0
		case a.UploadedAt.IsZero():
			return 1
		case b.UploadedAt.IsZero():
			return -1
		}
		return b.UploadedAt.Compare(a.UploadedAt)
	})
}
