package storage

import (
	"errors"
	"fmt"
)

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrNotFound is returned when a requested object doesn't exist.
	ErrNotFound = errors.New("object not found")

	// ErrInvalidKey is returned when a storage key is empty, malformed or
	// tries to escape its namespace (e.g. "../").
	ErrInvalidKey = errors.New("invalid storage key")

	// ErrTooLarge is returned when an object exceeds the maximum allowed size.
	ErrTooLarge = errors.New("object exceeds maximum size")

	// ErrAccessDenied is returned when the backend rejects the credentials
	// or the operation.
	ErrAccessDenied = errors.New("access denied")

	// ErrBackendNotConfigured is returned when an operation is routed to a
	// backend that has no configuration.
	ErrBackendNotConfigured = errors.New("storage backend not configured")

	// ErrPresignUnsupported is returned when the current backend cannot
	// issue presigned upload URLs.
	ErrPresignUnsupported = errors.New("storage backend does not support presigned uploads")

	// ErrAmbiguousOwnership is returned at startup when two configured
	// backends serve objects from overlapping URL prefixes.
	ErrAmbiguousOwnership = errors.New("storage backends have overlapping base URLs")
)

// =============================================================================
// Structured Error Types
// =============================================================================

// StorageError wraps storage operation errors with additional context.
// It supports errors.Is against the sentinels above.
type StorageError struct {
	// Op is the operation that failed (e.g., "Put", "Copy", "Delete").
	Op string

	// Key is the storage key involved in the operation.
	Key string

	// Err is the underlying error that occurred.
	Err error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// PartialListError records a backend whose listing failed during an
// aggregate listing. The backend contributes zero items.
type PartialListError struct {
	Backend Backend
	Err     error
}

func (e *PartialListError) Error() string {
	return fmt.Sprintf("list %s: %v", e.Backend, e.Err)
}

func (e *PartialListError) Unwrap() error {
	return e.Err
}

// BestEffortDeleteError records a delete that was allowed to fail, such as
// removing the source of a completed move. The object may be orphaned.
type BestEffortDeleteError struct {
	URL string
	Err error
}

func (e *BestEffortDeleteError) Error() string {
	return fmt.Sprintf("best-effort delete of %s failed: %v", e.URL, e.Err)
}

func (e *BestEffortDeleteError) Unwrap() error {
	return e.Err
}

// =============================================================================
// Helper Functions
// =============================================================================

// IsNotFound returns true if the error indicates an object was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAccessDenied returns true if the error indicates access was denied.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsInvalidKey returns true if the error indicates an invalid storage key.
func IsInvalidKey(err error) bool {
	return errors.Is(err, ErrInvalidKey)
}

// IsTooLarge returns true if the error indicates an object was too large.
func IsTooLarge(err error) bool {
	return errors.Is(err, ErrTooLarge)
}

// storageCause strips one StorageError layer so adapters composing other
// operations don't nest them.
func storageCause(err error) error {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Err
	}
	return err
}
