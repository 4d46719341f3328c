package core

import (
	"errors"
	"fmt"
	"net/http"
)

// Error types for better error handling
var (
	// Resolution errors
	ErrNotFound             = errors.New("not found")
	ErrUnknownDirectoryType = errors.New("unknown directory type")

	// Thumbnail errors
	ErrImageDecode = errors.New("cannot decode image")
	ErrCacheWrite  = errors.New("cannot write cache file")

	// Search errors
	ErrSearchDisabled = errors.New("search is disabled")

	// File watcher errors
	ErrWatcherNotRunning = errors.New("file watcher not running")
	ErrWatcherRunning    = errors.New("file watcher already running")
	ErrWatcherClosed     = errors.New("file watcher closed")

	// Security errors
	ErrRateLimited  = errors.New("rate limited")
	ErrInvalidInput = errors.New("invalid input")
)

// ResolveError wraps path classification errors
type ResolveError struct {
	Op   string
	Path string
	Err  error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// NewResolveError creates a new ResolveError
func NewResolveError(op, path string, err error) *ResolveError {
	return &ResolveError{
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// UnknownDirectoryTypeError is returned when a metadata.json names a
// directoryType other than page or gallery.
type UnknownDirectoryTypeError struct {
	Dir  string
	Type DirectoryType
}

func (e *UnknownDirectoryTypeError) Error() string {
	return fmt.Sprintf("directory %s: %v %q", e.Dir, ErrUnknownDirectoryType, string(e.Type))
}

func (e *UnknownDirectoryTypeError) Unwrap() error {
	return ErrUnknownDirectoryType
}

// ThumbnailError wraps thumbnail generation errors
type ThumbnailError struct {
	Op     string
	Source string
	Err    error
}

func (e *ThumbnailError) Error() string {
	return fmt.Sprintf("thumbnail %s %s: %v", e.Op, e.Source, e.Err)
}

func (e *ThumbnailError) Unwrap() error {
	return e.Err
}

// NewThumbnailError creates a new ThumbnailError
func NewThumbnailError(op, source string, err error) *ThumbnailError {
	return &ThumbnailError{
		Op:     op,
		Source: source,
		Err:    err,
	}
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %s (value: %v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// HTTPStatus maps an error returned by the classifier or the thumbnail
// cache to the status code sent to the client.
func HTTPStatus(err error) int {
	var verr *ValidationError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrSearchDisabled):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
