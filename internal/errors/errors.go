// Package errors defines the error taxonomy shared by the migration
// pipeline.
//
// Every failure an archive can produce maps onto a small set of sentinel
// errors, split into format errors (the bytes are wrong) and I/O errors
// (the filesystem misbehaved). Call sites wrap the sentinels with context
// via fmt.Errorf and %w; the report layer collapses any wrapped chain back
// to a stable kind string with Kind.
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Format errors: the archive bytes do not decode.
	ErrUnsupportedVersion = errors.New("unsupported archive version")
	ErrTruncated          = errors.New("archive truncated")
	ErrInconsistentLayout = errors.New("inconsistent archive layout")

	// I/O errors: the filesystem operation failed.
	ErrReadFailed   = errors.New("read failed")
	ErrWriteFailed  = errors.New("write failed")
	ErrRenameFailed = errors.New("rename failed")
)

// ============================================================================
// Kind classification
// ============================================================================

// Kind strings are stable identifiers used in reports and logs.
const (
	KindUnsupportedVersion = "unsupported-version"
	KindTruncated          = "truncated"
	KindInconsistentLayout = "inconsistent-layout"
	KindReadFailed         = "read-failed"
	KindWriteFailed        = "write-failed"
	KindRenameFailed       = "rename-failed"
	KindInternal           = "internal"
)

// Kind maps an error (possibly wrapped) to its stable kind string.
// Errors outside the taxonomy classify as KindInternal.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupportedVersion):
		return KindUnsupportedVersion
	case errors.Is(err, ErrTruncated):
		return KindTruncated
	case errors.Is(err, ErrInconsistentLayout):
		return KindInconsistentLayout
	case errors.Is(err, ErrReadFailed):
		return KindReadFailed
	case errors.Is(err, ErrWriteFailed):
		return KindWriteFailed
	case errors.Is(err, ErrRenameFailed):
		return KindRenameFailed
	default:
		return KindInternal
	}
}

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// IsFormat returns true if err is a format error (bad bytes, not bad disk).
func IsFormat(err error) bool {
	return errors.Is(err, ErrUnsupportedVersion) ||
		errors.Is(err, ErrTruncated) ||
		errors.Is(err, ErrInconsistentLayout)
}

// IsIO returns true if err is a filesystem error.
func IsIO(err error) bool {
	return errors.Is(err, ErrReadFailed) ||
		errors.Is(err, ErrWriteFailed) ||
		errors.Is(err, ErrRenameFailed)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Tag attaches a sentinel to an underlying cause so that the result
// matches both via errors.Is. Used to classify raw os/io failures:
//
//	Tag(ErrWriteFailed, err, "create temp file")
func Tag(sentinel, cause error, message string) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", message, sentinel, cause)
}

// Tagf is Tag with formatted context.
func Tagf(sentinel, cause error, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", fmt.Sprintf(format, args...), sentinel, cause)
}
