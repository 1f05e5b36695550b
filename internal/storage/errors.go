package storage

import (
	"errors"
	"fmt"
)

// Kind classifies a storage error. Provider-native errors are caught at
// the adapter boundary and re-classified into one of these kinds before
// crossing into the orchestrator; provider error shapes never leak upward.
type Kind string

const (
	KindUploadFailed        Kind = "UPLOAD_FAILED"
	KindDeleteFailed        Kind = "DELETE_FAILED"
	KindListFailed          Kind = "LIST_FAILED"
	KindURLGenerationFailed Kind = "URL_GENERATION_FAILED"
	KindFileNotFound        Kind = "FILE_NOT_FOUND"
	KindValidationFailed    Kind = "VALIDATION_FAILED"
	KindDatabaseError       Kind = "DATABASE_ERROR"
	KindDownloadFailed      Kind = "DOWNLOAD_FAILED"
	KindNotImplemented      Kind = "NOT_IMPLEMENTED"
)

// Error is the typed failure value used throughout the storage layer.
// It carries a human message and, when available, the original cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the original cause to errors.Is/errors.As chains.
func (e *Error) Unwrap() error { return e.Err }

// Is treats two storage errors with the same kind as equal, so callers
// can match with errors.Is(err, &Error{Kind: KindFileNotFound}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// NewError builds a storage error with no underlying cause.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf builds a storage error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a kind and message to an underlying error. If err is
// already a storage error its kind is preserved and only context is added.
func WrapError(kind Kind, message string, err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		kind = se.Kind
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from an error chain, or "" for non-storage
// errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
