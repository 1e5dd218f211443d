package services

import (
	"errors"
	"fmt"

	"Bootcamp/internal/store"
)

type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindForbidden  ErrorKind = "forbidden"
	KindConflict   ErrorKind = "conflict"
	KindStorage    ErrorKind = "storage"
	KindUpstream   ErrorKind = "upstream"
)

// Error is the error every exported service operation returns. Handlers map
// Kind to an HTTP status; Err never leaves the process.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same call may succeed later.
func (e *Error) Retryable() bool {
	return e.Kind == KindStorage || e.Kind == KindUpstream
}

// KindOf extracts the kind of err, or KindStorage for foreign errors.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindStorage
}

func validationError(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

func notFoundError(code, msg string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: msg}
}

func forbiddenError(msg string) *Error {
	return &Error{Kind: KindForbidden, Code: "forbidden", Message: msg}
}

func storageError(op string, err error) *Error {
	if errors.Is(err, store.ErrInvalidRow) {
		return &Error{Kind: KindValidation, Code: "invalid_row", Message: op, Err: err}
	}
	return &Error{Kind: KindStorage, Code: "storage_failure", Message: op, Err: err}
}

func upstreamError(code, msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Code: code, Message: msg, Err: err}
}
