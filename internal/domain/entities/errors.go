package entities

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable tag clients use to tell failures apart
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation_error"
	KindQuotaExceeded     ErrorKind = "quota_exceeded"
	KindSessionNotFound   ErrorKind = "session_not_found"
	KindIntegrityMismatch ErrorKind = "integrity_mismatch"
	KindNotFound          ErrorKind = "not_found"
	KindAccessDenied      ErrorKind = "access_denied"
	KindSignatureInvalid  ErrorKind = "signature_invalid"
	KindUnauthorized      ErrorKind = "unauthorized"
	KindInternal          ErrorKind = "internal"
)

// Error is a domain failure carrying a kind, a client-safe detail and
// optionally the offending request field.
type Error struct {
	Kind   ErrorKind
	Detail string
	Field  string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind, so errors.Is(err, ErrNotFound) holds for any
// not_found error regardless of its detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Detail == "" && t.Field == ""
}

// Sentinels for errors.Is checks
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrQuotaExceeded     = &Error{Kind: KindQuotaExceeded}
	ErrSessionNotFound   = &Error{Kind: KindSessionNotFound}
	ErrIntegrityMismatch = &Error{Kind: KindIntegrityMismatch}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrAccessDenied      = &Error{Kind: KindAccessDenied}
	ErrSignatureInvalid  = &Error{Kind: KindSignatureInvalid}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized}
)

// NewError builds an error of the given kind with a formatted detail
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// NewValidationError builds a validation error naming the request field at fault
func NewValidationError(field, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Field: field, Detail: fmt.Sprintf(format, args...)}
}

// KindOf reports the kind of err, or KindInternal for anything that is not a
// domain error.
func KindOf(err error) ErrorKind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return KindInternal
}
