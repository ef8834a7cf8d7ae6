// Package apperr defines the error kinds surfaced by the upload flow and
// their HTTP translation.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the client.
type Kind string

const (
	KindUnauthorized        Kind = "Unauthorized"
	KindForbidden           Kind = "Forbidden"
	KindMissingParameter    Kind = "MissingParameter"
	KindInvalidArgument     Kind = "InvalidArgument"
	KindUploadIncomplete    Kind = "UploadIncomplete"
	KindUpstreamUnavailable Kind = "UpstreamUnavailable"
	KindUploadFailed        Kind = "UploadFailed"
	KindCancelled           Kind = "Cancelled"
)

// StatusClientClosedRequest is used for cancelled operations.
const StatusClientClosedRequest = 499

// Error is a classified error. Message is safe to show to users; Err holds
// the underlying cause and is never written to clients.
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

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func Unauthorized(format string, args ...any) *Error {
	return newError(KindUnauthorized, nil, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return newError(KindForbidden, nil, format, args...)
}

func MissingParameter(format string, args ...any) *Error {
	return newError(KindMissingParameter, nil, format, args...)
}

func InvalidArgument(format string, args ...any) *Error {
	return newError(KindInvalidArgument, nil, format, args...)
}

func UploadIncomplete(err error, format string, args ...any) *Error {
	return newError(KindUploadIncomplete, err, format, args...)
}

func UpstreamUnavailable(err error, format string, args ...any) *Error {
	return newError(KindUpstreamUnavailable, err, format, args...)
}

func UploadFailed(err error, format string, args ...any) *Error {
	return newError(KindUploadFailed, err, format, args...)
}

func Cancelled(format string, args ...any) *Error {
	return newError(KindCancelled, nil, format, args...)
}

// KindOf returns the kind of err, or KindUpstreamUnavailable for
// unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstreamUnavailable
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Status maps a kind to its HTTP status code.
func Status(kind Kind) int {
	switch kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindMissingParameter, KindInvalidArgument, KindUploadIncomplete:
		return http.StatusBadRequest
	case KindCancelled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// KindForStatus is the inverse of Status used by clients decoding a
// response without a code.
func KindForStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusBadRequest:
		return KindInvalidArgument
	default:
		return KindUpstreamUnavailable
	}
}

// PublicMessage returns the user-facing message for err. Unclassified
// errors get a generic message so upstream details never leak.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal error, please try again"
}
