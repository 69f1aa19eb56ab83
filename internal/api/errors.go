package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the normalized classification of a collaborator failure.
// Collaborator error bodies carry varying optional fields; they are folded
// into exactly one kind at this boundary so callers never inspect raw
// response shapes.
type ErrorKind string

const (
	// KindValidation marks a request the service rejected as malformed.
	KindValidation ErrorKind = "validation"
	// KindUnauthorized marks rejected or expired credentials.
	KindUnauthorized ErrorKind = "unauthorized"
	// KindForbidden marks an authenticated caller lacking the required role,
	// or an illegal lifecycle transition refused by the service.
	KindForbidden ErrorKind = "forbidden"
	// KindNotFound marks a referenced record that no longer exists.
	KindNotFound ErrorKind = "not_found"
	// KindConflict marks a request that clashes with current resource state,
	// such as an overlapping reservation.
	KindConflict ErrorKind = "conflict"
	// KindTransport marks an unreachable service or an unreadable response.
	KindTransport ErrorKind = "transport"
	// KindServer marks an internal service failure.
	KindServer ErrorKind = "server"
)

// Error is the single error shape produced by the client. Message carries the
// collaborator's own wording verbatim when the response included one.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("booking service returned status %d", e.StatusCode)
	}
	return string(e.Kind)
}

// Unwrap exposes the underlying transport error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// KindOf classifies an arbitrary error. Errors that did not originate from
// this package report an empty kind.
func KindOf(err error) ErrorKind {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.Kind
	}
	return ""
}

// IsUnauthorized reports whether the error represents rejected or expired
// credentials, the condition under which callers may attempt a token refresh.
func IsUnauthorized(err error) bool {
	return KindOf(err) == KindUnauthorized
}

func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status >= 400 && status < 500:
		return KindValidation
	default:
		return KindServer
	}
}

// errorBody is the superset of field names observed in collaborator error
// responses. At most one of them is populated per response.
type errorBody struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Err     string `json:"error"`
}

func (b errorBody) text() string {
	switch {
	case b.Message != "":
		return b.Message
	case b.Detail != "":
		return b.Detail
	default:
		return b.Err
	}
}
