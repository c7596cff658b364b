// Package remote provides the single low-level HTTP call used for every
// request to the issue tracker and its OAuth endpoints.
package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed remote call.
type Kind int

const (
	// KindNotConfigured means no credentials or tokens are present. No
	// request was made.
	KindNotConfigured Kind = iota + 1
	// KindRemoteRejected means the service answered with a non-2xx status.
	KindRemoteRejected
	// KindTransport covers DNS, TLS, timeouts and unreadable responses.
	KindTransport
	// KindUntrustedHost means an attachment URL failed the host allow-list.
	KindUntrustedHost
	// KindNoMatchingTransition means no legal transition matched the
	// requested status.
	KindNoMatchingTransition
)

func (k Kind) String() string {
	switch k {
	case KindNotConfigured:
		return "not_configured"
	case KindRemoteRejected:
		return "remote_rejected"
	case KindTransport:
		return "transport_failure"
	case KindUntrustedHost:
		return "untrusted_host"
	case KindNoMatchingTransition:
		return "no_matching_transition"
	default:
		return "unknown"
	}
}

// Error is returned by every remote operation. Response bodies are never
// carried; StatusCode is set only for KindRemoteRejected.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindNotConfigured:
		msg = "external service not configured"
	case KindRemoteRejected:
		msg = fmt.Sprintf("external service error (status %d)", e.StatusCode)
	case KindTransport:
		msg = "external service unavailable"
	case KindUntrustedHost:
		msg = "attachment host not allowed"
	case KindNoMatchingTransition:
		msg = "no matching transition"
	default:
		msg = "external service failure"
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an *Error of the given kind.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		return remoteErr.Kind
	}
	return 0
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StatusCode returns the remote status carried by err, or 0.
func StatusCode(err error) int {
	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		return remoteErr.StatusCode
	}
	return 0
}

// IsServerError checks if the status code indicates a server error (5xx).
func IsServerError(statusCode int) bool {
	return statusCode >= http.StatusInternalServerError
}
