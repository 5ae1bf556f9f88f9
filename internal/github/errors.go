package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrMissingCredential is returned before any I/O when no token is set.
	ErrMissingCredential = errors.New("github: missing API token")

	// ErrInvalidPageSize is returned when the page size is outside 1..100.
	ErrInvalidPageSize = errors.New("github: page size must be between 1 and 100")

	// ErrInvalidOrg is returned when the organization is not a valid login.
	ErrInvalidOrg = errors.New("github: invalid organization name")
)

// TransportError is a failed HTTP exchange: either the request never got a
// response (Err set) or the response status was not 2xx.
type TransportError struct {
	StatusCode int
	Status     string

	// RetryAfter is the server-requested wait, zero if none was given.
	RetryAfter time.Duration

	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("GraphQL request failed: %v", e.Err)
	}
	return fmt.Sprintf("GraphQL request failed: %s", e.Status)
}

// Unwrap returns the underlying network error, if any.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the request may succeed. Network
// failures, rate limiting, and server errors qualify; cancellation and
// client errors such as 401 or 404 do not.
func (e *TransportError) Retryable() bool {
	if e.Err != nil {
		return !errors.Is(e.Err, context.Canceled) && !errors.Is(e.Err, context.DeadlineExceeded)
	}
	switch e.StatusCode {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusRequestTimeout:
		return true
	}
	return e.StatusCode >= 500
}

// ProtocolError is a response that arrived but cannot be used: the GraphQL
// errors array was present or the payload was malformed.
type ProtocolError struct {
	// Raw is the upstream errors array, when that was the cause.
	Raw json.RawMessage

	Err error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if len(e.Raw) > 0 {
		return fmt.Sprintf("GraphQL errors: %s", e.Raw)
	}
	return fmt.Sprintf("malformed GraphQL response: %v", e.Err)
}

// Unwrap returns the underlying decode or normalization error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsTransport returns true if err wraps a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsProtocol returns true if err wraps a *ProtocolError.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// IsRetryable returns true if err is a transport error worth repeating.
func IsRetryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable()
	}
	return false
}

// RetryAfter extracts the server-requested wait from err, if any.
func RetryAfter(err error) time.Duration {
	var te *TransportError
	if errors.As(err, &te) {
		return te.RetryAfter
	}
	return 0
}
