// Package provider defines the polymorphic adapter contract every external
// storage provider implements, plus the normalized error taxonomy adapters
// translate their remote API failures into. Callers above the adapter
// boundary never see provider-specific error shapes.
package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for remote failure classification.
// Use errors.Is(err, provider.ErrTransient) to check.
var (
	// ErrAuth covers 401/403 responses: the access token was rejected and
	// the account needs a refresh or a full re-authorization.
	ErrAuth = errors.New("provider: authorization rejected")

	// ErrNotFound covers 404: the referenced remote object no longer
	// exists. The root folder resolver treats this as recoverable drift.
	ErrNotFound = errors.New("provider: remote object not found")

	// ErrTransient covers timeouts, rate limits, and 5xx responses.
	// Safe to retry with backoff, bounded attempts.
	ErrTransient = errors.New("provider: transient remote failure")

	// ErrRejected covers remaining 4xx responses. Not retried; surfaced
	// to the caller with provider detail.
	ErrRejected = errors.New("provider: request rejected")
)

// Error wraps a sentinel with the provider name, HTTP status, and the
// remote API's error message for debugging.
type Error struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
	}

	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ClassifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func ClassifyStatus(code int) error {
	switch {
	case code >= http.StatusOK && code < http.StatusMultipleChoices:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrAuth
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests:
		return ErrTransient
	case code >= http.StatusInternalServerError:
		return ErrTransient
	default:
		return ErrRejected
	}
}

// IsRetryable reports whether the given HTTP status code should be retried.
func IsRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
