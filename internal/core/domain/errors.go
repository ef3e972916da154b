package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimited indicates the upstream API rejected the call with a rate limit
	ErrRateLimited = errors.New("rate limited")

	// ErrUnauthorized indicates the upstream rejected the store's credentials
	ErrUnauthorized = errors.New("upstream credentials rejected")

	// ErrMalformedResponse indicates the upstream payload could not be parsed
	ErrMalformedResponse = errors.New("malformed upstream response")

	// ErrQueueClosed indicates the request queue no longer accepts work
	ErrQueueClosed = errors.New("request queue closed")

	// ErrSyncExhausted indicates every sync attempt for a store failed
	ErrSyncExhausted = errors.New("sync attempts exhausted")

	// ErrStoreDisabled indicates the store is registered but not enabled
	ErrStoreDisabled = errors.New("store disabled")

	// ErrSyncInProgress indicates a sync is already running for the store
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrTaskLimitReached indicates the background task limit is saturated
	ErrTaskLimitReached = errors.New("background task limit reached")

	// ErrShuttingDown indicates the component is stopping and rejects new work
	ErrShuttingDown = errors.New("shutting down")
)

// UpstreamError is a non-2xx response from the upstream order API.
// Unwrap maps well-known status codes onto the sentinel errors above so
// callers can classify with errors.Is.
type UpstreamError struct {
	StoreID    string
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream error %d for store %s", e.StatusCode, e.StoreID)
	}
	return fmt.Sprintf("upstream error %d for store %s: %s", e.StatusCode, e.StoreID, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrInvalidInput
	default:
		return nil
	}
}

// IsPermanent reports whether err is an upstream failure that retrying can
// never fix. Such calls are treated as "no data".
func IsPermanent(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrMalformedResponse)
}

// IsRetryable reports whether retrying err could succeed. Permanent errors
// and rejected credentials are never retried; rejected credentials still
// fail the call instead of reading as "no data".
func IsRetryable(err error) bool {
	return !IsPermanent(err) && !errors.Is(err, ErrUnauthorized)
}

// RetryAfter returns the server-provided retry delay carried by err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var upstream *UpstreamError
	if errors.As(err, &upstream) && upstream.RetryAfter > 0 {
		return upstream.RetryAfter, true
	}
	return 0, false
}
