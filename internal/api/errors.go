package api

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURL is returned when the endpoint cannot be parsed into a URL.
	ErrInvalidURL = errors.New("invalid url")

	// ErrEncoding is returned when a request body cannot be serialized.
	ErrEncoding = errors.New("failed to encode request")

	// ErrDecoding is returned when a 2xx body does not match the expected shape.
	ErrDecoding = errors.New("failed to decode response")

	// ErrUnauthorized is returned for a 401 that survives the refresh-retry,
	// or when no refresh is possible. Callers should route to re-pairing.
	ErrUnauthorized = errors.New("session expired")

	// ErrNoConnection is returned for transport-level failures: DNS, timeout,
	// connection reset. The request may be retried by the caller.
	ErrNoConnection = errors.New("no internet connection")

	// ErrInvalidCode is returned when the pairing endpoint rejects the code.
	ErrInvalidCode = errors.New("invalid or expired code")

	// ErrAlreadyPaired is returned when the device is already registered.
	ErrAlreadyPaired = errors.New("watch already paired")

	// ErrMaxDevicesReached is returned when the account device limit is hit.
	ErrMaxDevicesReached = errors.New("maximum watches reached")

	// ErrRateLimited is the sentinel behind RateLimitError.
	ErrRateLimited = errors.New("too many attempts")
)

// RateLimitError carries the server-advertised wait before retrying.
type RateLimitError struct {
	RetryAfter int // seconds
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: wait %d seconds", ErrRateLimited.Error(), e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// ServerError is any non-2xx status not covered by the taxonomy above.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("status code: %d", e.StatusCode)
}
