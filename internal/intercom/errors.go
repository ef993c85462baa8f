package intercom

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for errors.Is checks across the error taxonomy.
var (
	// ErrAuthentication indicates the API rejected the token (HTTP 401).
	// Never retried.
	ErrAuthentication = errors.New("authentication failed: invalid API token")

	// ErrRateLimited indicates the API throttled the request (HTTP 429).
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrNotFound indicates a conversation was absent from an otherwise
	// successful response.
	ErrNotFound = errors.New("conversation not found")
)

// APIError is any non-success response that has no more specific class.
// It carries the HTTP status and the best-effort message from the body.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api request failed: %d - %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api request failed: %d", e.Status)
}

// RateLimitError carries the server-supplied retry hint when present;
// RetryAfter is zero when the server sent none.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
	}
	return "rate limit exceeded"
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// NotFoundError names the conversation id the API could not produce.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("conversation %s not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
