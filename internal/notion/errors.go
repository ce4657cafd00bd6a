package notion

import (
	"fmt"
	"time"
)

// RetryableError indicates a transient failure (rate limit or server error)
// that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration // zero when the server gave no hint
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// APIError is a non-retryable error response from the API.
type APIError struct {
	StatusCode int    `json:"status"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("notion api status %d: %s: %s", e.StatusCode, e.Code, truncate(e.Message, 200))
	}
	return fmt.Sprintf("notion api status %d: %s", e.StatusCode, truncate(e.Message, 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
