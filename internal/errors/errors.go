// Package errors provides structured error types for the guard.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrTimeout               = errors.New("operation timed out")
	ErrAuthFailure           = errors.New("authentication failed")
	ErrRateLimit             = errors.New("rate limit exceeded")
	ErrNotFound              = errors.New("resource not found")
	ErrInvalidInput          = errors.New("invalid input")
	ErrUnavailable           = errors.New("service unavailable")
	ErrCooldownActive        = errors.New("cooldown active")
	ErrAutomationPaused      = errors.New("automation paused")
	ErrPermanentlyRestricted = errors.New("permanently restricted")
	ErrLimitReached          = errors.New("limit reached")
	ErrAlreadyEngaged        = errors.New("post already engaged")
	ErrSkipped               = errors.New("candidate skipped")
	ErrOnBreak               = errors.New("forced break in effect")
	ErrStorage               = errors.New("storage failure")
)

// APIError represents an error from an external API call.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	// RetryAfter is the server's backoff hint, if any.
	RetryAfter time.Duration
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s API error (status %d): %s: %v", e.Service, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// NewAPIError creates a new API error.
func NewAPIError(service string, statusCode int, message string) *APIError {
	return &APIError{Service: service, StatusCode: statusCode, Message: message}
}

// DenialError is returned when a guard check refuses an action.
type DenialError struct {
	Reason string
	Err    error
}

func (e *DenialError) Error() string {
	if e.Reason == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Reason)
}

func (e *DenialError) Unwrap() error { return e.Err }

// Deny wraps a sentinel with a human-readable reason.
func Deny(sentinel error, reason string) error {
	return &DenialError{Reason: reason, Err: sentinel}
}

// retryable is implemented by client errors that know whether they are
// transient.
type retryable interface {
	Retryable() bool
}

// IsRetryable returns true if the error is likely transient and worth retrying.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}
	var r retryable
	if errors.As(err, &r) && r.Retryable() {
		return true
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimit) || errors.Is(err, ErrUnavailable)
}

// RetryAfter returns the backoff hint carried by err, or zero.
func RetryAfter(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter
	}
	return 0
}

// HTTPStatus maps an error to the status an API handler should return.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuthFailure):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrCooldownActive), errors.Is(err, ErrAutomationPaused),
		errors.Is(err, ErrPermanentlyRestricted), errors.Is(err, ErrLimitReached),
		errors.Is(err, ErrAlreadyEngaged), errors.Is(err, ErrSkipped), errors.Is(err, ErrOnBreak):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrStorage):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
