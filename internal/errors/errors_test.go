package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIError_Error(t *testing.T) {
	err := NewAPIError("slack", 403, "forbidden")
	assert.Contains(t, err.Error(), "slack")
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "forbidden")
}

func TestAPIError_WithWrapped(t *testing.T) {
	inner := errors.New("connection refused")
	err := &APIError{Service: "slack", StatusCode: 500, Message: "fail", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "connection refused")
}

type transient struct{ ok bool }

func (t transient) Error() string   { return "transient" }
func (t transient) Retryable() bool { return t.ok }

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewAPIError("slack", 429, "rate limit")))
	assert.True(t, IsRetryable(NewAPIError("slack", 502, "bad gateway")))
	assert.True(t, IsRetryable(NewAPIError("slack", 503, "unavailable")))
	assert.True(t, IsRetryable(ErrTimeout))
	assert.True(t, IsRetryable(fmt.Errorf("post: %w", ErrRateLimit)))
	assert.True(t, IsRetryable(ErrUnavailable))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", transient{ok: true})))

	assert.False(t, IsRetryable(transient{ok: false}))
	assert.False(t, IsRetryable(NewAPIError("slack", 401, "unauth")))
	assert.False(t, IsRetryable(NewAPIError("slack", 404, "not found")))
	assert.False(t, IsRetryable(ErrAuthFailure))
	assert.False(t, IsRetryable(ErrCooldownActive))
}

func TestDeny(t *testing.T) {
	err := Deny(ErrLimitReached, "daily action limit reached (40/40)")
	assert.ErrorIs(t, err, ErrLimitReached)
	assert.Equal(t, "limit reached: daily action limit reached (40/40)", err.Error())

	var de *DenialError
	assert.True(t, errors.As(err, &de))
	assert.Equal(t, "daily action limit reached (40/40)", de.Reason)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusOK, HTTPStatus(nil))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(fmt.Errorf("x: %w", ErrInvalidInput)))
	assert.Equal(t, http.StatusConflict, HTTPStatus(Deny(ErrCooldownActive, "48h")))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(ErrStorage))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("other")))
}
