package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	err := NewError(ErrTimeout, "request timed out")
	assert.Equal(t, "[TIMEOUT] request timed out", err.Error())

	cause := errors.New("dial tcp: i/o timeout")
	err = err.WithCause(cause)
	assert.Contains(t, err.Error(), "dial tcp")
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestError_Builders(t *testing.T) {
	err := NewError(ErrExternalAPI, "tracker rejected request").
		WithHTTPStatus(502).
		WithRetryable(true).
		WithDetails("POST /rest/api/2/issue").
		WithSuggestions("check API credentials")

	assert.Equal(t, ErrExternalAPI, err.Code)
	assert.Equal(t, 502, err.HTTPStatus)
	assert.True(t, err.Retryable)
	assert.Equal(t, "POST /rest/api/2/issue", err.Details)
	assert.Equal(t, []string{"check API credentials"}, err.Suggestions)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewError(ErrRateLimited, "slow down").WithRetryable(true)))
	assert.False(t, IsRetryable(NewError(ErrValidation, "bad input")))
	assert.False(t, IsRetryable(errors.New("plain error")))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCancelled, CodeOf(NewError(ErrCancelled, "cancelled")))
	assert.Equal(t, ErrInternalError, CodeOf(errors.New("plain error")))
}
