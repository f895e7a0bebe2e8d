package xgate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKind(t *testing.T) {
	t.Run("names are snake case", func(t *testing.T) {
		assert.Equal(t, "unknown", ErrKindUnknown.String())
		assert.Equal(t, "connection_timeout", ErrKindConnectionTimeout.String())
		assert.Equal(t, "ssl_handshake", ErrKindSSLHandshake.String())
		assert.Equal(t, "rate_limited", ErrKindRateLimited.String())
		assert.Equal(t, "error_kind(99)", ErrorKind(99).String())
	})

	t.Run("retryability is fixed per kind", func(t *testing.T) {
		retryable := map[ErrorKind]bool{
			ErrKindUnknown:            false,
			ErrKindConnectionTimeout:  true,
			ErrKindReadTimeout:        true,
			ErrKindConnectionRefused:  true,
			ErrKindDNSResolution:      true,
			ErrKindSSLCertificate:     false,
			ErrKindSSLHandshake:       false,
			ErrKindNetworkUnreachable: true,
			ErrKindHostUnreachable:    true,
			ErrKindClientError:        false,
			ErrKindServerError:        true,
			ErrKindRateLimited:        true,
		}

		for kind, want := range retryable {
			assert.Equal(t, want, kind.IsRetryable(), kind.String())
		}
	})

	t.Run("network kinds exclude API kinds", func(t *testing.T) {
		assert.True(t, ErrKindHostUnreachable.IsNetwork())
		assert.True(t, ErrKindUnknown.IsNetwork())
		assert.False(t, ErrKindClientError.IsNetwork())
		assert.False(t, ErrKindRateLimited.IsNetwork())
	})
}

func TestNetworkError(t *testing.T) {
	t.Run("classifies the wrapped error", func(t *testing.T) {
		err := NewNetworkError(http.MethodGet, "https://api.xgate.test/customers", errors.New("dial tcp: connection refused"))

		assert.Equal(t, ErrKindConnectionRefused, err.Kind())
		assert.True(t, err.IsRetryable())
		assert.False(t, err.IsTimeout())
		assert.Equal(t, 30*time.Second, err.RecommendedRetryDelay())
	})

	t.Run("formats with request", func(t *testing.T) {
		err := NewNetworkError(http.MethodGet, "https://api.xgate.test/customers", errors.New("connection refused"))

		assert.Equal(t, "GET https://api.xgate.test/customers: connection_refused: connection refused", err.Error())
	})

	t.Run("formats without request", func(t *testing.T) {
		err := &NetworkError{ErrKind: ErrKindReadTimeout, Message: "read timeout"}

		assert.Equal(t, "read_timeout: read timeout", err.Error())
	})

	t.Run("unwraps to the cause", func(t *testing.T) {
		cause := fmt.Errorf("wrapped: %w", context.DeadlineExceeded)
		err := NewNetworkError(http.MethodPost, "/x", cause)

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, cause, err.Unwrap())
	})

	t.Run("every kind has a suggestion", func(t *testing.T) {
		for kind := ErrKindUnknown; kind < ErrKindClientError; kind++ {
			err := &NetworkError{ErrKind: kind}
			assert.NotEmpty(t, err.Suggestion(), kind.String())
		}
	})

	t.Run("recommended delays", func(t *testing.T) {
		assert.Equal(t, 5*time.Second, (&NetworkError{ErrKind: ErrKindReadTimeout}).RecommendedRetryDelay())
		assert.Equal(t, 10*time.Second, (&NetworkError{ErrKind: ErrKindNetworkUnreachable}).RecommendedRetryDelay())
		assert.Equal(t, 15*time.Second, (&NetworkError{ErrKind: ErrKindDNSResolution}).RecommendedRetryDelay())
	})
}

func TestErrorHelpers(t *testing.T) {
	rle := RateLimitErrorFromRetryAfter(5)
	wrapped := fmt.Errorf("list deposits: %w", rle)

	t.Run("KindOf walks the chain", func(t *testing.T) {
		assert.Equal(t, ErrKindRateLimited, KindOf(wrapped))
		assert.Equal(t, ErrKindUnknown, KindOf(errors.New("plain")))
		assert.Equal(t, ErrKindUnknown, KindOf(nil))
	})

	t.Run("IsRetryable walks the chain", func(t *testing.T) {
		assert.True(t, IsRetryable(wrapped))
		assert.False(t, IsRetryable(NewAPIError(404, "", nil)))
		assert.False(t, IsRetryable(errors.New("plain")))
	})

	t.Run("AsAPIError finds embedded API errors", func(t *testing.T) {
		apiErr, ok := AsAPIError(wrapped)
		require.True(t, ok)
		assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)

		apiErr, ok = AsAPIError(NewValidationError(422, `{"message":"bad"}`, nil))
		require.True(t, ok)
		assert.Equal(t, "bad", apiErr.Message)

		_, ok = AsAPIError(NewNetworkError("GET", "/", errors.New("timeout")))
		assert.False(t, ok)
	})

	t.Run("AsRateLimitError", func(t *testing.T) {
		got, ok := AsRateLimitError(wrapped)
		require.True(t, ok)
		assert.Same(t, rle, got)

		_, ok = AsRateLimitError(NewAPIError(500, "", nil))
		assert.False(t, ok)
	})
}
