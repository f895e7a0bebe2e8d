package xgate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponse_JSON(t *testing.T) {
	var deposit struct {
		ID     string `json:"id"`
		Amount string `json:"amount"`
	}
	resp := &Response{StatusCode: http.StatusCreated, Body: []byte(`{"id":"dep_1","amount":"10.50"}`)}

	require.NoError(t, resp.JSON(&deposit))
	assert.Equal(t, "dep_1", deposit.ID)
	assert.Equal(t, "10.50", deposit.Amount)

	assert.Error(t, (&Response{Body: []byte(`{invalid`)}).JSON(&deposit))
	assert.Error(t, resp.JSON(nil))
}

// The status helpers and Err must tell the same story as the Executor.
func TestResponse_ErrAgreesWithStatus(t *testing.T) {
	tests := []struct {
		status int
		body   string
		kind   ErrorKind
	}{
		{http.StatusOK, `{"id":"dep_1"}`, ErrKindUnknown},
		{http.StatusNoContent, "", ErrKindUnknown},
		{http.StatusNotModified, "", ErrKindUnknown},
		{http.StatusBadRequest, `{"message":"Invalid currency"}`, ErrKindClientError},
		{http.StatusUnauthorized, "", ErrKindClientError},
		{http.StatusNotFound, `{"error":"Customer not found"}`, ErrKindClientError},
		{http.StatusUnprocessableEntity, `{"errors":{"amount":["must be positive"]}}`, ErrKindClientError},
		{http.StatusTooManyRequests, `{"retry_after":5}`, ErrKindRateLimited},
		{http.StatusInternalServerError, "", ErrKindServerError},
		{http.StatusServiceUnavailable, "maintenance", ErrKindServerError},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			resp := &Response{
				StatusCode: tt.status,
				Body:       []byte(tt.body),
				Request:    RequestDescriptor{Method: http.MethodPost, URL: "https://api.xgate.test/deposits"},
			}

			err := resp.Err()

			if tt.status < 400 {
				assert.Nil(t, err)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, tt.kind, err.Kind())
			assert.Equal(t, resp.IsServerError(), err.Kind() == ErrKindServerError)
			assert.Equal(t, resp.IsClientError(), err.Kind() == ErrKindClientError || err.Kind() == ErrKindRateLimited)
			assert.Equal(t, resp.IsServerError() || tt.status == http.StatusTooManyRequests, err.IsRetryable())

			apiErr, ok := AsAPIError(err)
			require.True(t, ok)
			assert.Equal(t, http.MethodPost, apiErr.Method)
			assert.Equal(t, "https://api.xgate.test/deposits", apiErr.URL)

			switch tt.status {
			case http.StatusTooManyRequests:
				assert.IsType(t, &RateLimitError{}, err)
			case http.StatusUnprocessableEntity:
				assert.IsType(t, &ValidationError{}, err)
			default:
				assert.IsType(t, &APIError{}, err)
			}
		})
	}
}

func TestResponse_RateLimit(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	headers := http.Header{}
	headers.Set("X-RateLimit-Limit", "100")
	headers.Set("X-RateLimit-Remaining", "0")
	headers.Set("X-RateLimit-Reset", "1700000030")
	resp := &Response{StatusCode: http.StatusOK, Headers: headers}

	info := resp.RateLimit(now)

	assert.True(t, info.IsExhausted())
	secs, ok := info.SecondsUntilReset(now)
	require.True(t, ok)
	assert.Equal(t, 30, secs)
	assert.True(t, (&Response{}).RateLimit(now).IsZero())
}

func TestClient_ResponseRecordsTheCall(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/customers/missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Customer not found"}`))
			return
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":"dep_1"}`))
	}))
	defer server.Close()

	client, err := New(WithBaseURL(server.URL), WithRetry(fastPolicy(3)))
	require.NoError(t, err)

	t.Run("success after a retry", func(t *testing.T) {
		resp, err := client.Get(context.Background(), "/deposits/dep_1", nil)

		require.NoError(t, err)
		assert.Equal(t, 2, resp.Attempts)
		assert.Equal(t, http.MethodGet, resp.Request.Method)
		assert.True(t, strings.HasSuffix(resp.Request.URL, "/deposits/dep_1"))
		assert.Nil(t, resp.Err())
	})

	t.Run("terminal error response", func(t *testing.T) {
		resp, err := client.Get(context.Background(), "/customers/missing", nil)

		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, 1, resp.Attempts)
		assert.Equal(t, KindOf(err), resp.Err().Kind())
		assert.Equal(t, err.Error(), resp.Err().Error())
	})
}
