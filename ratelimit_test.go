package xgate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter(t *testing.T) {
	t.Run("allows a full burst", func(t *testing.T) {
		limiter := NewRateLimiter(10, time.Second)

		for i := 0; i < 10; i++ {
			require.NoError(t, limiter.Wait(context.Background()))
		}
	})

	t.Run("refuses past the burst", func(t *testing.T) {
		limiter := NewRateLimiter(2, time.Hour)

		assert.True(t, limiter.Allow())
		assert.True(t, limiter.Allow())
		assert.False(t, limiter.Allow())
	})

	t.Run("gives up when the wait would outlast the deadline", func(t *testing.T) {
		limiter := NewRateLimiter(2, time.Second)
		require.NoError(t, limiter.Wait(context.Background()))
		require.NoError(t, limiter.Wait(context.Background()))

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := limiter.Wait(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate limiter")
	})

	t.Run("refills tokens over time", func(t *testing.T) {
		limiter := NewRateLimiter(2, 100*time.Millisecond)
		require.NoError(t, limiter.Wait(context.Background()))
		require.NoError(t, limiter.Wait(context.Background()))

		time.Sleep(110 * time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		require.NoError(t, limiter.Wait(ctx))
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		limiter := NewRateLimiter(1, time.Hour)
		require.NoError(t, limiter.Wait(context.Background()))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := limiter.Wait(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("is safe for concurrent use", func(t *testing.T) {
		limiter := NewRateLimiter(100, time.Second)

		var wg sync.WaitGroup
		var success atomic.Int32
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()
				if limiter.Wait(ctx) == nil {
					success.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(100), success.Load())
	})
}

func TestClient_RateLimit(t *testing.T) {
	t.Run("limits request rate", func(t *testing.T) {
		var requests atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client, err := New(
			WithBaseURL(server.URL),
			WithRateLimit(5, 100*time.Millisecond),
		)
		require.NoError(t, err)

		start := time.Now()
		for i := 0; i < 10; i++ {
			_, err := client.Get(context.Background(), "/quotes", nil)
			require.NoError(t, err)
		}

		assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
		assert.Equal(t, int32(10), requests.Load())
	})

	t.Run("cancelled wait is not retried", func(t *testing.T) {
		var requests atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client, err := New(
			WithBaseURL(server.URL),
			WithRateLimit(1, time.Hour),
			WithRetry(fastPolicy(3)),
		)
		require.NoError(t, err)

		_, err = client.Get(context.Background(), "/quotes", nil)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		_, err = client.Get(ctx, "/quotes", nil)

		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, IsRetryable(err))
		assert.Equal(t, int32(1), requests.Load())
	})
}
