package xgate

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chaosFailure captures one iteration that broke an invariant.
type chaosFailure struct {
	Iteration  int
	Seed       int64
	Config     chaosConfig
	PanicValue string
	Error      string
	Stack      string
}

// chaosConfig holds the server behavior for one iteration.
type chaosConfig struct {
	Latency     time.Duration
	FailureRate float64
	StatusCode  int
	RetryAfter  int
	Timeout     time.Duration
	MaxAttempts int
}

var chaosStatuses = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusNotFound,
	http.StatusUnprocessableEntity,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
}

func generateChaosConfig(rng *rand.Rand) chaosConfig {
	return chaosConfig{
		Latency:     time.Duration(rng.Intn(20)) * time.Millisecond,
		FailureRate: rng.Float64(),
		StatusCode:  chaosStatuses[rng.Intn(len(chaosStatuses))],
		RetryAfter:  rng.Intn(2) - 1,
		Timeout:     time.Duration(5+rng.Intn(50)) * time.Millisecond,
		MaxAttempts: 1 + rng.Intn(4),
	}
}

// runChaosIteration checks that every failure is classified and that the
// client never exceeds the attempt budget.
func runChaosIteration(seed int64, config chaosConfig) error {
	var calls atomic.Int32
	var mu sync.Mutex
	rng := rand.New(rand.NewSource(seed))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(config.Latency)

		mu.Lock()
		fail := rng.Float64() < config.FailureRate
		mu.Unlock()

		if !fail {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
			return
		}
		if config.StatusCode == http.StatusTooManyRequests && config.RetryAfter >= 0 {
			w.Header().Set("Retry-After", strconv.Itoa(config.RetryAfter))
		}
		w.WriteHeader(config.StatusCode)
		_, _ = w.Write([]byte(`{"message":"chaos"}`))
	}))
	defer server.Close()

	policy := fastPolicy(config.MaxAttempts)
	policy.InitialDelay = time.Millisecond
	policy.MaxDelay = 5 * time.Millisecond

	client, err := New(
		WithBaseURL(server.URL),
		WithTimeout(config.Timeout),
		WithRetry(policy),
	)
	if err != nil {
		return fmt.Errorf("build client: %w", err)
	}

	_, reqErr := client.Get(context.Background(), "/chaos", nil)

	if n := int(calls.Load()); n > config.MaxAttempts {
		return fmt.Errorf("server saw %d attempts, budget was %d", n, config.MaxAttempts)
	}
	if reqErr == nil {
		return nil
	}

	var ce ClassifiedError
	if !errors.As(reqErr, &ce) {
		return fmt.Errorf("unclassified error %T: %w", reqErr, reqErr)
	}
	if apiErr, ok := AsAPIError(reqErr); ok && apiErr.StatusCode != config.StatusCode {
		return fmt.Errorf("status %d surfaced, server sent %d", apiErr.StatusCode, config.StatusCode)
	}
	if ce.IsRetryable() && ce.Kind() != ErrKindReadTimeout && int(calls.Load()) < config.MaxAttempts {
		return fmt.Errorf("gave up on retryable %v after %d of %d attempts", ce.Kind(), calls.Load(), config.MaxAttempts)
	}
	return nil
}

func TestChaos_RandomFailures(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping chaos test in short mode")
	}

	seed := time.Now().UnixNano()
	rng := rand.New(rand.NewSource(seed))
	t.Logf("chaos seed: %d", seed)

	const iterations = 50
	var failures []chaosFailure

	for i := 0; i < iterations; i++ {
		config := generateChaosConfig(rng)
		iterSeed := rng.Int63()

		func() {
			defer func() {
				if r := recover(); r != nil {
					failures = append(failures, chaosFailure{
						Iteration:  i,
						Seed:       seed,
						Config:     config,
						PanicValue: fmt.Sprint(r),
						Stack:      string(debug.Stack()),
					})
				}
			}()

			if err := runChaosIteration(iterSeed, config); err != nil {
				failures = append(failures, chaosFailure{
					Iteration: i,
					Seed:      seed,
					Config:    config,
					Error:     err.Error(),
				})
			}
		}()
	}

	for _, f := range failures {
		t.Errorf("iteration %d (seed %d, config %+v): %s%s", f.Iteration, f.Seed, f.Config, f.Error, f.PanicValue)
	}
}

func TestChaos_ConcurrentRequests(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping chaos test in short mode")
	}

	var calls atomic.Int32
	var seen sync.Map
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if _, loaded := seen.LoadOrStore(r.Header.Get(RequestIDHeader), true); !loaded {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	logger := &testLogger{}
	client, err := New(
		WithBaseURL(server.URL),
		WithRetry(fastPolicy(3)),
		WithLogger(logger),
		WithMiddleware(RequestIDMiddleware("")),
	)
	require.NoError(t, err)

	const workers = 50
	var wg sync.WaitGroup
	var failed atomic.Int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx := WithRequestID(context.Background(), fmt.Sprintf("req-%d", i))
			if _, err := client.Get(ctx, "/customers", nil); err != nil {
				failed.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Zero(t, failed.Load())
	assert.Equal(t, int32(2*workers), calls.Load())
	assert.Len(t, logger.Entries(), workers)
}

func TestChaos_RateLimitStorm(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping chaos test in short mode")
	}

	var seen sync.Map
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, loaded := seen.LoadOrStore(r.Header.Get(RequestIDHeader), true); !loaded {
			w.Header().Set("Retry-After", "0")
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := New(
		WithBaseURL(server.URL),
		WithRetry(fastPolicy(2)),
		WithRateLimit(100, time.Second),
		WithMiddleware(RequestIDMiddleware("")),
	)
	require.NoError(t, err)

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx := WithRequestID(context.Background(), fmt.Sprintf("quote-%d", i))
			_, err := client.Get(ctx, "/quotes", nil)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}
