package xgate

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryPolicy configures retry behavior for failed requests.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // 0.0 to 1.0, percentage of delay to randomize

	// MaxRetryAfter is the longest server-requested wait honored before the
	// rate limit error is returned to the caller instead.
	MaxRetryAfter time.Duration
}

// DefaultRetryPolicy returns a retry policy with sensible defaults.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		Multiplier:    2.0,
		Jitter:        0.1,
		MaxRetryAfter: 60 * time.Second,
	}
}

// NoRetry returns a policy that does not retry.
func NoRetry() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: 1,
	}
}

// Validate checks if the policy is usable.
func (p *RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.InitialDelay < 0 {
		return fmt.Errorf("initial_delay must be non-negative, got %v", p.InitialDelay)
	}
	if p.MaxDelay < p.InitialDelay {
		return fmt.Errorf("max_delay (%v) must be >= initial_delay (%v)", p.MaxDelay, p.InitialDelay)
	}
	if p.MaxAttempts > 1 && p.Multiplier < 1.0 {
		return fmt.Errorf("multiplier must be >= 1.0, got %f", p.Multiplier)
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		return fmt.Errorf("jitter must be between 0 and 1, got %f", p.Jitter)
	}
	if p.MaxRetryAfter < 0 {
		return fmt.Errorf("max_retry_after must be non-negative, got %v", p.MaxRetryAfter)
	}
	return nil
}

// Backoff calculates the delay before the given attempt (1-indexed).
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))

	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.Jitter > 0 {
		jitterRange := delay * p.Jitter
		delay = delay - jitterRange + (rand.Float64() * 2 * jitterRange)
	}

	return time.Duration(delay)
}

// RetryDecision is the outcome of inspecting a failed attempt.
type RetryDecision struct {
	Retry  bool
	Delay  time.Duration
	Reason string
}

// Decide inspects the classified error of the given attempt (1-indexed) and
// returns whether and when to try again.
func (p *RetryPolicy) Decide(err error, attempt int, now time.Time) RetryDecision {
	if attempt >= p.MaxAttempts {
		return RetryDecision{Reason: "max attempts reached"}
	}

	var rle *RateLimitError
	if errors.As(err, &rle) {
		return p.decideRateLimit(rle, attempt, now)
	}

	var ce ClassifiedError
	if !errors.As(err, &ce) {
		return RetryDecision{Reason: "unclassified error"}
	}
	if !ce.IsRetryable() {
		return RetryDecision{Reason: ce.Kind().String() + " is not retryable"}
	}

	return RetryDecision{
		Retry:  true,
		Delay:  p.Backoff(attempt),
		Reason: ce.Kind().String(),
	}
}

func (p *RetryPolicy) decideRateLimit(rle *RateLimitError, attempt int, now time.Time) RetryDecision {
	if secs, ok := rle.RetryAfter(); ok {
		wait := time.Duration(secs) * time.Second
		if wait > p.MaxRetryAfter {
			return RetryDecision{Reason: fmt.Sprintf("retry-after %ds exceeds ceiling %v", secs, p.MaxRetryAfter)}
		}
		return RetryDecision{Retry: true, Delay: wait, Reason: "retry-after"}
	}

	if secs, ok := rle.Info.SecondsUntilReset(now); ok {
		wait := time.Duration(secs) * time.Second
		if wait > p.MaxRetryAfter {
			return RetryDecision{Reason: fmt.Sprintf("rate limit resets in %ds, beyond ceiling %v", secs, p.MaxRetryAfter)}
		}
		return RetryDecision{Retry: true, Delay: wait, Reason: "rate limit reset"}
	}

	return RetryDecision{Retry: true, Delay: p.Backoff(attempt), Reason: "rate limited"}
}

// retryAfterSeconds rounds a Retry-After wait up to whole seconds.
func retryAfterSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

// ParseRetryAfter parses a Retry-After value given as delta seconds or as an
// HTTP date. Dates in the past yield zero.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds < 0 || seconds > math.MaxInt64/int64(time.Second) {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}

	if at, err := http.ParseTime(value); err == nil {
		return max(0, at.Sub(now)), true
	}

	return 0, false
}
