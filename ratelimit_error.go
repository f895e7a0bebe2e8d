package xgate

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type rateLimitField int

const (
	fieldRetryAfter rateLimitField = iota
	fieldLimit
	fieldRemaining
	fieldResetAt
	fieldLimitType
	fieldClientID
)

// rateLimitFields maps each logical field to its header spellings, in
// priority order, and to the body key used when no header is present.
var rateLimitFields = []struct {
	field   rateLimitField
	headers []string
	bodyKey string
}{
	{fieldRetryAfter, []string{"Retry-After", "X-Retry-After"}, "retry_after"},
	{fieldLimit, []string{"X-RateLimit-Limit", "X-Rate-Limit-Limit", "RateLimit-Limit"}, "rate_limit"},
	{fieldRemaining, []string{"X-RateLimit-Remaining", "X-Rate-Limit-Remaining", "RateLimit-Remaining"}, "remaining"},
	{fieldResetAt, []string{"X-RateLimit-Reset", "X-Rate-Limit-Reset", "RateLimit-Reset"}, "reset_time"},
	{fieldLimitType, []string{"X-RateLimit-Type", "X-Rate-Limit-Type", "RateLimit-Type"}, "limit_type"},
	{fieldClientID, []string{"X-RateLimit-Client-ID", "X-Rate-Limit-Client-ID", "RateLimit-Client-ID"}, ""},
}

// RateLimitInfo is the throttling metadata sent with a response, most
// usefully a 429.
// Nil pointers and empty strings mean the API did not send the field.
type RateLimitInfo struct {
	RetryAfter *int
	Limit      *int
	Remaining  *int
	ResetAt    *int64 // epoch seconds
	LimitType  string
	ClientID   string
}

// ParseRateLimitInfo reads rate limit metadata from headers, falling back to
// the parsed JSON body for fields no header carries.
func ParseRateLimitInfo(headers http.Header, body map[string]any, now time.Time) RateLimitInfo {
	var info RateLimitInfo

	for _, f := range rateLimitFields {
		set := false
		for _, name := range f.headers {
			value := strings.TrimSpace(headers.Get(name))
			if value == "" {
				continue
			}
			if info.setFromHeader(f.field, value, now) {
				set = true
				break
			}
		}
		if set || f.bodyKey == "" {
			continue
		}
		if raw, ok := body[f.bodyKey]; ok && raw != nil {
			info.setFromBody(f.field, raw)
		}
	}

	return info
}

func (i *RateLimitInfo) setFromHeader(field rateLimitField, value string, now time.Time) bool {
	switch field {
	case fieldRetryAfter:
		d, ok := ParseRetryAfter(value, now)
		if !ok {
			return false
		}
		secs := retryAfterSeconds(d)
		i.RetryAfter = &secs
	case fieldLimit, fieldRemaining:
		n, err := strconv.Atoi(value)
		if err != nil {
			return false
		}
		if field == fieldLimit {
			i.Limit = &n
		} else {
			i.Remaining = &n
		}
	case fieldResetAt:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return false
		}
		i.ResetAt = &n
	case fieldLimitType:
		i.LimitType = value
	case fieldClientID:
		i.ClientID = value
	}
	return true
}

func (i *RateLimitInfo) setFromBody(field rateLimitField, raw any) {
	switch field {
	case fieldRetryAfter, fieldLimit, fieldRemaining:
		n, ok := intFromJSON(raw)
		if !ok {
			return
		}
		switch field {
		case fieldRetryAfter:
			if n < 0 {
				return
			}
			i.RetryAfter = &n
		case fieldLimit:
			i.Limit = &n
		default:
			i.Remaining = &n
		}
	case fieldResetAt:
		if n, ok := intFromJSON(raw); ok {
			reset := int64(n)
			i.ResetAt = &reset
		}
	case fieldLimitType:
		if s, ok := raw.(string); ok {
			i.LimitType = s
		}
	}
}

func intFromJSON(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		// Converting an out of range float is implementation defined.
		if math.IsNaN(n) || n < math.MinInt || n >= math.MaxInt {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil || i < math.MinInt || i > math.MaxInt {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

// IsZero returns true if no field was provided.
func (i RateLimitInfo) IsZero() bool {
	return i.RetryAfter == nil && i.Limit == nil && i.Remaining == nil &&
		i.ResetAt == nil && i.LimitType == "" && i.ClientID == ""
}

// IsExhausted returns true when the API reported no remaining requests.
func (i RateLimitInfo) IsExhausted() bool {
	return i.Remaining != nil && *i.Remaining == 0
}

// UsagePercent returns the share of the limit already consumed. A zero limit
// counts as fully used.
func (i RateLimitInfo) UsagePercent() (float64, bool) {
	if i.Limit == nil || i.Remaining == nil {
		return 0, false
	}
	if *i.Limit == 0 {
		return 100.0, true
	}
	return float64(*i.Limit-*i.Remaining) / float64(*i.Limit) * 100, true
}

// SecondsUntilReset returns the time left until the window resets, never
// negative.
func (i RateLimitInfo) SecondsUntilReset(now time.Time) (int, bool) {
	if i.ResetAt == nil {
		return 0, false
	}
	return int(max(0, *i.ResetAt-now.Unix())), true
}

// ResetTime converts the reset epoch to a time.
func (i RateLimitInfo) ResetTime() (time.Time, bool) {
	if i.ResetAt == nil {
		return time.Time{}, false
	}
	return time.Unix(*i.ResetAt, 0), true
}

// Merge returns a copy of i where every field present in other replaces the
// value in i.
func (i RateLimitInfo) Merge(other RateLimitInfo) RateLimitInfo {
	merged := i
	if other.RetryAfter != nil {
		merged.RetryAfter = other.RetryAfter
	}
	if other.Limit != nil {
		merged.Limit = other.Limit
	}
	if other.Remaining != nil {
		merged.Remaining = other.Remaining
	}
	if other.ResetAt != nil {
		merged.ResetAt = other.ResetAt
	}
	if other.LimitType != "" {
		merged.LimitType = other.LimitType
	}
	if other.ClientID != "" {
		merged.ClientID = other.ClientID
	}
	return merged
}

// Message describes the limit using only the fields that are present, e.g.
// "Rate limit exceeded. Retry after 30 seconds (80/100 requests used) [Type: hourly]".
func (i RateLimitInfo) Message(now time.Time) string {
	var b strings.Builder
	b.WriteString("Rate limit exceeded.")

	if i.RetryAfter != nil {
		fmt.Fprintf(&b, " Retry after %d seconds", *i.RetryAfter)
	}
	if secs, ok := i.SecondsUntilReset(now); ok {
		if i.RetryAfter != nil {
			fmt.Fprintf(&b, ", resets in %d seconds", secs)
		} else {
			fmt.Fprintf(&b, " Resets in %d seconds", secs)
		}
	}
	if i.Limit != nil && i.Remaining != nil {
		fmt.Fprintf(&b, " (%d/%d requests used)", *i.Limit-*i.Remaining, *i.Limit)
	}
	if i.LimitType != "" {
		fmt.Fprintf(&b, " [Type: %s]", i.LimitType)
	}

	return b.String()
}

// RateLimitError is the APIError for HTTP 429 with its rate limit metadata.
type RateLimitError struct {
	*APIError
	Info RateLimitInfo

	generatedMessage bool
}

// NewRateLimitError builds a RateLimitError from a raw response. When the body
// carries no message, one is generated from the rate limit metadata.
func NewRateLimitError(statusCode int, body string, headers http.Header, opts ...ErrorOption) *RateLimitError {
	cfg := newErrorConfig(opts)
	headers = canonicalHeaders(headers)
	info := ParseRateLimitInfo(headers, parseBody(body), cfg.now())

	generated := false
	if cfg.message == "" && extractMessage(parseBody(body)) == "" {
		cfg.message = info.Message(cfg.now())
		generated = true
	}

	return &RateLimitError{
		APIError:         newAPIError(statusCode, body, headers, cfg),
		Info:             info,
		generatedMessage: generated,
	}
}

// RateLimitErrorFromInfo builds a RateLimitError without a response, for
// example in tests or when the limit is known ahead of the call. An empty
// message is generated from info.
func RateLimitErrorFromInfo(info RateLimitInfo, message string, opts ...ErrorOption) *RateLimitError {
	cfg := newErrorConfig(opts)
	generated := false
	if message != "" {
		cfg.message = message
	} else if cfg.message == "" {
		cfg.message = info.Message(cfg.now())
		generated = true
	}

	return &RateLimitError{
		APIError:         newAPIError(http.StatusTooManyRequests, "", nil, cfg),
		Info:             info,
		generatedMessage: generated,
	}
}

// RateLimitErrorFromRetryAfter builds a RateLimitError that only knows how
// long to wait.
func RateLimitErrorFromRetryAfter(seconds int, opts ...ErrorOption) *RateLimitError {
	return RateLimitErrorFromInfo(RateLimitInfo{RetryAfter: &seconds}, "", opts...)
}

// WithInfo returns a copy of e with info merged over the existing metadata.
// A generated message is regenerated; an API supplied one is kept.
func (e *RateLimitError) WithInfo(info RateLimitInfo) *RateLimitError {
	apiErr := *e.APIError
	merged := e.Info.Merge(info)
	if e.generatedMessage {
		apiErr.Message = merged.Message(apiErr.clock())
	}
	return &RateLimitError{
		APIError:         &apiErr,
		Info:             merged,
		generatedMessage: e.generatedMessage,
	}
}

// Unwrap exposes the embedded APIError to errors.As.
func (e *RateLimitError) Unwrap() error {
	return e.APIError
}

// RetryAfter returns the server-requested wait in seconds.
func (e *RateLimitError) RetryAfter() (int, bool) {
	if e.Info.RetryAfter == nil {
		return 0, false
	}
	return *e.Info.RetryAfter, true
}

// IsExhausted returns true when no requests remain in the current window.
func (e *RateLimitError) IsExhausted() bool {
	return e.Info.IsExhausted()
}

// UsagePercent returns the consumed share of the limit.
func (e *RateLimitError) UsagePercent() (float64, bool) {
	return e.Info.UsagePercent()
}

// SecondsUntilReset returns the time left in the current window.
func (e *RateLimitError) SecondsUntilReset() (int, bool) {
	return e.Info.SecondsUntilReset(e.clock())
}

// ResetTime returns when the current window resets.
func (e *RateLimitError) ResetTime() (time.Time, bool) {
	return e.Info.ResetTime()
}

// Suggestion returns a remediation hint that includes the wait when known.
func (e *RateLimitError) Suggestion() string {
	if secs, ok := e.RetryAfter(); ok {
		return fmt.Sprintf("Too many requests. Wait %d seconds before retrying.", secs)
	}
	if secs, ok := e.SecondsUntilReset(); ok {
		return fmt.Sprintf("Too many requests. The limit resets in %d seconds.", secs)
	}
	return e.APIError.Suggestion()
}
