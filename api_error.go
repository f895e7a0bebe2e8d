package xgate

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// messageFields lists the body fields checked, in order, for a human message.
var messageFields = []string{"message", "error", "error_message", "detail", "title"}

// APIError is returned when the API answered with a status of 400 or above.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
	ParsedBody map[string]any
	Headers    http.Header
	Method     string
	URL        string

	now func() time.Time
}

// ErrorOption configures an error built from a response.
type ErrorOption func(*errorConfig)

type errorConfig struct {
	method  string
	url     string
	message string
	now     func() time.Time
}

// WithRequest records the request that produced the error.
func WithRequest(method, url string) ErrorOption {
	return func(c *errorConfig) {
		c.method = method
		c.url = url
	}
}

// WithMessage overrides the message extracted from the body.
func WithMessage(message string) ErrorOption {
	return func(c *errorConfig) {
		c.message = message
	}
}

// WithErrorClock sets the clock used for Retry-After dates and reset times.
func WithErrorClock(now func() time.Time) ErrorOption {
	return func(c *errorConfig) {
		if now != nil {
			c.now = now
		}
	}
}

func newErrorConfig(opts []ErrorOption) *errorConfig {
	cfg := &errorConfig{now: time.Now}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// NewAPIError builds an APIError from a raw response. It never fails: a
// malformed or empty body leaves ParsedBody nil.
func NewAPIError(statusCode int, body string, headers http.Header, opts ...ErrorOption) *APIError {
	return newAPIError(statusCode, body, headers, newErrorConfig(opts))
}

func newAPIError(statusCode int, body string, headers http.Header, cfg *errorConfig) *APIError {
	headers = canonicalHeaders(headers)
	parsed := parseBody(body)

	msg := cfg.message
	if msg == "" {
		msg = extractMessage(parsed)
	}
	if msg == "" {
		msg = fmt.Sprintf("API error (HTTP %d)", statusCode)
	}

	return &APIError{
		StatusCode: statusCode,
		Message:    msg,
		Body:       body,
		ParsedBody: parsed,
		Headers:    headers,
		Method:     cfg.method,
		URL:        cfg.url,
		now:        cfg.now,
	}
}

// canonicalHeaders copies h so that lookups work for callers that built the
// map by hand with non-canonical keys.
func canonicalHeaders(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for key, values := range h {
		for _, value := range values {
			out.Add(key, value)
		}
	}
	return out
}

func parseBody(body string) map[string]any {
	if strings.TrimSpace(body) == "" {
		return nil
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return nil
	}
	return parsed
}

func extractMessage(parsed map[string]any) string {
	for _, field := range messageFields {
		if s, ok := parsed[field].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// NewErrorFromResponse returns the most specific error for an error response:
// *RateLimitError for 429, *ValidationError for 422 and *APIError otherwise.
func NewErrorFromResponse(resp *Response, opts ...ErrorOption) ClassifiedError {
	body := string(resp.Body)
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return NewRateLimitError(resp.StatusCode, body, resp.Headers, opts...)
	case http.StatusUnprocessableEntity:
		return NewValidationError(resp.StatusCode, body, resp.Headers, opts...)
	default:
		return NewAPIError(resp.StatusCode, body, resp.Headers, opts...)
	}
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Method == "" && e.URL == "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Message)
}

// Kind returns ErrKindRateLimited for 429, ErrKindServerError for 5xx and
// ErrKindClientError otherwise.
func (e *APIError) Kind() ErrorKind {
	switch {
	case e.IsRateLimitError():
		return ErrKindRateLimited
	case e.IsServerError():
		return ErrKindServerError
	default:
		return ErrKindClientError
	}
}

// IsRetryable returns true for server errors and rate limiting.
func (e *APIError) IsRetryable() bool {
	return e.Kind().IsRetryable()
}

// IsClientError returns true if the status code is 4xx.
func (e *APIError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsServerError returns true if the status code is 5xx.
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsAuthenticationError returns true for 401 Unauthorized.
func (e *APIError) IsAuthenticationError() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// IsAuthorizationError returns true for 403 Forbidden.
func (e *APIError) IsAuthorizationError() bool {
	return e.StatusCode == http.StatusForbidden
}

// IsNotFoundError returns true for 404 Not Found.
func (e *APIError) IsNotFoundError() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsValidationError returns true for 422 Unprocessable Entity.
func (e *APIError) IsValidationError() bool {
	return e.StatusCode == http.StatusUnprocessableEntity
}

// IsRateLimitError returns true for 429 Too Many Requests.
func (e *APIError) IsRateLimitError() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsStatus returns true if the status code matches any of the given codes.
func (e *APIError) IsStatus(codes ...int) bool {
	for _, code := range codes {
		if e.StatusCode == code {
			return true
		}
	}
	return false
}

// RetryAfter returns the wait requested by the Retry-After header, rounded
// up to whole seconds. HTTP dates in the past yield zero.
func (e *APIError) RetryAfter() (int, bool) {
	d, ok := ParseRetryAfter(e.Headers.Get("Retry-After"), e.clock())
	if !ok {
		return 0, false
	}
	return retryAfterSeconds(d), true
}

// Suggestion returns a human-readable remediation hint.
func (e *APIError) Suggestion() string {
	switch {
	case e.IsAuthenticationError():
		return "Check your API credentials and make sure the access token has not expired."
	case e.IsAuthorizationError():
		return "The credentials are valid but lack permission for this operation."
	case e.IsNotFoundError():
		return "Check the resource identifier; the requested resource does not exist."
	case e.IsValidationError():
		return "Fix the fields reported by the API and resend the request."
	case e.IsRateLimitError():
		return "Too many requests. Wait before retrying or reduce the request rate."
	case e.IsServerError():
		return "The API reported an internal problem. Retry later; contact support if it persists."
	default:
		return "Check the request parameters and try again."
	}
}

func (e *APIError) clock() time.Time {
	if e.now == nil {
		return time.Now()
	}
	return e.now()
}
