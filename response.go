package xgate

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// Response is a fully read API response and the call that produced it.
type Response struct {
	StatusCode int
	Status     string
	Headers    http.Header
	Body       []byte

	// Request and Attempts are filled in by the Executor.
	Request  RequestDescriptor
	Attempts int
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) error {
	if v == nil {
		return errors.New("target cannot be nil")
	}
	return json.Unmarshal(r.Body, v)
}

// String returns the response body as a string.
func (r *Response) String() string {
	return string(r.Body)
}

// IsSuccess returns true if the status code is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsClientError returns true if the status code is 4xx. Err then reports
// ErrKindClientError, or ErrKindRateLimited for 429.
func (r *Response) IsClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

// IsServerError returns true if the status code is 5xx.
func (r *Response) IsServerError() bool {
	return r.StatusCode >= 500 && r.StatusCode < 600
}

// Err returns the classified error for a status of 400 or above, built the
// same way the Executor builds it, and nil otherwise.
func (r *Response) Err(opts ...ErrorOption) ClassifiedError {
	if r.StatusCode < 400 {
		return nil
	}
	opts = append([]ErrorOption{WithRequest(r.Request.Method, r.Request.URL)}, opts...)
	return NewErrorFromResponse(r, opts...)
}

// RateLimit reads the quota headers the API sends on every response, so
// callers can slow down before they are throttled.
func (r *Response) RateLimit(now time.Time) RateLimitInfo {
	return ParseRateLimitInfo(r.Headers, nil, now)
}
