package xgate

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// IdempotencyKeyHeader lets the API deduplicate a write that is retried.
const IdempotencyKeyHeader = "Idempotency-Key"

// RequestOption configures a single call. Options are applied once per call,
// not per attempt.
type RequestOption func(*requestConfig)

type requestConfig struct {
	timeout       time.Duration
	headers       http.Header
	query         url.Values
	contentType   string
	retry         *RetryPolicy
	maxRetryAfter *time.Duration
}

func newRequestConfig(opts []RequestOption) *requestConfig {
	cfg := &requestConfig{
		headers: make(http.Header),
		query:   make(url.Values),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// retryPolicy returns the policy for the call, starting from the client's.
func (cfg *requestConfig) retryPolicy(base *RetryPolicy) *RetryPolicy {
	policy := base
	if cfg.retry != nil {
		policy = cfg.retry
	}
	if cfg.maxRetryAfter != nil {
		p := *policy
		p.MaxRetryAfter = *cfg.maxRetryAfter
		policy = &p
	}
	return policy
}

// WithRequestTimeout bounds each attempt of this call.
func WithRequestTimeout(d time.Duration) RequestOption {
	return func(cfg *requestConfig) {
		cfg.timeout = d
	}
}

// WithRequestHeader sets a header, replacing a client default of the same name.
func WithRequestHeader(key, value string) RequestOption {
	return func(cfg *requestConfig) {
		cfg.headers.Set(key, value)
	}
}

// WithQuery adds a query parameter. Repeated keys are kept.
func WithQuery(key, value string) RequestOption {
	return func(cfg *requestConfig) {
		cfg.query.Add(key, value)
	}
}

// WithContentType overrides the Content-Type derived from the body.
func WithContentType(contentType string) RequestOption {
	return func(cfg *requestConfig) {
		cfg.contentType = contentType
	}
}

// WithRequestRetry overrides the client retry policy for this call.
// Use NoRetry for calls that must not be repeated.
func WithRequestRetry(policy *RetryPolicy) RequestOption {
	return func(cfg *requestConfig) {
		cfg.retry = policy
	}
}

// WithMaxRetryAfter overrides the longest Retry-After wait honored for this
// call. Zero hands every rate limit error straight back to the caller.
func WithMaxRetryAfter(d time.Duration) RequestOption {
	return func(cfg *requestConfig) {
		if d < 0 {
			d = 0
		}
		cfg.maxRetryAfter = &d
	}
}

// WithIdempotencyKey sends key on every attempt of the call so retried
// deposits and withdrawals are applied once. An empty key generates one.
func WithIdempotencyKey(key string) RequestOption {
	return func(cfg *requestConfig) {
		if key == "" {
			key = uuid.New().String()
		}
		cfg.headers.Set(IdempotencyKeyHeader, key)
	}
}

// RequestBuilder assembles a call step by step. Every setter records the
// matching RequestOption.
type RequestBuilder struct {
	client *Client
	method string
	path   string
	body   any
	opts   []RequestOption
}

// Request starts a GET call; use Method to change it.
func (c *Client) Request() *RequestBuilder {
	return &RequestBuilder{
		client: c,
		method: http.MethodGet,
	}
}

func (b *RequestBuilder) with(opt RequestOption) *RequestBuilder {
	b.opts = append(b.opts, opt)
	return b
}

// Method sets the HTTP method.
func (b *RequestBuilder) Method(method string) *RequestBuilder {
	b.method = method
	return b
}

// Path sets the path relative to the client base URL.
func (b *RequestBuilder) Path(path string) *RequestBuilder {
	b.path = path
	return b
}

// Body sets the request body.
func (b *RequestBuilder) Body(body any) *RequestBuilder {
	b.body = body
	return b
}

func (b *RequestBuilder) Header(key, value string) *RequestBuilder {
	return b.with(WithRequestHeader(key, value))
}

func (b *RequestBuilder) Query(key, value string) *RequestBuilder {
	return b.with(WithQuery(key, value))
}

func (b *RequestBuilder) Timeout(d time.Duration) *RequestBuilder {
	return b.with(WithRequestTimeout(d))
}

func (b *RequestBuilder) ContentType(contentType string) *RequestBuilder {
	return b.with(WithContentType(contentType))
}

func (b *RequestBuilder) Retry(policy *RetryPolicy) *RequestBuilder {
	return b.with(WithRequestRetry(policy))
}

func (b *RequestBuilder) MaxRetryAfter(d time.Duration) *RequestBuilder {
	return b.with(WithMaxRetryAfter(d))
}

func (b *RequestBuilder) IdempotencyKey(key string) *RequestBuilder {
	return b.with(WithIdempotencyKey(key))
}

// Descriptor returns the method and URL the call will be sent to, as they
// appear in errors and logs.
func (b *RequestBuilder) Descriptor() RequestDescriptor {
	cfg := newRequestConfig(b.opts)
	return RequestDescriptor{
		Method: b.method,
		URL:    b.client.requestURL(b.path, cfg.query).String(),
	}
}

// Do executes the call and returns the response.
func (b *RequestBuilder) Do(ctx context.Context) (*Response, error) {
	return b.client.doWithOptions(ctx, b.method, b.path, b.body, nil, b.opts)
}

// DoInto executes the call and unmarshals the response into result.
func (b *RequestBuilder) DoInto(ctx context.Context, result any) error {
	_, err := b.client.doWithOptions(ctx, b.method, b.path, b.body, result, b.opts)
	return err
}
