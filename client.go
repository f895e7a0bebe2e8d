// Package xgate is a client core for the XGATE payments API. It classifies
// transport and API failures into a closed set of error kinds and retries
// the retryable ones, honoring server rate limit signals.
package xgate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/xgate/xgate-go/internal"
)

// Version is the current version of the xgate package.
const Version = "0.3.0"

// Client is an immutable XGATE API client configured via functional options.
// It is safe for concurrent use across goroutines.
type Client struct {
	baseURL            *url.URL
	httpClient         *http.Client
	timeout            time.Duration
	headers            http.Header
	defaultContentType string
	retryPolicy        *RetryPolicy
	rateLimiter        *RateLimiter
	middlewares        []Middleware
	auth               AuthProvider
	logger             Logger
	logBody            LogBodyConfig
	metrics            *Metrics
	tracer             trace.Tracer
	now                func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client) error

// New creates a new Client with the given options.
// Returns an error if required options are missing or invalid.
func New(opts ...ClientOption) (*Client, error) {
	c := &Client{
		httpClient:         &http.Client{},
		timeout:            30 * time.Second,
		headers:            make(http.Header),
		defaultContentType: "application/json",
		retryPolicy:        DefaultRetryPolicy(),
		logger:             nopLogger{},
		logBody:            DefaultLogBodyConfig(),
		now:                time.Now,
	}

	c.headers.Set("User-Agent", "xgate-go/"+Version)
	c.headers.Set("Accept", "application/json")

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.baseURL == nil {
		return nil, errors.New("base URL is required: use WithBaseURL option")
	}

	return c, nil
}

// WithBaseURL sets the base URL for all requests.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) error {
		if baseURL == "" {
			return errors.New("base URL cannot be empty")
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return fmt.Errorf("parse base URL: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("base URL %q must be absolute", baseURL)
		}
		c.baseURL = u
		return nil
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) error {
		if client == nil {
			return errors.New("http client cannot be nil")
		}
		c.httpClient = client
		return nil
	}
}

// WithTimeout bounds each attempt. The caller's context bounds the whole
// request including retries.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		c.timeout = d
		return nil
	}
}

// WithHeader adds a default header to all requests.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) error {
		if key == "" {
			return errors.New("header key cannot be empty")
		}
		c.headers.Set(key, value)
		return nil
	}
}

// WithHeaders adds multiple default headers to all requests.
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) error {
		for k, v := range headers {
			if k == "" {
				return errors.New("header key cannot be empty")
			}
			c.headers.Set(k, v)
		}
		return nil
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) error {
		c.headers.Set("User-Agent", userAgent)
		return nil
	}
}

// WithDefaultContentType sets the default Content-Type for requests with bodies.
func WithDefaultContentType(contentType string) ClientOption {
	return func(c *Client) error {
		if contentType == "" {
			return errors.New("content type cannot be empty")
		}
		c.defaultContentType = contentType
		return nil
	}
}

// WithRetry sets the retry policy. A nil policy disables retries.
func WithRetry(policy *RetryPolicy) ClientOption {
	return func(c *Client) error {
		if policy == nil {
			c.retryPolicy = NoRetry()
			return nil
		}
		if err := policy.Validate(); err != nil {
			return fmt.Errorf("invalid retry policy: %w", err)
		}
		c.retryPolicy = policy
		return nil
	}
}

// WithRateLimit configures client-side rate limiting.
func WithRateLimit(requests int, duration time.Duration) ClientOption {
	return func(c *Client) error {
		if requests <= 0 || duration <= 0 {
			return errors.New("rate limit requests and duration must be positive")
		}
		c.rateLimiter = NewRateLimiter(requests, duration)
		return nil
	}
}

// WithMiddleware adds a middleware to the client's middleware chain.
func WithMiddleware(mw Middleware) ClientOption {
	return func(c *Client) error {
		if mw == nil {
			return errors.New("middleware cannot be nil")
		}
		c.middlewares = append(c.middlewares, mw)
		return nil
	}
}

// WithAuth sets the authentication applied to every attempt.
func WithAuth(auth AuthProvider) ClientOption {
	return func(c *Client) error {
		if auth == nil {
			return errors.New("auth provider cannot be nil")
		}
		c.auth = auth
		return nil
	}
}

// WithLogger sets the logger for retries, rate limit waits and failures.
func WithLogger(logger Logger) ClientOption {
	return func(c *Client) error {
		if logger == nil {
			logger = nopLogger{}
		}
		c.logger = logger
		return nil
	}
}

// WithLogBodyConfig sets the limits used when logging error bodies.
func WithLogBodyConfig(config LogBodyConfig) ClientOption {
	return func(c *Client) error {
		if config.MaxBodySize <= 0 || config.MaxStringValue <= 0 {
			return errors.New("log body limits must be positive")
		}
		c.logBody = config
		return nil
	}
}

// WithMetrics records attempts, retries and failures in m.
func WithMetrics(m *Metrics) ClientOption {
	return func(c *Client) error {
		c.metrics = m
		return nil
	}
}

// WithTracer sets the tracer used for request spans.
func WithTracer(t trace.Tracer) ClientOption {
	return func(c *Client) error {
		c.tracer = t
		return nil
	}
}

// WithClock sets the clock used to interpret Retry-After dates and rate
// limit reset times.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		c.now = now
		return nil
	}
}

// Get performs an HTTP GET request.
func (c *Client) Get(ctx context.Context, path string, result any, opts ...RequestOption) (*Response, error) {
	return c.doWithOptions(ctx, http.MethodGet, path, nil, result, opts)
}

// Post performs an HTTP POST request.
func (c *Client) Post(ctx context.Context, path string, body any, result any, opts ...RequestOption) (*Response, error) {
	return c.doWithOptions(ctx, http.MethodPost, path, body, result, opts)
}

// Put performs an HTTP PUT request.
func (c *Client) Put(ctx context.Context, path string, body any, result any, opts ...RequestOption) (*Response, error) {
	return c.doWithOptions(ctx, http.MethodPut, path, body, result, opts)
}

// Patch performs an HTTP PATCH request.
func (c *Client) Patch(ctx context.Context, path string, body any, result any, opts ...RequestOption) (*Response, error) {
	return c.doWithOptions(ctx, http.MethodPatch, path, body, result, opts)
}

// Delete performs an HTTP DELETE request.
func (c *Client) Delete(ctx context.Context, path string, result any, opts ...RequestOption) (*Response, error) {
	return c.doWithOptions(ctx, http.MethodDelete, path, nil, result, opts)
}

// Execute performs a request with an arbitrary method and returns the raw
// response without decoding it.
func (c *Client) Execute(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.doWithOptions(ctx, method, path, body, nil, opts)
}

func (c *Client) executor(policy *RetryPolicy) *Executor {
	return NewExecutor(policy,
		WithExecutorLogger(c.logger),
		WithExecutorMetrics(c.metrics),
		WithExecutorClock(c.now),
		WithExecutorTracer(c.tracer),
		withExecutorLogBody(c.logBody),
	)
}

func (c *Client) doWithOptions(ctx context.Context, method, path string, body any, result any, opts []RequestOption) (*Response, error) {
	cfg := newRequestConfig(opts)
	reqURL := c.requestURL(path, cfg.query)

	// Encoded once and replayed on every attempt.
	bodyBytes, contentType, err := internal.EncodeBody(body)
	if err != nil {
		return nil, err
	}

	if cfg.contentType != "" {
		contentType = cfg.contentType
	} else if contentType == "" && body != nil {
		contentType = c.defaultContentType
	}

	timeout := c.timeout
	if cfg.timeout > 0 {
		timeout = cfg.timeout
	}

	policy := cfg.retryPolicy(c.retryPolicy)

	// One ID per logical call, so every retry of it carries the same one.
	if GetRequestID(ctx) == "" {
		ctx = WithRequestID(ctx, uuid.New().String())
	}

	transport := chain(c.httpClient.Do, c.middlewares)
	desc := RequestDescriptor{Method: method, URL: reqURL.String()}

	attempt := func(ctx context.Context, _ int) (*Response, error) {
		if c.rateLimiter != nil {
			if err := c.rateLimiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var reqBody io.Reader
		if bodyBytes != nil {
			reqBody = bytes.NewReader(bodyBytes)
		}

		req, err := http.NewRequestWithContext(attemptCtx, method, desc.URL, reqBody)
		if err != nil {
			return nil, err
		}

		for key, values := range c.headers {
			for _, value := range values {
				req.Header.Add(key, value)
			}
		}
		for key, values := range cfg.headers {
			for _, value := range values {
				req.Header.Set(key, value)
			}
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		if c.auth != nil {
			if err := c.auth.Apply(req); err != nil {
				return nil, fmt.Errorf("apply authentication: %w", err)
			}
		}

		resp, err := transport(req)
		if err != nil {
			return nil, attemptError(ctx, attemptCtx, timeout, err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, attemptError(ctx, attemptCtx, timeout, fmt.Errorf("read response body: %w", err))
		}

		return &Response{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Headers:    resp.Header,
			Body:       respBody,
		}, nil
	}

	response, err := c.executor(policy).Do(ctx, desc, attempt)
	if err != nil {
		return response, err
	}

	if result != nil && len(response.Body) > 0 {
		if err := response.JSON(result); err != nil {
			return response, fmt.Errorf("decode response body: %w", err)
		}
	}

	return response, nil
}

// requestURL joins path to the base URL and merges query into any query the
// path already carries.
func (c *Client) requestURL(path string, query url.Values) *url.URL {
	reqURL := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		q := reqURL.Query()
		for key, values := range query {
			for _, value := range values {
				q.Add(key, value)
			}
		}
		reqURL.RawQuery = q.Encode()
	}
	return reqURL
}

// attemptError marks failures caused by the per-attempt timeout so they
// classify as read timeouts while the caller's context is still alive.
func attemptError(parent, attemptCtx context.Context, timeout time.Duration, err error) error {
	if parent.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("request timeout after %v: %w", timeout, err)
	}
	return err
}
