package xgate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/xgate/xgate-go"

var errNoResponse = errors.New("attempt returned no response")

// RequestDescriptor identifies a logical request in errors and logs.
type RequestDescriptor struct {
	Method string
	URL    string
}

// AttemptFunc performs a single attempt. A non-nil error means no response
// was received; responses with status 400 or above are classified by the
// Executor.
type AttemptFunc func(ctx context.Context, attempt int) (*Response, error)

// Executor runs attempts under a RetryPolicy. It holds no per-call state and
// is safe for concurrent use.
type Executor struct {
	policy  *RetryPolicy
	logger  Logger
	metrics *Metrics
	tracer  trace.Tracer
	logBody LogBodyConfig
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorLogger sets the logger for retry and rate limit events.
func WithExecutorLogger(l Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithExecutorMetrics sets the metrics sink.
func WithExecutorMetrics(m *Metrics) ExecutorOption {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithExecutorClock sets the clock used for Retry-After and reset times.
func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// WithExecutorTracer sets the tracer; the global provider is used otherwise.
func WithExecutorTracer(t trace.Tracer) ExecutorOption {
	return func(e *Executor) {
		if t != nil {
			e.tracer = t
		}
	}
}

func withExecutorLogBody(config LogBodyConfig) ExecutorOption {
	return func(e *Executor) {
		e.logBody = config
	}
}

// NewExecutor creates an Executor. A nil policy performs a single attempt.
func NewExecutor(policy *RetryPolicy, opts ...ExecutorOption) *Executor {
	if policy == nil {
		policy = NoRetry()
	}
	e := &Executor{
		policy:  policy,
		logger:  nopLogger{},
		tracer:  otel.Tracer(instrumentationName),
		logBody: DefaultLogBodyConfig(),
		now:     time.Now,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do runs fn until it succeeds, the policy gives up or ctx ends. On failure
// it returns the last classified error; for API errors the response is
// returned as well.
func (e *Executor) Do(ctx context.Context, desc RequestDescriptor, fn AttemptFunc) (*Response, error) {
	ctx, span := e.tracer.Start(ctx, "xgate "+desc.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", desc.Method),
			attribute.String("url.full", desc.URL),
		),
	)
	defer span.End()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, e.fail(span, contextError(desc, err), attempt-1)
		}

		start := time.Now()
		resp, err := fn(ctx, attempt)
		elapsed := time.Since(start)
		if resp != nil {
			resp.Request = desc
			resp.Attempts = attempt
		}

		var classified ClassifiedError
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				e.metrics.recordAttempt(desc.Method, "cancelled", elapsed)
				return nil, e.fail(span, contextError(desc, ctxErr), attempt)
			}
			classified = NewNetworkError(desc.Method, desc.URL, err)
			resp = nil
		case resp == nil:
			classified = NewNetworkError(desc.Method, desc.URL, errNoResponse)
		case resp.StatusCode >= 400:
			classified = NewErrorFromResponse(resp, WithRequest(desc.Method, desc.URL), WithErrorClock(e.now))
		default:
			e.metrics.recordAttempt(desc.Method, "success", elapsed)
			span.SetAttributes(
				attribute.Int("http.response.status_code", resp.StatusCode),
				attribute.Int("xgate.attempts", attempt),
			)
			return resp, nil
		}
		e.metrics.recordAttempt(desc.Method, classified.Kind().String(), elapsed)

		decision := e.policy.Decide(classified, attempt, e.now())
		if decision.Retry && exceedsDeadline(ctx, decision.Delay) {
			decision = RetryDecision{Reason: "retry would exceed context deadline"}
		}

		if !decision.Retry {
			attrs := append(errorAttrs(classified, e.logBody),
				slog.Int("attempt", attempt),
				slog.String("reason", decision.Reason),
			)
			e.logger.Log(ctx, slog.LevelDebug, "request failed", attrs...)
			return resp, e.fail(span, classified, attempt)
		}

		e.logRetry(ctx, desc, classified, attempt, decision)
		e.metrics.recordRetry(classified.Kind())
		span.AddEvent("retry", trace.WithAttributes(
			attribute.Int("xgate.attempt", attempt),
			attribute.String("xgate.error_kind", classified.Kind().String()),
			attribute.Int64("xgate.delay_ms", decision.Delay.Milliseconds()),
		))

		if err := e.sleep(ctx, decision.Delay); err != nil {
			return nil, e.fail(span, contextError(desc, err), attempt)
		}
	}
}

func (e *Executor) logRetry(ctx context.Context, desc RequestDescriptor, err ClassifiedError, attempt int, decision RetryDecision) {
	if rle, ok := AsRateLimitError(err); ok {
		attrs := []slog.Attr{
			slog.String("method", desc.Method),
			slog.String("url", desc.URL),
			slog.Int("attempt", attempt),
			slog.Int("wait_seconds", int(decision.Delay/time.Second)),
		}
		if secs, ok := rle.RetryAfter(); ok {
			attrs = append(attrs, slog.Int("retry_after_seconds", secs))
		}
		if rle.Info.LimitType != "" {
			attrs = append(attrs, slog.String("limit_type", rle.Info.LimitType))
		}
		e.logger.Log(ctx, slog.LevelWarn, "rate limit hit, waiting", attrs...)
		return
	}

	e.logger.Log(ctx, slog.LevelInfo, "retrying request",
		slog.String("method", desc.Method),
		slog.String("url", desc.URL),
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", e.policy.MaxAttempts),
		slog.Int64("delay_ms", decision.Delay.Milliseconds()),
		slog.String("error_kind", err.Kind().String()),
	)
}

func (e *Executor) fail(span trace.Span, err ClassifiedError, attempts int) error {
	e.metrics.recordFailure(err.Kind())
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Kind().String())
	span.SetAttributes(
		attribute.String("xgate.error_kind", err.Kind().String()),
		attribute.Int("xgate.attempts", attempts),
	)
	if apiErr, ok := AsAPIError(err); ok {
		span.SetAttributes(attribute.Int("http.response.status_code", apiErr.StatusCode))
	}
	return err
}

// contextError converts the end of the caller's context into a terminal
// network error.
func contextError(desc RequestDescriptor, err error) *NetworkError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &NetworkError{
			ErrKind: ErrKindConnectionTimeout,
			Message: "request deadline exceeded",
			Method:  desc.Method,
			URL:     desc.URL,
			Err:     err,
		}
	}
	return &NetworkError{
		ErrKind: ErrKindUnknown,
		Message: "request cancelled",
		Method:  desc.Method,
		URL:     desc.URL,
		Err:     err,
	}
}

func exceedsDeadline(ctx context.Context, delay time.Duration) bool {
	deadline, ok := ctx.Deadline()
	return ok && time.Now().Add(delay).After(deadline)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
