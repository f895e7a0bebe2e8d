package xgate

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader is the header RequestIDMiddleware sets by default.
const RequestIDHeader = "X-Request-ID"

// RoundTripFunc is the function signature for making HTTP requests.
type RoundTripFunc func(*http.Request) (*http.Response, error)

// Middleware wraps every attempt, including retries.
type Middleware func(req *http.Request, next RoundTripFunc) (*http.Response, error)

type requestIDKey struct{}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// RequestIDMiddleware sets headerName to the context request ID, or to a new
// UUID when the context carries none. Client requests always carry one, shared
// by all attempts of a call. An empty headerName uses RequestIDHeader.
func RequestIDMiddleware(headerName string) Middleware {
	if headerName == "" {
		headerName = RequestIDHeader
	}
	return func(req *http.Request, next RoundTripFunc) (*http.Response, error) {
		id := GetRequestID(req.Context())
		if id == "" {
			id = uuid.New().String()
		}
		req.Header.Set(headerName, id)
		return next(req)
	}
}

// LoggingMiddleware logs each attempt at debug level with sensitive headers
// redacted.
func LoggingMiddleware(logger Logger) Middleware {
	if logger == nil {
		logger = nopLogger{}
	}
	return func(req *http.Request, next RoundTripFunc) (*http.Response, error) {
		ctx := req.Context()
		start := time.Now()

		logger.Log(ctx, slog.LevelDebug, "http request",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Any("headers", redactHeadersForLog(req.Header)),
		)

		resp, err := next(req)
		duration := time.Since(start)

		if err != nil {
			logger.Log(ctx, slog.LevelDebug, "http response",
				slog.String("error", err.Error()),
				slog.Duration("duration", duration),
			)
			return resp, err
		}

		logger.Log(ctx, slog.LevelDebug, "http response",
			slog.Int("status", resp.StatusCode),
			slog.Duration("duration", duration),
		)
		return resp, nil
	}
}

func chain(transport RoundTripFunc, middlewares []Middleware) RoundTripFunc {
	for i := len(middlewares) - 1; i >= 0; i-- {
		mw := middlewares[i]
		next := transport
		transport = func(r *http.Request) (*http.Response, error) {
			return mw(r, next)
		}
	}
	return transport
}
