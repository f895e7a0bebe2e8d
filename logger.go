package xgate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Logger defines the interface for structured logging.
type Logger interface {
	Log(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr)
}

// LogBodyConfig configures body logging behavior.
type LogBodyConfig struct {
	MaxBodySize    int // total body limit in bytes (default: 4096)
	MaxStringValue int // max JSON string value in bytes (default: 1024)
}

// DefaultLogBodyConfig returns the default body logging configuration.
func DefaultLogBodyConfig() LogBodyConfig {
	return LogBodyConfig{
		MaxBodySize:    4096, // 4KB
		MaxStringValue: 1024, // 1KB
	}
}

// slogLogger adapts *slog.Logger to Logger.
type slogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger returns a Logger writing to l, or to slog.Default when l is nil.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &slogLogger{logger: l}
}

func (l *slogLogger) Log(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr) {
	l.logger.LogAttrs(ctx, level, msg, attrs...)
}

type nopLogger struct{}

func (nopLogger) Log(context.Context, slog.Level, string, ...slog.Attr) {}

// sensitiveHeaders contains headers that should be redacted in logs.
var sensitiveHeaders = []string{
	"authorization",
	"x-api-key",
	"cookie",
	"set-cookie",
}

// sensitivePatterns contains patterns that indicate sensitive headers.
var sensitivePatterns = []string{
	"token",
	"secret",
	"password",
	"key",
}

func isSensitiveHeader(name string) bool {
	lower := strings.ToLower(name)

	for _, h := range sensitiveHeaders {
		if lower == h {
			return true
		}
	}

	for _, pattern := range sensitivePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}

	return false
}

// redactHeadersForLog returns a copy of headers with sensitive values redacted.
func redactHeadersForLog(headers map[string][]string) map[string]string {
	result := make(map[string]string, len(headers))
	for name, values := range headers {
		if isSensitiveHeader(name) {
			result[name] = "[REDACTED]"
		} else if len(values) > 0 {
			result[name] = strings.Join(values, ", ")
		}
	}
	return result
}

// formatBodyForLog truncates an API response body for logging. Error bodies
// from the API are JSON, anything else is logged as text.
func formatBodyForLog(body []byte, config LogBodyConfig) any {
	if len(body) == 0 {
		return nil
	}

	if len(body) > config.MaxBodySize {
		return fmt.Sprintf("[body: %s truncated]", formatBytes(len(body)))
	}

	var data any
	if err := json.Unmarshal(body, &data); err == nil {
		return truncateJSONStrings(data, config.MaxStringValue)
	}

	return string(body)
}

// truncateJSONStrings recursively truncates large string values in JSON data.
func truncateJSONStrings(data any, maxSize int) any {
	switch v := data.(type) {
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, value := range v {
			result[key] = truncateJSONStrings(value, maxSize)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, value := range v {
			result[i] = truncateJSONStrings(value, maxSize)
		}
		return result
	case string:
		if len(v) > maxSize {
			return fmt.Sprintf("[string: %s truncated]", formatBytes(len(v)))
		}
		return v
	default:
		return v
	}
}

func formatBytes(bytes int) string {
	const (
		KB = 1024
		MB = 1024 * KB
	)

	switch {
	case bytes >= MB:
		return fmt.Sprintf("%.1fMB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1fKB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}

// errorAttrs returns the log attributes describing a classified error.
func errorAttrs(err ClassifiedError, body LogBodyConfig) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("error_kind", err.Kind().String()),
		slog.Bool("retryable", err.IsRetryable()),
	}

	if apiErr, ok := AsAPIError(err); ok {
		attrs = append(attrs,
			slog.Int("status", apiErr.StatusCode),
			slog.Any("response_headers", redactHeadersForLog(apiErr.Headers)),
		)
		if formatted := formatBodyForLog([]byte(apiErr.Body), body); formatted != nil {
			attrs = append(attrs, slog.Any("response_body", formatted))
		}
	} else {
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	return attrs
}
