package xgate

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies the type of error.
type ErrorKind int

const (
	ErrKindUnknown ErrorKind = iota
	ErrKindConnectionTimeout
	ErrKindReadTimeout
	ErrKindConnectionRefused
	ErrKindDNSResolution
	ErrKindSSLCertificate
	ErrKindSSLHandshake
	ErrKindNetworkUnreachable
	ErrKindHostUnreachable
	ErrKindClientError
	ErrKindServerError
	ErrKindRateLimited
)

var errorKindNames = map[ErrorKind]string{
	ErrKindUnknown:            "unknown",
	ErrKindConnectionTimeout:  "connection_timeout",
	ErrKindReadTimeout:        "read_timeout",
	ErrKindConnectionRefused:  "connection_refused",
	ErrKindDNSResolution:      "dns_resolution",
	ErrKindSSLCertificate:     "ssl_certificate",
	ErrKindSSLHandshake:       "ssl_handshake",
	ErrKindNetworkUnreachable: "network_unreachable",
	ErrKindHostUnreachable:    "host_unreachable",
	ErrKindClientError:        "client_error",
	ErrKindServerError:        "server_error",
	ErrKindRateLimited:        "rate_limited",
}

// String returns the snake_case name of the kind.
func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("error_kind(%d)", int(k))
}

// IsRetryable reports whether an operation failing with this kind may succeed
// when attempted again.
func (k ErrorKind) IsRetryable() bool {
	switch k {
	case ErrKindConnectionTimeout,
		ErrKindReadTimeout,
		ErrKindConnectionRefused,
		ErrKindDNSResolution,
		ErrKindNetworkUnreachable,
		ErrKindHostUnreachable,
		ErrKindServerError,
		ErrKindRateLimited:
		return true
	}
	return false
}

// IsNetwork returns true if the kind describes a failure where no response
// was received.
func (k ErrorKind) IsNetwork() bool {
	return k < ErrKindClientError
}

// IsTimeout returns true for connection and read timeouts.
func (k ErrorKind) IsTimeout() bool {
	return k == ErrKindConnectionTimeout || k == ErrKindReadTimeout
}

// ClassifiedError is implemented by every error the client returns after a
// request has been attempted.
type ClassifiedError interface {
	error
	Kind() ErrorKind
	IsRetryable() bool
	Suggestion() string
}

// NetworkError is returned when the transport never produced a response.
type NetworkError struct {
	ErrKind ErrorKind
	Message string
	Method  string
	URL     string
	Err     error
}

// NewNetworkError classifies err and wraps it with the request descriptor.
// The method and URL recorded by net/http are dropped from Message since the
// descriptor already carries them.
func NewNetworkError(method, url string, err error) *NetworkError {
	msg := ""
	if err != nil {
		msg = transportMessage(err)
	}
	return &NetworkError{
		ErrKind: Classify(msg, err),
		Message: msg,
		Method:  method,
		URL:     url,
		Err:     err,
	}
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	if e.Method == "" && e.URL == "" {
		return fmt.Sprintf("%s: %s", e.ErrKind, e.Message)
	}
	return fmt.Sprintf("%s %s: %s: %s", e.Method, e.URL, e.ErrKind, e.Message)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Kind returns the network error category.
func (e *NetworkError) Kind() ErrorKind {
	return e.ErrKind
}

// IsRetryable returns true if the request can be retried.
func (e *NetworkError) IsRetryable() bool {
	return e.ErrKind.IsRetryable()
}

// IsTimeout returns true if the error is a connection or read timeout.
func (e *NetworkError) IsTimeout() bool {
	return e.ErrKind.IsTimeout()
}

// Suggestion returns a human-readable remediation hint.
func (e *NetworkError) Suggestion() string {
	switch e.ErrKind {
	case ErrKindConnectionTimeout:
		return "The connection to the API timed out. Check your network connection and try again."
	case ErrKindReadTimeout:
		return "The API took too long to respond. Try again or increase the request timeout."
	case ErrKindConnectionRefused:
		return "The API refused the connection. Verify the base URL and that the service is available."
	case ErrKindDNSResolution:
		return "The API host name could not be resolved. Check the base URL and your DNS settings."
	case ErrKindSSLCertificate:
		return "The API TLS certificate could not be verified. Check the system CA bundle and the host name."
	case ErrKindSSLHandshake:
		return "The TLS handshake with the API failed. Check proxy and TLS settings."
	case ErrKindNetworkUnreachable:
		return "The network is unreachable. Check your internet connection."
	case ErrKindHostUnreachable:
		return "The API host is unreachable. Check firewall rules and routing."
	default:
		return "An unexpected network error occurred. Try again later."
	}
}

// RecommendedRetryDelay is an advisory wait before retrying, surfaced to
// callers that schedule their own retries.
func (e *NetworkError) RecommendedRetryDelay() time.Duration {
	switch e.ErrKind {
	case ErrKindConnectionTimeout, ErrKindReadTimeout:
		return 5 * time.Second
	case ErrKindNetworkUnreachable, ErrKindHostUnreachable:
		return 10 * time.Second
	case ErrKindConnectionRefused:
		return 30 * time.Second
	default:
		return 15 * time.Second
	}
}

// KindOf returns the kind of the first ClassifiedError in err's chain.
func KindOf(err error) ErrorKind {
	var ce ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind()
	}
	return ErrKindUnknown
}

// IsRetryable returns true if err's chain holds a retryable ClassifiedError.
func IsRetryable(err error) bool {
	var ce ClassifiedError
	if errors.As(err, &ce) {
		return ce.IsRetryable()
	}
	return false
}

// AsAPIError extracts the API error from err's chain, including the API
// error embedded in rate limit and validation errors.
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// AsRateLimitError extracts a RateLimitError from err's chain.
func AsRateLimitError(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}
