package xgate

import (
	"net/http"
	"strings"
	"testing"
	"time"
)

func FuzzParseRetryAfter(f *testing.F) {
	f.Add("0")
	f.Add("60")
	f.Add("3600")
	f.Add("")
	f.Add("abc")
	f.Add("-1")
	f.Add("999999999999999999999")
	f.Add("Wed, 21 Oct 2015 07:28:00 GMT")
	f.Add("Fri, 31 Dec 2099 23:59:59 GMT")

	now := time.Unix(1_700_000_000, 0)

	f.Fuzz(func(t *testing.T, input string) {
		d, ok := ParseRetryAfter(input, now)

		if d < 0 {
			t.Errorf("ParseRetryAfter(%q) returned negative duration: %v", input, d)
		}
		if !ok && d != 0 {
			t.Errorf("ParseRetryAfter(%q) = %v without ok", input, d)
		}
	})
}

func FuzzClassify(f *testing.F) {
	f.Add("connection timed out")
	f.Add("read tcp 10.0.0.1:443: i/o timeout")
	f.Add("dial tcp: connection refused")
	f.Add("DNS lookup failed")
	f.Add("SSL certificate problem")
	f.Add("TLS handshake timeout")
	f.Add("network unreachable")
	f.Add("")

	f.Fuzz(func(t *testing.T, message string) {
		kind := Classify(message, nil)

		if kind >= ErrKindClientError {
			t.Errorf("Classify(%q) = %v, want a network kind", message, kind)
		}
		if err := NewNetworkError("GET", "/", &fuzzError{message}); err.Kind() != kind {
			t.Errorf("NewNetworkError kind %v differs from Classify %v", err.Kind(), kind)
		}
	})
}

type fuzzError struct{ msg string }

func (e *fuzzError) Error() string { return e.msg }

func FuzzNewErrorFromResponse(f *testing.F) {
	f.Add(429, `{"message":"slow down","retry_after":30}`, "30")
	f.Add(422, `{"errors":{"amount":["too small"]}}`, "")
	f.Add(500, `not json`, "")
	f.Add(404, ``, "")
	f.Add(429, `{"reset_time":"soon","limit":-5}`, "Wed, 21 Oct 2015 07:28:00 GMT")
	f.Add(400, `{"errors":[1,2,3]}`, "")

	now := time.Unix(1_700_000_000, 0)

	f.Fuzz(func(t *testing.T, status int, body, retryAfter string) {
		if status < 400 || status > 599 {
			return
		}
		headers := http.Header{}
		if retryAfter != "" {
			headers.Set("Retry-After", retryAfter)
		}

		err := NewErrorFromResponse(
			&Response{StatusCode: status, Headers: headers, Body: []byte(body)},
			WithErrorClock(func() time.Time { return now }),
		)

		if err.Error() == "" {
			t.Error("empty error message")
		}
		if !strings.Contains(err.Error(), "HTTP") {
			t.Errorf("error %q does not name the status", err.Error())
		}
		if status == http.StatusTooManyRequests {
			rle, ok := AsRateLimitError(err)
			if !ok {
				t.Fatalf("429 produced %T", err)
			}
			if secs, ok := rle.RetryAfter(); ok && secs < 0 {
				t.Errorf("negative retry after %d", secs)
			}
		}
		_ = err.Suggestion()
	})
}
