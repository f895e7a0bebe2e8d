// Package internal contains request encoding helpers for the xgate client.
package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
)

// EncodeBody encodes the given body into bytes and returns the content type.
// The bytes are replayed on every attempt. Supported types:
//   - nil: returns nil with empty content type
//   - []byte, string: returned as-is
//   - json.RawMessage: returned as-is with a JSON content type
//   - io.Reader: read fully
//   - url.Values: form-encoded
//   - other: JSON encoded
func EncodeBody(body any) ([]byte, string, error) {
	if body == nil {
		return nil, "", nil
	}

	switch v := body.(type) {
	case json.RawMessage:
		return v, "application/json", nil
	case []byte:
		return v, "", nil
	case string:
		return []byte(v), "", nil
	case io.Reader:
		data, err := io.ReadAll(v)
		if err != nil {
			return nil, "", fmt.Errorf("read request body: %w", err)
		}
		return data, "", nil
	case url.Values:
		return []byte(v.Encode()), "application/x-www-form-urlencoded", nil
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err != nil {
			return nil, "", fmt.Errorf("encode request body: %w", err)
		}
		return bytes.TrimRight(buf.Bytes(), "\n"), "application/json", nil
	}
}

