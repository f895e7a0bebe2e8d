package xgate

import (
	"net/http"
	"sort"
)

// GeneralErrorField holds messages that are not tied to a specific field.
const GeneralErrorField = "_general"

// ValidationError is the APIError for HTTP 422 with per-field messages.
type ValidationError struct {
	*APIError
	Fields map[string][]string
}

// NewValidationError builds a ValidationError from a raw response. The body
// shape {"errors": {"field": ["msg", ...]}} yields per-field messages;
// anything else is reported under GeneralErrorField.
func NewValidationError(statusCode int, body string, headers http.Header, opts ...ErrorOption) *ValidationError {
	apiErr := newAPIError(statusCode, body, headers, newErrorConfig(opts))

	fields := parseFieldErrors(apiErr.ParsedBody)
	if len(fields) == 0 {
		fields = map[string][]string{GeneralErrorField: {apiErr.Message}}
	}

	return &ValidationError{
		APIError: apiErr,
		Fields:   fields,
	}
}

func parseFieldErrors(body map[string]any) map[string][]string {
	raw, ok := body["errors"].(map[string]any)
	if !ok {
		return nil
	}

	fields := make(map[string][]string, len(raw))
	for field, value := range raw {
		switch v := value.(type) {
		case string:
			fields[field] = []string{v}
		case []any:
			for _, item := range v {
				if msg, ok := item.(string); ok {
					fields[field] = append(fields[field], msg)
				}
			}
		}
	}
	return fields
}

// Unwrap exposes the embedded APIError to errors.As.
func (e *ValidationError) Unwrap() error {
	return e.APIError
}

// FieldErrors returns the messages reported for field.
func (e *ValidationError) FieldErrors(field string) []string {
	return e.Fields[field]
}

// HasFieldErrors returns true if the API reported messages for field.
func (e *ValidationError) HasFieldErrors(field string) bool {
	return len(e.Fields[field]) > 0
}

// FieldNames returns the names of the fields with errors, sorted.
func (e *ValidationError) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FirstError returns the first message of the alphabetically first field.
func (e *ValidationError) FirstError() string {
	for _, name := range e.FieldNames() {
		if msgs := e.Fields[name]; len(msgs) > 0 {
			return msgs[0]
		}
	}
	return e.Message
}
