package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// FailureKind classifies a failed request
type FailureKind int

const (
	UnknownFailure FailureKind = iota
	NetworkFailure
	HTTPFailure
	NotFound
	ValidationFailure
)

// String returns the taxonomy name of the kind
func (k FailureKind) String() string {
	switch k {
	case NetworkFailure:
		return "NetworkFailure"
	case HTTPFailure:
		return "HttpFailure"
	case NotFound:
		return "NotFound"
	case ValidationFailure:
		return "ValidationFailure"
	default:
		return "UnknownFailure"
	}
}

// Sentinels for errors.Is matching against a *RequestFailure
var (
	ErrNetwork    = errors.New("network failure")
	ErrHTTP       = errors.New("http failure")
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failure")
	ErrUnknown    = errors.New("unknown failure")
)

// RequestFailure is the single error type produced by resource clients.
// NotFound and ValidationFailure are HTTP failures; errors.Is(err, ErrHTTP)
// holds for them too.
type RequestFailure struct {
	Kind       FailureKind
	Method     string
	Path       string
	StatusCode int                 // 0 when no response was received
	RawBody    []byte              // nil when no response was received
	Fields     map[string][]string // field-level messages of a ValidationFailure
	RetryAfter *time.Duration      // parsed Retry-After of a 429 response
	Cause      error
}

// Error implements the error interface
func (f *RequestFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", f.Method, f.Path, f.Kind)
	if f.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", f.StatusCode)
	}
	if f.Cause != nil {
		fmt.Fprintf(&b, ": %v", f.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause
func (f *RequestFailure) Unwrap() error {
	return f.Cause
}

// Is matches the sentinel of the failure kind
func (f *RequestFailure) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return f.Kind == NetworkFailure
	case ErrHTTP:
		return f.Kind == HTTPFailure || f.Kind == NotFound || f.Kind == ValidationFailure
	case ErrNotFound:
		return f.Kind == NotFound
	case ErrValidation:
		return f.Kind == ValidationFailure
	case ErrUnknown:
		return f.Kind == UnknownFailure
	}
	return false
}

// Summary returns a human-readable, single-line description for toasts
func (f *RequestFailure) Summary() string {
	switch f.Kind {
	case NetworkFailure:
		return "server unreachable, check your connection"
	case NotFound:
		return "the item no longer exists"
	case ValidationFailure:
		if len(f.Fields) == 0 {
			return "the server rejected the data"
		}
		return "invalid data: " + f.FieldSummary()
	case HTTPFailure:
		switch {
		case f.StatusCode == http.StatusUnauthorized || f.StatusCode == http.StatusForbidden:
			return "session expired, please log in again"
		case f.StatusCode == http.StatusTooManyRequests:
			if f.RetryAfter != nil {
				return fmt.Sprintf("too many requests, retry in %s", f.RetryAfter.Round(time.Second))
			}
			return "too many requests, retry later"
		case f.StatusCode >= 500:
			return fmt.Sprintf("server error (%d)", f.StatusCode)
		}
		return fmt.Sprintf("request refused (%d)", f.StatusCode)
	}
	return "unexpected error"
}

// FieldSummary joins field messages as "field: msg; other: msg" in field order
func (f *RequestFailure) FieldSummary() string {
	keys := make([]string, 0, len(f.Fields))
	for k := range f.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		msg := strings.Join(f.Fields[k], " ")
		if k == "detail" || k == "non_field_errors" {
			parts = append(parts, msg)
			continue
		}
		parts = append(parts, k+": "+msg)
	}
	return strings.Join(parts, "; ")
}

// AsFailure extracts a *RequestFailure from an error chain
func AsFailure(err error) (*RequestFailure, bool) {
	var f *RequestFailure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Classify builds the failure for a non-success HTTP response
func Classify(method, path string, status int, body []byte) *RequestFailure {
	f := &RequestFailure{
		Kind:       HTTPFailure,
		Method:     method,
		Path:       path,
		StatusCode: status,
		RawBody:    body,
	}
	switch status {
	case http.StatusNotFound:
		f.Kind = NotFound
	case http.StatusBadRequest:
		f.Kind = ValidationFailure
		f.Fields = ParseFieldErrors(body)
	}
	return f
}

// ParseFieldErrors decodes DRF validation bodies:
// {"field": ["msg"]}, {"field": "msg"}, {"detail": "msg"} and {"non_field_errors": [...]}.
// Unparseable bodies yield nil.
func ParseFieldErrors(body []byte) map[string][]string {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil
	}

	out := make(map[string][]string, len(raw))
	for field, value := range raw {
		var list []string
		if err := json.Unmarshal(value, &list); err == nil {
			out[field] = list
			continue
		}
		var single string
		if err := json.Unmarshal(value, &single); err == nil {
			out[field] = []string{single}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
