package llm

import (
	"errors"
	"fmt"
	"time"
)

// ErrMalformedResponse is matched by every MalformedResponseError.
var ErrMalformedResponse = errors.New("malformed classification response")

// RateLimitedError means the endpoint answered 429. RetryAfter is zero when
// the server sent no usable Retry-After header.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
	}
	return "rate limited"
}

// MalformedKind says how the response failed to parse.
type MalformedKind int

const (
	// NotJSON: no JSON object at all, usually an HTML page or an empty body
	// from a wrong endpoint URL.
	NotJSON MalformedKind = iota
	// InvalidJSON: JSON was present but unusable even after repair, usually a
	// model or prompt problem.
	InvalidJSON
)

func (k MalformedKind) String() string {
	if k == NotJSON {
		return "not json"
	}
	return "invalid json"
}

// MalformedResponseError is returned when the endpoint answered but the
// payload could not be decoded into a suggestion.
type MalformedResponseError struct {
	Kind    MalformedKind
	Snippet string
	Err     error
}

func (e *MalformedResponseError) Error() string {
	msg := fmt.Sprintf("malformed response (%s)", e.Kind)
	if e.Snippet != "" {
		msg += ": " + e.Snippet
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedResponseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedResponse}
	}
	return []error{ErrMalformedResponse, e.Err}
}

// Hint is a user-facing remediation for the failure.
func (e *MalformedResponseError) Hint() string {
	if e.Kind == NotJSON {
		return "check the LLM endpoint URL"
	}
	return "check the LLM model and prompt"
}

// TransportError covers network failures and non-429 API errors.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transport error (http %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
