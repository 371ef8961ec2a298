// Package errors defines the closed error taxonomy for the adapter layer
// and the mapping from opaque provider faults into it.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// Kind categorizes adapter errors. The set is closed; unclassified
// provider faults map to KindProvider with diagnostic context attached.
type Kind string

const (
	KindConfiguration    Kind = "configuration"
	KindAuthentication   Kind = "authentication"
	KindRateLimit        Kind = "rate_limit"
	KindModelNotFound    Kind = "model_not_found"
	KindInvalidRequest   Kind = "invalid_request"
	KindStreaming        Kind = "streaming"
	KindToolExecution    Kind = "tool_execution"
	KindStructuredOutput Kind = "structured_output"
	KindProvider         Kind = "provider"
)

// Error is the single error type surfaced by the adapter layer.
type Error struct {
	Kind     Kind
	Message  string
	Provider string
	// RetryAfter is a hint attached to rate-limit errors; zero means the
	// provider gave none. Retry policy itself is the caller's problem.
	RetryAfter time.Duration
	Details    map[string]any
	wrapped    error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.wrapped)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.wrapped }

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and provider to an underlying error. Errors that
// already carry a Kind pass through unchanged so classification done close
// to the fault is never overwritten.
func Wrap(kind Kind, provider string, err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if stderrors.As(err, &ae) {
		return ae
	}
	return &Error{Kind: kind, Message: err.Error(), Provider: provider, wrapped: err}
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var ae *Error
	if stderrors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

func isKind(kind Kind) func(error) bool {
	return func(err error) bool { return IsKind(err, kind) }
}

// Predicates for the common branches callers take.
var (
	IsConfiguration    = isKind(KindConfiguration)
	IsAuthentication   = isKind(KindAuthentication)
	IsRateLimit        = isKind(KindRateLimit)
	IsModelNotFound    = isKind(KindModelNotFound)
	IsInvalidRequest   = isKind(KindInvalidRequest)
	IsStreaming        = isKind(KindStreaming)
	IsStructuredOutput = isKind(KindStructuredOutput)
)

// RetryAfter extracts the rate-limit hint, zero when absent.
func RetryAfter(err error) time.Duration {
	var ae *Error
	if stderrors.As(err, &ae) {
		return ae.RetryAfter
	}
	return 0
}

// StatusError preserves the HTTP status and response body of a failed
// provider call so classification can use the structured signal instead
// of guessing from text.
type StatusError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// Map classifies an opaque provider fault into the taxonomy.
//
// Structured HTTP status codes are matched first; the ordered substring
// heuristics below are a best-effort fallback for transports that expose
// no status, and are known to be fragile against restructured or
// localized error text. Errors that already carry a Kind pass through.
func Map(err error, provider string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if stderrors.As(err, &ae) {
		return ae
	}

	var se *StatusError
	if stderrors.As(err, &se) {
		switch {
		case se.Status == 401 || se.Status == 403:
			return &Error{Kind: KindAuthentication, Message: fmt.Sprintf("authentication failed with %s", provider), Provider: provider, wrapped: err}
		case se.Status == 429:
			return &Error{Kind: KindRateLimit, Message: fmt.Sprintf("rate limit exceeded with %s", provider), Provider: provider, RetryAfter: se.RetryAfter, wrapped: err}
		case se.Status == 404:
			return &Error{Kind: KindModelNotFound, Message: fmt.Sprintf("model not found with %s", provider), Provider: provider, wrapped: err}
		case se.Status == 400 || se.Status == 422:
			return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf("invalid request to %s", provider), Provider: provider, wrapped: err}
		}
		return providerError(err, provider)
	}

	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "auth") || strings.Contains(text, "api key") || strings.Contains(text, "token"):
		return &Error{Kind: KindAuthentication, Message: fmt.Sprintf("authentication failed with %s", provider), Provider: provider, wrapped: err}
	case strings.Contains(text, "rate limit") || strings.Contains(text, "429"):
		return &Error{Kind: KindRateLimit, Message: fmt.Sprintf("rate limit exceeded with %s", provider), Provider: provider, wrapped: err}
	case strings.Contains(text, "not found") || strings.Contains(text, "404"):
		return &Error{Kind: KindModelNotFound, Message: fmt.Sprintf("model not found with %s", provider), Provider: provider, wrapped: err}
	case strings.Contains(text, "invalid") || strings.Contains(text, "400"):
		return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf("invalid request to %s", provider), Provider: provider, wrapped: err}
	}
	return providerError(err, provider)
}

func providerError(err error, provider string) *Error {
	return &Error{
		Kind:     KindProvider,
		Message:  fmt.Sprintf("%s error: %v", provider, err),
		Provider: provider,
		Details: map[string]any{
			"original_error":      err.Error(),
			"original_error_type": fmt.Sprintf("%T", err),
		},
		wrapped: err,
	}
}
