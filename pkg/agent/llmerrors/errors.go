// Package llmerrors classifies oracle transport failures for the retry middleware.
package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// ErrorType is the retry category of an oracle error.
type ErrorType int8

const (
	// ErrorTypeRateLimit is a 429 or quota error. Retryable.
	ErrorTypeRateLimit ErrorType = iota
	// ErrorTypeTransient is a 5xx, reset connection or timeout. Retryable.
	ErrorTypeTransient
	// ErrorTypeEmptyResponse is a successful call with no content. Retryable.
	ErrorTypeEmptyResponse
	// ErrorTypeAuth is a 401/403. Not retryable.
	ErrorTypeAuth
	// ErrorTypeBadPrompt is any other 4xx. Not retryable.
	ErrorTypeBadPrompt
	// ErrorTypeUnknown is an unclassified failure.
	ErrorTypeUnknown
	// ErrorTypeServiceUnavailable is emitted once retries are exhausted.
	ErrorTypeServiceUnavailable
)

func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeUnknown:
		return "unknown"
	case ErrorTypeServiceUnavailable:
		return "service_unavailable"
	default:
		return "invalid"
	}
}

// Error is a classified oracle error.
type Error struct {
	Err        error
	Message    string
	Type       ErrorType
	StatusCode int
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("oracle error (%s): %s: %v", e.Type, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("oracle error (%s): %s", e.Type, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("oracle error (%s): %v", e.Type, e.Err)
	default:
		return fmt.Sprintf("oracle error (%s): status %d", e.Type, e.StatusCode)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether the retry middleware should try again.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeAuth, ErrorTypeBadPrompt, ErrorTypeServiceUnavailable:
		return false
	default:
		return true
	}
}

// Is reports whether err is a classified error of the given type.
func Is(err error, errorType ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == errorType
}

// TypeOf returns the classification of err, or ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// NewError creates a classified error.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// NewErrorWithStatus creates a classified error from an HTTP status.
func NewErrorWithStatus(errorType ErrorType, statusCode int, message string) *Error {
	return &Error{Type: errorType, StatusCode: statusCode, Message: message}
}

// NewErrorWithCause creates a classified error wrapping cause.
func NewErrorWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{Type: errorType, Err: cause, Message: message}
}

// FromStatus classifies an HTTP status code: 429 rate limit, 401/403 auth,
// other 4xx bad prompt, 5xx transient.
func FromStatus(statusCode int, cause error) *Error {
	t := ErrorTypeUnknown
	switch {
	case statusCode == http.StatusTooManyRequests:
		t = ErrorTypeRateLimit
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		t = ErrorTypeAuth
	case statusCode >= 400 && statusCode < 500:
		t = ErrorTypeBadPrompt
	case statusCode >= 500:
		t = ErrorTypeTransient
	}
	return &Error{Type: t, StatusCode: statusCode, Err: cause}
}

// IsServiceUnavailable reports whether retries were exhausted.
func IsServiceUnavailable(err error) bool {
	return Is(err, ErrorTypeServiceUnavailable)
}

// NewServiceUnavailableError wraps the last retryable error after attempts.
func NewServiceUnavailableError(cause error, attempts int) *Error {
	return &Error{
		Type:    ErrorTypeServiceUnavailable,
		Err:     cause,
		Message: fmt.Sprintf("service unavailable after %d attempts", attempts),
	}
}

var statusPattern = regexp.MustCompile(`(?i)(?:status(?: code)?:?|http)\s*(\d{3})\b`)

// Classify maps an untyped provider error onto an ErrorType. Typed errors
// and context errors pass through unchanged so callers can still match them.
func Classify(err error, provider string) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) || errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewErrorWithCause(ErrorTypeTransient, err, provider+" request timeout")
	}

	s := err.Error()
	if m := statusPattern.FindStringSubmatch(s); m != nil {
		code, _ := strconv.Atoi(m[1])
		e := FromStatus(code, err)
		e.Message = provider + " API error"
		return e
	}

	lower := strings.ToLower(s)
	switch {
	case containsAny(lower, "connection refused", "connection reset", "no such host", "eof", "timeout", "temporary"):
		return NewErrorWithCause(ErrorTypeTransient, err, provider+" not reachable")
	case strings.Contains(lower, "model") && strings.Contains(lower, "not found"):
		return NewErrorWithCause(ErrorTypeBadPrompt, err, provider+" model not found")
	case containsAny(lower, "rate limit", "quota"):
		return NewErrorWithCause(ErrorTypeRateLimit, err, provider+" rate limited")
	case containsAny(lower, "unauthorized", "api key"):
		return NewErrorWithCause(ErrorTypeAuth, err, provider+" authentication failed")
	default:
		return NewErrorWithCause(ErrorTypeUnknown, err, provider+" API error")
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
