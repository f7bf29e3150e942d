package llm

import (
	"errors"
	"fmt"
)

// LLMError is the base error type for all LLM client errors.
type LLMError struct {
	Code    int
	Message string
	Cause   error
}

func (e *LLMError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("llm error %d: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("llm error %d: %s", e.Code, e.Message)
}

func (e *LLMError) Unwrap() error { return e.Cause }

// RateLimitError is returned when the provider rate-limits the request.
type RateLimitError struct{ LLMError }

// ServerError is returned on 5xx responses from the provider.
type ServerError struct{ LLMError }

// AuthError is returned on authentication/authorization failures.
type AuthError struct{ LLMError }

// ContextLengthError is returned when the request exceeds the model's context window.
type ContextLengthError struct{ LLMError }

// ContentFilterError is returned when the request is blocked by the provider's safety filter.
type ContentFilterError struct{ LLMError }

// Retryable reports whether the error is transient. Nothing in this module
// retries; callers use it to tell the user whether running again may help.
func Retryable(err error) bool {
	var rl *RateLimitError
	var se *ServerError
	return errors.As(err, &rl) || errors.As(err, &se)
}

// statusError maps an HTTP status code onto the error hierarchy.
func statusError(base LLMError) error {
	switch base.Code {
	case 429:
		return &RateLimitError{LLMError: base}
	case 401, 403:
		return &AuthError{LLMError: base}
	case 400:
		return &ContextLengthError{LLMError: base}
	case 500, 502, 503, 529:
		return &ServerError{LLMError: base}
	default:
		return &base
	}
}

// ErrorFromStatus builds the typed error for a provider HTTP failure.
func ErrorFromStatus(code int, message string, cause error) error {
	return statusError(LLMError{Code: code, Message: message, Cause: cause})
}
