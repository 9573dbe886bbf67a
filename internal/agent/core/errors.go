package core

import (
	"errors"
	"fmt"
	"net/http"
)

// LLMErrorKind classifies provider failures so callers can distinguish
// operator problems (auth/credit) from transient ones (rate limits).
type LLMErrorKind string

const (
	LLMErrorAuth      LLMErrorKind = "auth"
	LLMErrorRateLimit LLMErrorKind = "rate_limit"
	LLMErrorGeneric   LLMErrorKind = "generic"
)

// LLMError is a classified LLM provider failure with a user-facing
// message.
type LLMError struct {
	Kind       LLMErrorKind
	Message    string
	StatusCode int
}

func (e *LLMError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm %s error (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("llm %s error: %s", e.Kind, e.Message)
}

// NewLLMStatusError classifies an HTTP status from the provider.
// 401/403 mean a bad key, 402 means the account is out of credit; both
// need operator intervention so they carry an actionable message.
func NewLLMStatusError(status int, body string) *LLMError {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusPaymentRequired:
		return &LLMError{
			Kind:       LLMErrorAuth,
			StatusCode: status,
			Message:    "API key rejected or account out of credit — check OPENAI_API_KEY and billing: " + body,
		}
	case http.StatusTooManyRequests:
		return &LLMError{
			Kind:       LLMErrorRateLimit,
			StatusCode: status,
			Message:    "rate limited by provider, retry later: " + body,
		}
	default:
		return &LLMError{
			Kind:       LLMErrorGeneric,
			StatusCode: status,
			Message:    body,
		}
	}
}

// IsAuthError reports whether err is a classified auth/credit failure.
func IsAuthError(err error) bool {
	var le *LLMError
	return errors.As(err, &le) && le.Kind == LLMErrorAuth
}

// IsRateLimitError reports whether err is a classified rate-limit failure.
func IsRateLimitError(err error) bool {
	var le *LLMError
	return errors.As(err, &le) && le.Kind == LLMErrorRateLimit
}
