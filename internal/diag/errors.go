package diag

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType categorizes remote diagnostic failures for retry classification.
type ErrorType string

const (
	// ErrorTypeTimeout indicates request timeout or deadline exceeded (retryable).
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeRateLimit indicates rate limit exceeded, retry with backoff (retryable).
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeNetwork indicates network connectivity issues (retryable).
	ErrorTypeNetwork ErrorType = "network"

	// ErrorTypeService indicates the diagnostic service is unavailable (retryable).
	ErrorTypeService ErrorType = "service_unavailable"

	// ErrorTypeCircuitOpen indicates circuit breaker protection activated (retryable later).
	ErrorTypeCircuitOpen ErrorType = "circuit_open"

	// ErrorTypeAuth indicates authentication failed (non-retryable).
	ErrorTypeAuth ErrorType = "authentication"

	// ErrorTypeQuota indicates account quota exceeded (non-retryable).
	ErrorTypeQuota ErrorType = "quota_exceeded"

	// ErrorTypeValidation indicates the request was rejected as invalid (non-retryable).
	ErrorTypeValidation ErrorType = "validation_failed"

	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = "unknown"
)

// Common diagnostic client errors.
var (
	// ErrServiceUnavailable indicates the diagnostic service is down or unreachable.
	ErrServiceUnavailable = errors.New("diagnostic service unavailable")

	// ErrCircuitOpen indicates the circuit breaker is open.
	ErrCircuitOpen = errors.New("diagnostic circuit breaker open")

	// ErrRateLimited indicates the local rate limit was exceeded.
	ErrRateLimited = errors.New("diagnostic rate limit exceeded")

	// ErrMaxRetriesExceeded indicates all retry attempts were exhausted.
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")

	// ErrEmptyContent indicates the service returned an empty payload.
	ErrEmptyContent = errors.New("empty response content")
)

// ServiceError captures a structured error response from the diagnostic
// service with enough context for retry decisions.
type ServiceError struct {
	StatusCode int       `json:"status_code"`
	Message    string    `json:"message"`
	Code       string    `json:"code,omitempty"`
	Type       ErrorType `json:"type"`

	// RetryAfter is the server-requested wait in seconds, zero if absent.
	RetryAfter int `json:"retry_after,omitempty"`
}

// Error returns the formatted service error.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("diagnostic service error (status %d): %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether the error warrants another attempt.
func (e *ServiceError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeNetwork, ErrorTypeService:
		return true
	default:
		return false
	}
}

// classifyStatus maps an HTTP status to an error type.
func classifyStatus(status int) ErrorType {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrorTypeAuth
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return ErrorTypeTimeout
	case status == http.StatusPaymentRequired:
		return ErrorTypeQuota
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return ErrorTypeValidation
	case status >= 500:
		return ErrorTypeService
	default:
		return ErrorTypeUnknown
	}
}

// IsRetryable classifies any error returned by the client pipeline.
func IsRetryable(err error) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.IsRetryable()
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrRateLimited) {
		return false // fail fast locally; the activity layer decides when to come back
	}
	// Transport-level errors (connection refused, DNS, timeouts) arrive as
	// wrapped net/url errors and are worth another attempt.
	return true
}
