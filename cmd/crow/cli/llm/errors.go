package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies a failed model call.
type ErrorType string

const (
	ErrorTypeEndpoint  ErrorType = "endpoint"
	ErrorTypeAuth      ErrorType = "auth"
	ErrorTypeModel     ErrorType = "model"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// Error is a classified model error.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
	Model      string
}

func (e *Error) Error() string {
	parts := []string{string(e.Type)}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError creates a classified error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{Type: errType, Message: message, Retryable: retryable, Cause: cause}
}

// ClassifyError maps a provider error onto an *Error by inspecting its
// text. An *Error anywhere in the chain is returned as is.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	errStr := err.Error()
	lower := strings.ToLower(errStr)

	statusCode := 0
	for _, code := range []int{400, 401, 403, 404, 429, 500, 502, 503, 504} {
		if strings.Contains(errStr, fmt.Sprint(code)) {
			statusCode = code
			break
		}
	}

	classify := func(t ErrorType, msg string, retryable bool) *Error {
		e := NewError(t, msg, retryable, err)
		e.StatusCode = statusCode
		return e
	}

	switch {
	case statusCode == 401 || statusCode == 403 || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") || strings.Contains(lower, "api key not valid"):
		return classify(ErrorTypeAuth, "authentication failed", false)
	case strings.Contains(lower, "model") && (strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist")):
		return classify(ErrorTypeModel, "model not found", false)
	case statusCode == 404:
		return classify(ErrorTypeEndpoint, "endpoint not found", false)
	case statusCode == 429 || strings.Contains(lower, "rate limit") || strings.Contains(lower, "resource exhausted"):
		return classify(ErrorTypeRateLimit, "rate limited", true)
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host"):
		return classify(ErrorTypeEndpoint, "connection failed", true)
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return classify(ErrorTypeEndpoint, "request timeout", true)
	case statusCode >= 500:
		return classify(ErrorTypeEndpoint, "server error", true)
	default:
		return classify(ErrorTypeUnknown, "llm error", false)
	}
}

// GetErrorType returns the ErrorType of err, or ErrorTypeUnknown.
func GetErrorType(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

func withModel(e *Error, model string) *Error {
	if e.Model == "" {
		e.Model = model
	}
	return e
}
