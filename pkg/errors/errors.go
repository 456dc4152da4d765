// Package errors provides the structured error type used across tiercache.
package errors

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// ErrorCode identifies a class of failure.
type ErrorCode string

const (
	// Configuration
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigSave    ErrorCode = "CONFIG_SAVE"

	// Tier I/O
	ErrCodeDiskRead      ErrorCode = "DISK_READ"
	ErrCodeDiskWrite     ErrorCode = "DISK_WRITE"
	ErrCodeDiskDelete    ErrorCode = "DISK_DELETE"
	ErrCodeNetworkFetch  ErrorCode = "NETWORK_FETCH"
	ErrCodeSerialization ErrorCode = "SERIALIZATION"

	// Health classifications
	ErrCodeLowHitRate     ErrorCode = "LOW_HIT_RATE"
	ErrCodeSlowResponse   ErrorCode = "SLOW_RESPONSE"
	ErrCodeMemoryPressure ErrorCode = "MEMORY_PRESSURE"

	// Operation
	ErrCodeInvalidArgument    ErrorCode = "INVALID_ARGUMENT"
	ErrCodeOperationCanceled  ErrorCode = "OPERATION_CANCELED"
	ErrCodeRetryExhausted     ErrorCode = "RETRY_EXHAUSTED"
	ErrCodeCircuitOpen        ErrorCode = "CIRCUIT_OPEN"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeInternalError      ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory groups error codes.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryIO            ErrorCategory = "io"
	CategorySerialization ErrorCategory = "serialization"
	CategoryHealth        ErrorCategory = "health"
	CategoryOperation     ErrorCategory = "operation"
	CategoryInternal      ErrorCategory = "internal"
)

// CacheError is a structured error carrying a code and operational context.
type CacheError struct {
	Code      ErrorCode      `json:"code"`
	Category  ErrorCategory  `json:"category"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Cause     error          `json:"-"`
	Timestamp time.Time      `json:"timestamp"`

	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`

	Retryable  bool `json:"retryable"`
	HTTPStatus int  `json:"http_status,omitempty"`
}

func (e *CacheError) Error() string {
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CacheError) Unwrap() error {
	return e.Cause
}

// Is matches any *CacheError with the same code.
func (e *CacheError) Is(target error) bool {
	if other, ok := target.(*CacheError); ok {
		return e.Code == other.Code
	}
	return false
}

// String returns a detailed single-line representation for logs.
func (e *CacheError) String() string {
	parts := []string{
		fmt.Sprintf("Code=%s", e.Code),
		fmt.Sprintf("Category=%s", e.Category),
		fmt.Sprintf("Message=%q", e.Message),
	}
	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if len(e.Details) > 0 {
		details, _ := json.Marshal(e.Details)
		parts = append(parts, fmt.Sprintf("Details=%s", details))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}
	return fmt.Sprintf("CacheError{%s}", strings.Join(parts, ", "))
}

// NewError creates a CacheError with defaults derived from its code.
func NewError(code ErrorCode, message string) *CacheError {
	return &CacheError{
		Code:       code,
		Category:   GetCategory(code),
		Message:    message,
		Timestamp:  time.Now(),
		Details:    make(map[string]any),
		Retryable:  IsRetryableByDefault(code),
		HTTPStatus: GetDefaultHTTPStatus(code),
	}
}

// Newf is NewError with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *CacheError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// Wrap creates a CacheError with the given cause.
func Wrap(cause error, code ErrorCode, message string) *CacheError {
	return NewError(code, message).WithCause(cause)
}

// GetCategory determines the category from the code.
func GetCategory(code ErrorCode) ErrorCategory {
	s := string(code)
	switch {
	case s == string(ErrCodeInvalidConfig) || strings.HasPrefix(s, "CONFIG_"):
		return CategoryConfiguration
	case strings.HasPrefix(s, "DISK_") || strings.HasPrefix(s, "NETWORK_"):
		return CategoryIO
	case code == ErrCodeSerialization:
		return CategorySerialization
	case code == ErrCodeLowHitRate || code == ErrCodeSlowResponse || code == ErrCodeMemoryPressure:
		return CategoryHealth
	case strings.HasPrefix(s, "OPERATION_") || strings.HasPrefix(s, "RETRY_") ||
		strings.HasPrefix(s, "CIRCUIT_") || strings.HasPrefix(s, "SERVICE_") ||
		code == ErrCodeInvalidArgument:
		return CategoryOperation
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault reports whether the code describes a transient failure.
func IsRetryableByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeNetworkFetch, ErrCodeDiskRead, ErrCodeServiceUnavailable, ErrCodeInternalError:
		return true
	}
	return false
}

// GetDefaultHTTPStatus maps a code to the status the admin API reports.
func GetDefaultHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidConfig, ErrCodeInvalidArgument:
		return 400
	case ErrCodeLowHitRate, ErrCodeSlowResponse, ErrCodeMemoryPressure,
		ErrCodeServiceUnavailable, ErrCodeCircuitOpen:
		return 503
	case ErrCodeOperationCanceled:
		return 499
	}
	return 500
}

// HasCode reports whether err is a CacheError (possibly wrapped) with code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if ce, ok := err.(*CacheError); ok && ce.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func (e *CacheError) WithDetail(key string, value any) *CacheError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *CacheError) WithComponent(component string) *CacheError {
	e.Component = component
	return e
}

func (e *CacheError) WithOperation(operation string) *CacheError {
	e.Operation = operation
	return e
}

func (e *CacheError) WithCause(cause error) *CacheError {
	e.Cause = cause
	return e
}

// WithRetryable overrides the code's retry default.
func (e *CacheError) WithRetryable(retryable bool) *CacheError {
	e.Retryable = retryable
	return e
}
