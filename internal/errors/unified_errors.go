// Package errors provides the error taxonomy shared by every layer of the
// graph sync pipeline. Configuration errors abort startup; infrastructure,
// data and handler errors are caught at their boundary and logged.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorType defines the category of error for proper handling and response.
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "VALIDATION"
	ErrorTypeConfiguration ErrorType = "CONFIGURATION"
	ErrorTypeNotFound      ErrorType = "NOT_FOUND"
	ErrorTypeConflict      ErrorType = "CONFLICT"

	ErrorTypeInternal    ErrorType = "INTERNAL"
	ErrorTypeTimeout     ErrorType = "TIMEOUT"
	ErrorTypeConnection  ErrorType = "CONNECTION"
	ErrorTypeUnavailable ErrorType = "UNAVAILABLE"

	// Malformed payloads, unresolvable references.
	ErrorTypeData ErrorType = "DATA"
	// A subscriber failed while handling an event.
	ErrorTypeHandler ErrorType = "HANDLER"
)

// ErrorSeverity defines the severity level for logging and monitoring.
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "LOW"
	SeverityMedium   ErrorSeverity = "MEDIUM"
	SeverityHigh     ErrorSeverity = "HIGH"
	SeverityCritical ErrorSeverity = "CRITICAL"
)

// UnifiedError is the single error type used across the module.
type UnifiedError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`

	Operation string `json:"operation,omitempty"`
	Resource  string `json:"resource,omitempty"`

	Severity  ErrorSeverity `json:"severity"`
	Retryable bool          `json:"retryable"`
	Cause     error         `json:"-"`

	File string `json:"-"`
	Line int    `json:"-"`
}

// Error implements the error interface.
func (e *UnifiedError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s:%s] %s: %s", e.Type, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with the underlying cause.
func (e *UnifiedError) Unwrap() error {
	return e.Cause
}

// Is matches another UnifiedError by type and code, so package-level
// sentinels work with errors.Is after wrapping.
func (e *UnifiedError) Is(target error) bool {
	t, ok := target.(*UnifiedError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// String provides a detailed representation for logging.
func (e *UnifiedError) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error: %s\n", e.Error())
	if e.Operation != "" {
		fmt.Fprintf(&b, "Operation: %s\n", e.Operation)
	}
	if e.Resource != "" {
		fmt.Fprintf(&b, "Resource: %s\n", e.Resource)
	}
	fmt.Fprintf(&b, "Severity: %s\n", e.Severity)
	fmt.Fprintf(&b, "Retryable: %t\n", e.Retryable)
	if e.Cause != nil {
		fmt.Fprintf(&b, "Cause: %v\n", e.Cause)
	}
	if e.File != "" && e.Line > 0 {
		fmt.Fprintf(&b, "Location: %s:%d\n", e.File, e.Line)
	}
	return b.String()
}

// ErrorBuilder provides a fluent interface for constructing UnifiedError instances.
type ErrorBuilder struct {
	error *UnifiedError
}

// NewError creates a new error builder with the specified type and message.
func NewError(errType ErrorType, code, message string) *ErrorBuilder {
	_, file, line, _ := runtime.Caller(1)

	return &ErrorBuilder{
		error: &UnifiedError{
			Type:     errType,
			Code:     code,
			Message:  message,
			Severity: SeverityMedium,
			File:     file,
			Line:     line,
		},
	}
}

// WithDetails adds additional details to the error.
func (b *ErrorBuilder) WithDetails(details string) *ErrorBuilder {
	b.error.Details = details
	return b
}

// WithOperation specifies the operation that failed.
func (b *ErrorBuilder) WithOperation(operation string) *ErrorBuilder {
	b.error.Operation = operation
	return b
}

// WithResource specifies the resource being operated on.
func (b *ErrorBuilder) WithResource(resource string) *ErrorBuilder {
	b.error.Resource = resource
	return b
}

// WithSeverity sets the error severity.
func (b *ErrorBuilder) WithSeverity(severity ErrorSeverity) *ErrorBuilder {
	b.error.Severity = severity
	return b
}

// WithRetryable marks the error as retryable.
func (b *ErrorBuilder) WithRetryable(retryable bool) *ErrorBuilder {
	b.error.Retryable = retryable
	return b
}

// WithCause adds the underlying cause error.
func (b *ErrorBuilder) WithCause(cause error) *ErrorBuilder {
	b.error.Cause = cause
	return b
}

// Build returns the constructed UnifiedError.
func (b *ErrorBuilder) Build() *UnifiedError {
	return b.error
}

// Validation creates a validation error.
func Validation(code, message string) *ErrorBuilder {
	return NewError(ErrorTypeValidation, code, message).
		WithSeverity(SeverityLow)
}

// Configuration creates a configuration error. These are programming or
// deployment mistakes and must stop the process at startup.
func Configuration(code, message string) *ErrorBuilder {
	return NewError(ErrorTypeConfiguration, code, message).
		WithSeverity(SeverityCritical)
}

// NotFound creates a not found error.
func NotFound(code, message string) *ErrorBuilder {
	return NewError(ErrorTypeNotFound, code, message).
		WithSeverity(SeverityLow)
}

// Conflict creates a conflict error.
func Conflict(code, message string) *ErrorBuilder {
	return NewError(ErrorTypeConflict, code, message).
		WithSeverity(SeverityMedium)
}

// Internal creates an internal error.
func Internal(code, message string) *ErrorBuilder {
	return NewError(ErrorTypeInternal, code, message).
		WithSeverity(SeverityHigh)
}

// Timeout creates a timeout error.
func Timeout(code, message string) *ErrorBuilder {
	return NewError(ErrorTypeTimeout, code, message).
		WithRetryable(true)
}

// Connection creates a connection error.
func Connection(code, message string) *ErrorBuilder {
	return NewError(ErrorTypeConnection, code, message).
		WithSeverity(SeverityHigh).
		WithRetryable(true)
}

// Unavailable creates an error for a dependency that is temporarily refusing work.
func Unavailable(code, message string) *ErrorBuilder {
	return NewError(ErrorTypeUnavailable, code, message).
		WithRetryable(true)
}

// Data creates a data error (malformed payload, unresolvable reference).
func Data(code, message string) *ErrorBuilder {
	return NewError(ErrorTypeData, code, message).
		WithSeverity(SeverityLow)
}

// Handler creates an event handler error.
func Handler(code, message string) *ErrorBuilder {
	return NewError(ErrorTypeHandler, code, message)
}

// IsType checks if an error is of a specific type.
func IsType(err error, errType ErrorType) bool {
	var unifiedErr *UnifiedError
	if errors.As(err, &unifiedErr) {
		return unifiedErr.Type == errType
	}
	return false
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// IsConfiguration checks if an error is a configuration error.
func IsConfiguration(err error) bool {
	return IsType(err, ErrorTypeConfiguration)
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsConflict checks if an error is a conflict error.
func IsConflict(err error) bool {
	return IsType(err, ErrorTypeConflict)
}

// IsData checks if an error is a data error.
func IsData(err error) bool {
	return IsType(err, ErrorTypeData)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var unifiedErr *UnifiedError
	if errors.As(err, &unifiedErr) {
		return unifiedErr.Retryable
	}
	return false
}

// GetSeverity returns the severity of an error.
func GetSeverity(err error) ErrorSeverity {
	var unifiedErr *UnifiedError
	if errors.As(err, &unifiedErr) {
		return unifiedErr.Severity
	}
	return SeverityMedium
}

// HTTPStatus maps an error to a response status through its code.
func HTTPStatus(err error) int {
	var unifiedErr *UnifiedError
	if errors.As(err, &unifiedErr) {
		return ErrorCode(unifiedErr.Code).HTTPStatusCode()
	}
	return ErrorCode(CodeInternalError).HTTPStatusCode()
}

// Wrap wraps an existing error with additional context while preserving the original error chain.
func Wrap(err error, operation, message string) *UnifiedError {
	if err == nil {
		return nil
	}

	var existingErr *UnifiedError
	if errors.As(err, &existingErr) {
		return &UnifiedError{
			Type:      existingErr.Type,
			Code:      existingErr.Code,
			Message:   message,
			Details:   existingErr.Message,
			Operation: operation,
			Resource:  existingErr.Resource,
			Severity:  existingErr.Severity,
			Retryable: existingErr.Retryable,
			Cause:     err,
			File:      existingErr.File,
			Line:      existingErr.Line,
		}
	}

	_, file, line, _ := runtime.Caller(1)
	return &UnifiedError{
		Type:      ErrorTypeInternal,
		Code:      "WRAP_ERROR",
		Message:   message,
		Details:   err.Error(),
		Operation: operation,
		Severity:  SeverityMedium,
		Cause:     err,
		File:      file,
		Line:      line,
	}
}
