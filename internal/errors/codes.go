// Package errors provides standardized error codes for consistent error handling.
package errors

import "net/http"

// ErrorCode represents a unique error code for specific error scenarios
type ErrorCode string

const (
	// Page and database errors
	CodePageNotFound       ErrorCode = "PAGE_NOT_FOUND"
	CodeDatabaseNotFound   ErrorCode = "DATABASE_NOT_FOUND"
	CodeDatabaseNotEmpty   ErrorCode = "DATABASE_NOT_EMPTY"
	CodePageDatabaseChange ErrorCode = "PAGE_DATABASE_MISMATCH"

	// Backlink errors
	CodeBacklinkDuplicate   ErrorCode = "BACKLINK_DUPLICATE"
	CodeReferenceUnresolved ErrorCode = "REFERENCE_UNRESOLVED"

	// Event bus errors
	CodeMissingHandlerMetadata ErrorCode = "MISSING_HANDLER_METADATA"
	CodeHandlerFailed          ErrorCode = "HANDLER_FAILED"
	CodeHandlerPanicked        ErrorCode = "HANDLER_PANICKED"

	// Cache errors
	CodeCacheUnavailable ErrorCode = "CACHE_UNAVAILABLE"
	CodeCacheDecode      ErrorCode = "CACHE_DECODE_FAILED"
	CodeCacheEncode      ErrorCode = "CACHE_ENCODE_FAILED"

	// Validation and configuration errors
	CodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeInvalidConfig    ErrorCode = "INVALID_CONFIG"

	// Repository errors
	CodeRepositoryError ErrorCode = "REPOSITORY_ERROR"
	CodeDataCorruption  ErrorCode = "DATA_CORRUPTION"

	// Infrastructure errors
	CodeInternalError      ErrorCode = "INTERNAL_ERROR"
	CodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	CodeTimeout            ErrorCode = "TIMEOUT"
	CodeConnectionFailed   ErrorCode = "CONNECTION_FAILED"

	// External service errors
	CodeDynamoDBError    ErrorCode = "DYNAMODB_ERROR"
	CodeEventBridgeError ErrorCode = "EVENTBRIDGE_ERROR"
	CodeSQLiteError      ErrorCode = "SQLITE_ERROR"
)

// HTTPStatusCode returns the appropriate HTTP status code for an error code
func (c ErrorCode) HTTPStatusCode() int {
	switch c {
	case CodeValidationFailed, CodeInvalidInput, CodePageDatabaseChange:
		return http.StatusBadRequest
	case CodePageNotFound, CodeDatabaseNotFound:
		return http.StatusNotFound
	case CodeDatabaseNotEmpty, CodeBacklinkDuplicate:
		return http.StatusConflict
	case CodeServiceUnavailable, CodeConnectionFailed, CodeTimeout, CodeCacheUnavailable,
		CodeDynamoDBError, CodeSQLiteError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// String returns the string representation of the error code
func (c ErrorCode) String() string {
	return string(c)
}

// IsRetryable returns whether an error with this code should be retried
func (c ErrorCode) IsRetryable() bool {
	switch c {
	case CodeTimeout, CodeConnectionFailed, CodeServiceUnavailable,
		CodeCacheUnavailable, CodeDynamoDBError, CodeEventBridgeError, CodeSQLiteError:
		return true
	default:
		return false
	}
}
