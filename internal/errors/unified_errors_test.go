package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnifiedError_Creation(t *testing.T) {
	tests := []struct {
		name     string
		builder  func() *UnifiedError
		expected *UnifiedError
	}{
		{
			name: "validation error",
			builder: func() *UnifiedError {
				return Validation(CodeInvalidInput.String(), "page title is required").
					WithDetails("field 'title' is empty").
					Build()
			},
			expected: &UnifiedError{
				Type:     ErrorTypeValidation,
				Code:     "INVALID_INPUT",
				Message:  "page title is required",
				Details:  "field 'title' is empty",
				Severity: SeverityLow,
			},
		},
		{
			name: "configuration error",
			builder: func() *UnifiedError {
				return Configuration(CodeMissingHandlerMetadata.String(), "handler has no event").Build()
			},
			expected: &UnifiedError{
				Type:     ErrorTypeConfiguration,
				Code:     "MISSING_HANDLER_METADATA",
				Message:  "handler has no event",
				Severity: SeverityCritical,
			},
		},
		{
			name: "connection error is retryable",
			builder: func() *UnifiedError {
				return Connection(CodeCacheUnavailable.String(), "cache unreachable").Build()
			},
			expected: &UnifiedError{
				Type:      ErrorTypeConnection,
				Code:      "CACHE_UNAVAILABLE",
				Message:   "cache unreachable",
				Severity:  SeverityHigh,
				Retryable: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.builder()

			assert.Equal(t, tt.expected.Type, err.Type)
			assert.Equal(t, tt.expected.Code, err.Code)
			assert.Equal(t, tt.expected.Message, err.Message)
			assert.Equal(t, tt.expected.Details, err.Details)
			assert.Equal(t, tt.expected.Severity, err.Severity)
			assert.Equal(t, tt.expected.Retryable, err.Retryable)
			assert.NotEmpty(t, err.File)
		})
	}
}

func TestUnifiedError_ErrorString(t *testing.T) {
	err := NotFound(CodePageNotFound.String(), "page not found").Build()
	assert.Equal(t, "[NOT_FOUND:PAGE_NOT_FOUND] page not found", err.Error())

	err = NotFound(CodePageNotFound.String(), "page not found").WithDetails("p1").Build()
	assert.Equal(t, "[NOT_FOUND:PAGE_NOT_FOUND] page not found: p1", err.Error())
}

func TestWrap_PreservesTypeAndChain(t *testing.T) {
	base := Conflict(CodeDatabaseNotEmpty.String(), "database still has pages").
		WithResource("database").
		Build()

	wrapped := Wrap(base, "DeleteDatabase", "cannot delete database")
	require.NotNil(t, wrapped)

	assert.True(t, IsConflict(wrapped))
	assert.Equal(t, "database", wrapped.Resource)
	assert.Equal(t, "DeleteDatabase", wrapped.Operation)
	assert.True(t, errors.Is(wrapped, base))

	outer := fmt.Errorf("ingest: %w", wrapped)
	assert.True(t, IsConflict(outer))
	assert.Equal(t, http.StatusConflict, HTTPStatus(outer))
}

func TestWrap_ForeignError(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := Wrap(cause, "SavePage", "failed to save page")

	assert.Equal(t, ErrorTypeInternal, wrapped.Type)
	assert.Equal(t, "disk full", wrapped.Details)
	assert.ErrorIs(t, wrapped, cause)
	assert.Nil(t, Wrap(nil, "noop", "nothing"))
}

func TestClassificationHelpers(t *testing.T) {
	assert.True(t, IsRetryable(Timeout(CodeTimeout.String(), "slow").Build()))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.True(t, IsData(Data(CodeCacheDecode.String(), "bad payload").Build()))
	assert.True(t, IsConfiguration(Configuration(CodeInvalidConfig.String(), "bad").Build()))
	assert.Equal(t, SeverityMedium, GetSeverity(errors.New("plain")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("plain")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound(CodeDatabaseNotFound.String(), "x").Build()))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(Connection(CodeSQLiteError.String(), "locked").Build()))
}

func TestErrorCode_IsRetryable(t *testing.T) {
	assert.True(t, CodeDynamoDBError.IsRetryable())
	assert.True(t, CodeCacheUnavailable.IsRetryable())
	assert.False(t, CodeValidationFailed.IsRetryable())
}
