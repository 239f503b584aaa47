package repository

import (
	"fmt"

	"github.com/colinxr/notion-graph-view-sub001/internal/domain/backlink"
	apperrors "github.com/colinxr/notion-graph-view-sub001/internal/errors"
)

// NewPageNotFound reports a missing page.
func NewPageNotFound(pageID string) error {
	return apperrors.NotFound(apperrors.CodePageNotFound.String(), fmt.Sprintf("page '%s' not found", pageID)).
		WithResource("page").
		Build()
}

// NewDatabaseNotFound reports a missing database.
func NewDatabaseNotFound(databaseID string) error {
	return apperrors.NotFound(apperrors.CodeDatabaseNotFound.String(), fmt.Sprintf("database '%s' not found", databaseID)).
		WithResource("database").
		Build()
}

// NewDatabaseNotEmpty reports a delete refused because pages remain.
func NewDatabaseNotEmpty(databaseID string, pages int) error {
	return apperrors.Conflict(apperrors.CodeDatabaseNotEmpty.String(),
		fmt.Sprintf("database '%s' still groups %d page(s)", databaseID, pages)).
		WithResource("database").
		WithDetails("remove or reassign its pages first").
		Build()
}

// NewStorageError wraps a failure of the backing store.
func NewStorageError(code apperrors.ErrorCode, operation string, cause error) error {
	return apperrors.Connection(code.String(), "storage operation failed").
		WithOperation(operation).
		WithCause(cause).
		Build()
}

// NewCorruptRecord reports a stored record that could not be decoded.
func NewCorruptRecord(resource, id string, cause error) error {
	return apperrors.Data(apperrors.CodeDataCorruption.String(), fmt.Sprintf("%s '%s' could not be decoded", resource, id)).
		WithResource(resource).
		WithCause(cause).
		Build()
}

// CheckSource validates that every link belongs to the given source page.
func CheckSource(pageID string, links []backlink.Backlink) error {
	for _, l := range links {
		if l.SourcePageID != pageID {
			return apperrors.Validation(apperrors.CodeInvalidInput.String(),
				fmt.Sprintf("backlink source '%s' does not match page '%s'", l.SourcePageID, pageID)).
				WithResource("backlink").
				Build()
		}
	}
	return nil
}
