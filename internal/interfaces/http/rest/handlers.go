package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/colinxr/notion-graph-view-sub001/internal/application/extraction"
	graphapp "github.com/colinxr/notion-graph-view-sub001/internal/application/graph"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/page"
	apperrors "github.com/colinxr/notion-graph-view-sub001/internal/errors"
)

const maxBodyBytes = 10 << 20

// GraphReader serves the read side.
type GraphReader interface {
	DatabaseGraph(ctx context.Context, databaseID string) (*graphapp.GraphView, error)
	UserDatabases(ctx context.Context, userID string) (*graphapp.DatabasesView, error)
}

// Ingester accepts writes from the source system.
type Ingester interface {
	IngestDatabases(ctx context.Context, userID string, databases []page.Database) ([]page.Database, error)
	IngestPages(ctx context.Context, databaseID string, pages []page.Page) ([]string, error)
	UpsertPage(ctx context.Context, p page.Page) error
	DeletePage(ctx context.Context, pageID string) error
	DeleteDatabase(ctx context.Context, databaseID string) error
}

// Extractor runs extraction on demand.
type Extractor interface {
	ExtractDatabase(ctx context.Context, databaseID string) (extraction.Summary, error)
}

// Handler serves the /api/v1 endpoints.
type Handler struct {
	reads     GraphReader
	ingest    Ingester
	extractor Extractor
	logger    *zap.Logger
}

// NewHandler creates the handler.
func NewHandler(reads GraphReader, ingest Ingester, extractor Extractor, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{reads: reads, ingest: ingest, extractor: extractor, logger: logger}
}

// GetUserDatabases handles GET /users/{userID}/databases
func (h *Handler) GetUserDatabases(w http.ResponseWriter, r *http.Request) {
	view, err := h.reads.UserDatabases(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, view)
}

// PutUserDatabases handles PUT /users/{userID}/databases
func (h *Handler) PutUserDatabases(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Databases []page.Database `json:"databases"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	userID := chi.URLParam(r, "userID")
	stored, err := h.ingest.IngestDatabases(r.Context(), userID, body.Databases)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"userId": userID, "databases": stored})
}

// GetDatabaseGraph handles GET /databases/{databaseID}/graph
func (h *Handler) GetDatabaseGraph(w http.ResponseWriter, r *http.Request) {
	view, err := h.reads.DatabaseGraph(r.Context(), chi.URLParam(r, "databaseID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, view)
}

// PutDatabasePages handles PUT /databases/{databaseID}/pages
func (h *Handler) PutDatabasePages(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Pages []page.Page `json:"pages"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	databaseID := chi.URLParam(r, "databaseID")
	ids, err := h.ingest.IngestPages(r.Context(), databaseID, body.Pages)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"databaseId": databaseID, "pageIds": ids})
}

// DeleteDatabase handles DELETE /databases/{databaseID}
func (h *Handler) DeleteDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.ingest.DeleteDatabase(r.Context(), chi.URLParam(r, "databaseID")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExtractDatabase handles POST /databases/{databaseID}/extract
func (h *Handler) ExtractDatabase(w http.ResponseWriter, r *http.Request) {
	sum, err := h.extractor.ExtractDatabase(r.Context(), chi.URLParam(r, "databaseID"))
	if err != nil && sum.Pages == 0 {
		h.respondError(w, r, err)
		return
	}
	// Partial failures still report what was extracted.
	status := http.StatusOK
	if err != nil {
		status = http.StatusMultiStatus
	}
	h.respondJSON(w, status, sum)
}

// PutPage handles PUT /pages/{pageID}
func (h *Handler) PutPage(w http.ResponseWriter, r *http.Request) {
	var p page.Page
	if !h.decode(w, r, &p) {
		return
	}
	pageID := chi.URLParam(r, "pageID")
	if p.ID == "" {
		p.ID = pageID
	}
	if p.ID != pageID {
		h.respondError(w, r, apperrors.Validation(apperrors.CodeInvalidInput.String(), "page id does not match path").Build())
		return
	}
	if err := h.ingest.UpsertPage(r.Context(), p); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeletePage handles DELETE /pages/{pageID}
func (h *Handler) DeletePage(w http.ResponseWriter, r *http.Request) {
	if err := h.ingest.DeletePage(r.Context(), chi.URLParam(r, "pageID")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		h.respondError(w, r, apperrors.Validation(apperrors.CodeInvalidInput.String(), "malformed request body").
			WithDetails(err.Error()).
			WithCause(err).
			Build())
		return false
	}
	return true
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

type errorBody struct {
	Type      apperrors.ErrorType `json:"type"`
	Code      string              `json:"code"`
	Message   string              `json:"message"`
	Details   string              `json:"details,omitempty"`
	RequestID string              `json:"requestId,omitempty"`
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var ue *apperrors.UnifiedError
	if !errors.As(err, &ue) {
		ue = apperrors.Internal(apperrors.CodeInternalError.String(), "internal error").
			WithCause(err).
			Build()
	}
	status := apperrors.HTTPStatus(ue)
	body := errorBody{
		Type:      ue.Type,
		Code:      ue.Code,
		Message:   ue.Message,
		RequestID: middleware.GetReqID(r.Context()),
	}
	if status < http.StatusInternalServerError {
		body.Details = ue.Details
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	} else {
		h.logger.Debug("request rejected",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	h.respondJSON(w, status, map[string]errorBody{"error": body})
}
