package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/colinxr/notion-graph-view-sub001/internal/application/cachesync"
	"github.com/colinxr/notion-graph-view-sub001/internal/application/extraction"
	graphapp "github.com/colinxr/notion-graph-view-sub001/internal/application/graph"
	"github.com/colinxr/notion-graph-view-sub001/internal/application/handlers"
	"github.com/colinxr/notion-graph-view-sub001/internal/application/ingest"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/backlink"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/shared"
	"github.com/colinxr/notion-graph-view-sub001/internal/infrastructure/cache"
	"github.com/colinxr/notion-graph-view-sub001/internal/infrastructure/events"
	"github.com/colinxr/notion-graph-view-sub001/internal/infrastructure/observability"
	"github.com/colinxr/notion-graph-view-sub001/internal/repository/memory"
)

type busScheduler struct {
	bus *events.Bus
}

func (s busScheduler) Submit(ev shared.DomainEvent) bool {
	s.bus.Publish(context.Background(), ev)
	return true
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := zaptest.NewLogger(t)
	repo := memory.New()
	bus := events.NewBus(logger, nil)
	collector := observability.NewCollector("graphsync")

	caches := cachesync.NewService(cache.NewMemoryStore(100, 1<<20, logger), busScheduler{bus: bus}, logger)
	ext := extraction.NewService(repo, bus, backlink.DefaultOptions(), logger, collector)
	require.NoError(t, bus.RegisterAll(handlers.Registrations(handlers.Deps{
		Graphs:     caches,
		Databases:  caches,
		Extractor:  ext,
		Repository: repo,
		Logger:     logger,
	})))

	h := NewHandler(
		graphapp.NewService(repo, caches, logger),
		ingest.NewService(repo, bus, caches, logger),
		ext,
		logger)
	srv := httptest.NewServer(NewRouter(RouterConfig{
		Handler:        h,
		Metrics:        collector,
		MetricsHandler: collector.Handler(),
		AllowedOrigins: []string{"http://localhost:3000"},
		Logger:         logger,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var out struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	return out.Error.Code
}

func seed(t *testing.T, srv *httptest.Server) {
	t.Helper()
	resp, _ := do(t, srv, http.MethodPut, "/api/v1/users/u1/databases", `{"databases":[{"id":"db1","title":"Notes"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodPut, "/api/v1/databases/db1/pages", `{"pages":[
		{"id":"pa1","title":"Page A","content":"See [[Page B]] for details"},
		{"id":"pb1","title":"Page B"}
	]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_Health(t *testing.T) {
	srv := newServer(t)
	resp, body := do(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"healthy"}`, string(body))
}

func TestRouter_GraphRoundTrip(t *testing.T) {
	srv := newServer(t)
	seed(t, srv)

	resp, body := do(t, srv, http.MethodGet, "/api/v1/databases/db1/graph", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var view graphapp.GraphView
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, graphapp.SourceStore, view.Source)
	assert.Len(t, view.Graph.Nodes, 2)
	require.Len(t, view.Graph.Edges, 1)
	assert.Equal(t, "pa1", view.Graph.Edges[0].Source)
	assert.Equal(t, "pb1", view.Graph.Edges[0].Target)

	_, body = do(t, srv, http.MethodGet, "/api/v1/databases/db1/graph", "")
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, graphapp.SourceCache, view.Source)
}

func TestRouter_UserDatabases(t *testing.T) {
	srv := newServer(t)
	seed(t, srv)

	resp, body := do(t, srv, http.MethodGet, "/api/v1/users/u1/databases", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view graphapp.DatabasesView
	require.NoError(t, json.Unmarshal(body, &view))
	require.Len(t, view.Databases, 1)
	assert.Equal(t, []string{"pa1", "pb1"}, view.Databases[0].PageIDs)
}

func TestRouter_ErrorMapping(t *testing.T) {
	srv := newServer(t)
	seed(t, srv)

	resp, body := do(t, srv, http.MethodGet, "/api/v1/databases/nope/graph", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "DATABASE_NOT_FOUND", errorCode(t, body))

	resp, body = do(t, srv, http.MethodPut, "/api/v1/databases/db1/pages", `{"pages":[{"id":"px","databaseId":"db9"}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "PAGE_DATABASE_MISMATCH", errorCode(t, body))

	resp, body = do(t, srv, http.MethodPut, "/api/v1/databases/db1/pages", `{"pages":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_INPUT", errorCode(t, body))

	resp, body = do(t, srv, http.MethodDelete, "/api/v1/databases/db1", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "DATABASE_NOT_EMPTY", errorCode(t, body))
}

func TestHandler_UntypedErrorBecomesInternal(t *testing.T) {
	h := NewHandler(nil, nil, nil, zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	h.respondError(rec, httptest.NewRequest(http.MethodGet, "/api/v1/databases/db1/graph", nil),
		errors.New("dial tcp: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, rec.Body.Bytes()))
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestRouter_PageLifecycle(t *testing.T) {
	srv := newServer(t)
	seed(t, srv)

	resp, _ := do(t, srv, http.MethodPut, "/api/v1/pages/pc1", `{"title":"Page C","databaseId":"db1","content":"Back to [[Page A]]"}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := do(t, srv, http.MethodPut, "/api/v1/pages/pc1", `{"id":"other","databaseId":"db1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_INPUT", errorCode(t, body))

	var view graphapp.GraphView
	_, body = do(t, srv, http.MethodGet, "/api/v1/databases/db1/graph", "")
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Len(t, view.Graph.Nodes, 3)
	assert.Len(t, view.Graph.Edges, 2)

	resp, _ = do(t, srv, http.MethodDelete, "/api/v1/pages/pb1", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, body = do(t, srv, http.MethodDelete, "/api/v1/pages/pb1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "PAGE_NOT_FOUND", errorCode(t, body))

	_, body = do(t, srv, http.MethodGet, "/api/v1/databases/db1/graph", "")
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Len(t, view.Graph.Nodes, 2)
	require.Len(t, view.Graph.Edges, 1)
	assert.Equal(t, "pc1", view.Graph.Edges[0].Source)
}

func TestRouter_ExtractOnDemand(t *testing.T) {
	srv := newServer(t)
	seed(t, srv)

	resp, body := do(t, srv, http.MethodPost, "/api/v1/databases/db1/extract", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sum extraction.Summary
	require.NoError(t, json.Unmarshal(body, &sum))
	assert.Equal(t, 2, sum.Pages)
	assert.Equal(t, 1, sum.Edges)
}

func TestRouter_MetricsUseRoutePatterns(t *testing.T) {
	srv := newServer(t)
	seed(t, srv)
	do(t, srv, http.MethodGet, "/api/v1/databases/db1/graph", "")

	resp, body := do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	text := string(body)
	assert.Contains(t, text, `graphsync_http_requests_total{method="GET",route="/api/v1/databases/{databaseID}/graph",status="200"} 1`)
	assert.NotContains(t, text, `route="/api/v1/databases/db1/graph"`)
}

func TestRouter_CORSPreflight(t *testing.T) {
	srv := newServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/databases/db1/graph", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}
