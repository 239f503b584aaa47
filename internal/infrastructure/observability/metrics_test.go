package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colinxr/notion-graph-view-sub001/internal/infrastructure/cache"
)

func TestCollector_Recorders(t *testing.T) {
	c := NewCollector("test")

	c.EventPublished("page.updated")
	c.EventPublished("page.updated")
	c.HandlerCompleted("GraphInvalidator", "page.updated", time.Millisecond, nil)
	c.HandlerCompleted("GraphInvalidator", "page.updated", time.Millisecond, errors.New("boom"))
	c.CacheLookup("graph", true)
	c.CacheLookup("graph", false)
	c.CacheDecodeFailed("graph")
	c.ExtractionCompleted(3, 1)
	c.BackgroundSubmitted(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.EventsPublished.WithLabelValues("page.updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.HandlerFailures.WithLabelValues("GraphInvalidator", "page.updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.CacheHits.WithLabelValues("graph")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.CacheMisses.WithLabelValues("graph")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.CacheDecodeFailures.WithLabelValues("graph")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.BacklinksExtracted))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.UnresolvedReferences))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.BackgroundQueued.WithLabelValues("dropped")))
}

func TestCollector_IndependentRegistries(t *testing.T) {
	a := NewCollector("test")
	b := NewCollector("test")
	a.EventPublished("x")

	assert.Equal(t, 0.0, testutil.ToFloat64(b.EventsPublished.WithLabelValues("x")))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("graphsync")
	c.EventPublished("page.deleted")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `graphsync_events_published_total{event="page.deleted"} 1`)
}

func TestCollector_WatchCacheStore(t *testing.T) {
	ctx := context.Background()
	c := NewCollector("graphsync")
	store := cache.NewMemoryStore(1, 1<<10, nil)
	c.WatchCacheStore(store)

	require.NoError(t, store.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, store.Set(ctx, "b", "2", time.Minute))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, body, "graphsync_cache_items 1")
	assert.Contains(t, body, "graphsync_cache_evictions_total 1")
	assert.Contains(t, body, "graphsync_cache_bytes")
}
