package di

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/colinxr/notion-graph-view-sub001/internal/config"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/shared"
	apperrors "github.com/colinxr/notion-graph-view-sub001/internal/errors"
	"github.com/colinxr/notion-graph-view-sub001/internal/repository/sqlite"
)

func TestInitializeContainer_Memory(t *testing.T) {
	cfg := config.Default()

	c, cleanup, err := InitializeContainer(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(cleanup)

	assert.NotEmpty(t, c.Handlers)
	assert.Equal(t,
		[]string{"DatabaseExtractor", "GraphInvalidator", "DatabasesInvalidator"},
		c.Bus.Handlers(shared.EventPagesFetched))
	assert.Equal(t, cfg.Cache.TTL, c.CacheSync.TTL())

	rec := httptest.NewRecorder()
	c.HTTPHandler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInitializeContainer_MirrorRegisteredLast(t *testing.T) {
	cfg := config.Default()
	cfg.Events.MirrorEnabled = true

	c, cleanup, err := InitializeContainer(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(cleanup)

	names := c.Bus.Handlers(shared.EventPageDeleted)
	require.NotEmpty(t, names)
	assert.Equal(t, "EventMirror", names[len(names)-1])
	assert.Empty(t, c.Bus.Handlers(shared.EventGraphFetched)[1:], "fetched views stay in-process")
}

func TestInitializeContainer_SQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = config.DriverSQLite
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "graph.db")

	c, cleanup, err := InitializeContainer(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(cleanup)

	_, ok := c.Repository.(*sqlite.Store)
	assert.True(t, ok)
}

func TestInitializeContainer_UnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = "postgres"

	_, _, err := InitializeContainer(context.Background(), cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.True(t, apperrors.IsConfiguration(err))
}
