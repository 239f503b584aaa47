package cachesync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/colinxr/notion-graph-view-sub001/internal/domain/graph"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/page"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/shared"
	"github.com/colinxr/notion-graph-view-sub001/internal/infrastructure/cache"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Get(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}

func (m *mockStore) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockStore) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

type captureScheduler struct {
	events []shared.DomainEvent
	reject bool
}

func (c *captureScheduler) Submit(ev shared.DomainEvent) bool {
	if c.reject {
		return false
	}
	c.events = append(c.events, ev)
	return true
}

type countingMetrics struct {
	hits, misses, decodeFailures int
}

func (m *countingMetrics) CacheLookup(_ string, hit bool) {
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}
func (m *countingMetrics) CacheDecodeFailed(string) { m.decodeFailures++ }

func sampleGraph() graph.Graph {
	return graph.Graph{
		Nodes: []graph.Node{{ID: "pa1", Label: "Page A", Type: graph.NodeTypePage}, {ID: "pb1", Label: "Page B", Type: graph.NodeTypePage}},
		Edges: []graph.Edge{{ID: "e1", Source: "pa1", Target: "pb1", Label: graph.EdgeLabel, Type: graph.EdgeTypeBacklink}},
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "user:u1:databases", DatabasesKey("u1"))
	assert.Equal(t, "database:db1:graph", GraphKey("db1"))
	assert.Equal(t, GraphKey("db1"), GraphKey("db1"))
}

func TestService_WriteThenRead(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore(100, 1<<20, zaptest.NewLogger(t))
	metrics := &countingMetrics{}
	fixed := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	svc := NewService(store, nil, zaptest.NewLogger(t), WithMetrics(metrics), WithClock(func() time.Time { return fixed }))

	assert.Nil(t, svc.GetCachedGraph(ctx, "db1"))

	require.NoError(t, svc.WriteGraph(ctx, GraphKey("db1"), sampleGraph(), fixed))
	got := svc.GetCachedGraph(ctx, "db1")
	require.NotNil(t, got)
	assert.Equal(t, sampleGraph(), *got)
	assert.True(t, svc.IsCached(ctx, GraphKey("db1")))

	dbs := []page.Database{{ID: "db1", Title: "Notes", OwnerID: "u1"}}
	require.NoError(t, svc.WriteDatabases(ctx, DatabasesKey("u1"), dbs, fixed))
	cached := svc.GetCachedDatabases(ctx, "u1")
	require.NotNil(t, cached)
	assert.Equal(t, "u1", cached.UserID)
	assert.Equal(t, "Notes", cached.Databases[0].Title)
	assert.True(t, fixed.Equal(cached.CachedAt))

	require.NoError(t, svc.InvalidateGraph(ctx, "db1"))
	assert.Nil(t, svc.GetCachedGraph(ctx, "db1"))

	assert.Equal(t, 2, metrics.hits)
	assert.Equal(t, 2, metrics.misses)
}

func TestService_WriteUsesTTL(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	store.On("Get", ctx, "database:db1:graph:invalidatedAt").Return("", false, nil).Twice()
	store.On("Set", ctx, "database:db1:graph", mock.AnythingOfType("string"), 3600*time.Second).Return(nil).Once()

	svc := NewService(store, nil, zaptest.NewLogger(t))
	require.NoError(t, svc.WriteGraph(ctx, GraphKey("db1"), sampleGraph(), time.Now()))
	assert.Equal(t, DefaultTTL, svc.TTL())
	store.AssertExpectations(t)

	custom := NewService(store, nil, nil, WithTTL(time.Minute), WithTTL(0))
	assert.Equal(t, time.Minute, custom.TTL())
}

func TestService_ReadFailuresAreMisses(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		found      bool
		err        error
		decodeFail bool
	}{
		{name: "absent"},
		{name: "store error", err: errors.New("connection refused")},
		{name: "not json", raw: "{garbage", found: true, decodeFail: true},
		{name: "wrong shape", raw: `{"v":1,"data":"not a graph"}`, found: true, decodeFail: true},
		{name: "unknown version", raw: `{"v":2,"data":{"nodes":[],"edges":[]}}`, found: true, decodeFail: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := &mockStore{}
			store.On("Get", ctx, "database:db1:graph").Return(tt.raw, tt.found, tt.err)
			core, logs := observer.New(zapcore.WarnLevel)
			metrics := &countingMetrics{}
			svc := NewService(store, nil, zap.New(core), WithMetrics(metrics))

			var got *graph.Graph
			require.NotPanics(t, func() { got = svc.GetCachedGraph(ctx, "db1") })
			assert.Nil(t, got)
			assert.Equal(t, 1, metrics.misses)
			if tt.decodeFail {
				assert.Equal(t, 1, metrics.decodeFailures)
				assert.Equal(t, 1, logs.FilterMessage("malformed cached value, treating as miss").Len())
			}
			if tt.err != nil {
				assert.Equal(t, 1, logs.FilterMessage("cache read failed, treating as miss").Len())
			}
		})
	}
}

func TestService_ScheduleRepopulate(t *testing.T) {
	sched := &captureScheduler{}
	svc := NewService(&mockStore{}, sched, zaptest.NewLogger(t))

	asOf := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	assert.True(t, svc.ScheduleGraphRepopulate("db1", sampleGraph(), asOf))
	assert.True(t, svc.ScheduleDatabasesRepopulate("u1", []page.Database{{ID: "db1"}}, asOf))
	require.Len(t, sched.events, 2)

	gf := sched.events[0].(*shared.GraphFetchedEvent)
	assert.Equal(t, "database:db1:graph", gf.CacheKey)
	assert.Equal(t, asOf, gf.AsOf)
	df := sched.events[1].(*shared.DatabasesFetchedEvent)
	assert.Equal(t, "user:u1:databases", df.CacheKey)
	assert.Equal(t, "u1", df.UserID)

	sched.reject = true
	assert.False(t, svc.ScheduleGraphRepopulate("db1", sampleGraph(), asOf))
	assert.False(t, NewService(&mockStore{}, nil, nil).ScheduleGraphRepopulate("db1", sampleGraph(), asOf))
}

func TestService_WriteAndInvalidateErrorsSurface(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	store.On("Get", ctx, mock.Anything).Return("", false, nil)
	store.On("Set", ctx, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("down"))
	store.On("Delete", ctx, mock.Anything).Return(errors.New("down"))
	store.On("Exists", ctx, mock.Anything).Return(false, errors.New("down"))
	svc := NewService(store, nil, zaptest.NewLogger(t))

	assert.Error(t, svc.WriteDatabases(ctx, DatabasesKey("u1"), nil, time.Now()))
	assert.Error(t, svc.InvalidateDatabases(ctx, "u1"))
	assert.False(t, svc.IsCached(ctx, "k"))
}

func TestService_SnapshotOlderThanInvalidationIsDropped(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore(100, 1<<20, zaptest.NewLogger(t))
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	svc := NewService(store, nil, zaptest.NewLogger(t), WithClock(func() time.Time { return now }))

	readAt := svc.Now()
	now = now.Add(time.Second)
	require.NoError(t, svc.InvalidateGraph(ctx, "db1"))
	require.NoError(t, svc.InvalidateDatabases(ctx, "u1"))

	require.NoError(t, svc.WriteGraph(ctx, GraphKey("db1"), sampleGraph(), readAt))
	require.NoError(t, svc.WriteDatabases(ctx, DatabasesKey("u1"), []page.Database{{ID: "db1"}}, readAt))
	assert.Nil(t, svc.GetCachedGraph(ctx, "db1"))
	assert.Nil(t, svc.GetCachedDatabases(ctx, "u1"))

	now = now.Add(time.Second)
	require.NoError(t, svc.WriteGraph(ctx, GraphKey("db1"), sampleGraph(), svc.Now()))
	assert.NotNil(t, svc.GetCachedGraph(ctx, "db1"), "a snapshot read after the invalidation is kept")
}

func TestService_InvalidationDuringWriteRemovesEntry(t *testing.T) {
	ctx := context.Background()
	readAt := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	marker := readAt.Add(time.Millisecond).Format(time.RFC3339Nano)

	store := &mockStore{}
	store.On("Get", ctx, "database:db1:graph:invalidatedAt").Return("", false, nil).Once()
	store.On("Set", ctx, "database:db1:graph", mock.AnythingOfType("string"), DefaultTTL).Return(nil).Once()
	store.On("Get", ctx, "database:db1:graph:invalidatedAt").Return(marker, true, nil).Once()
	store.On("Delete", ctx, "database:db1:graph").Return(nil).Once()

	svc := NewService(store, nil, zaptest.NewLogger(t))
	require.NoError(t, svc.WriteGraph(ctx, GraphKey("db1"), sampleGraph(), readAt))
	store.AssertExpectations(t)
}

func TestService_UnreadableMarkerSkipsWrite(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	store.On("Get", ctx, "user:u1:databases:invalidatedAt").Return("", false, errors.New("down"))

	svc := NewService(store, nil, zaptest.NewLogger(t))
	require.NoError(t, svc.WriteDatabases(ctx, DatabasesKey("u1"), nil, time.Now()))
	store.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
