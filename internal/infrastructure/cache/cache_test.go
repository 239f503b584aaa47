package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	apperrors "github.com/colinxr/notion-graph-view-sub001/internal/errors"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMemoryStore(t *testing.T, maxItems int, maxBytes int64) (*MemoryStore, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(maxItems, maxBytes, zaptest.NewLogger(t))
	s.now = clock.Now
	return s, clock
}

func TestMemoryStore_GetSetDeleteExists(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMemoryStore(t, 10, 1<<20)

	_, ok, err := s.Get(ctx, "user:u1:databases")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "user:u1:databases", `{"v":1}`, time.Hour))
	v, ok, err := s.Get(ctx, "user:u1:databases")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"v":1}`, v)

	exists, err := s.Exists(ctx, "user:u1:databases")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.Delete(ctx, "user:u1:databases"))
	exists, err = s.Exists(ctx, "user:u1:databases")
	require.NoError(t, err)
	assert.False(t, exists)

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 0.5, stats.HitRate)
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestMemoryStore(t, 10, 1<<20)

	require.NoError(t, s.Set(ctx, "k", "v", 3600*time.Second))
	clock.Advance(3599 * time.Second)
	_, ok, _ := s.Get(ctx, "k")
	assert.True(t, ok)

	clock.Advance(2 * time.Second)
	_, ok, _ = s.Get(ctx, "k")
	assert.False(t, ok, "entry expires after its TTL")
	assert.Equal(t, 0, s.Stats().Items)

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	_, ok, _ = s.Get(ctx, "k")
	assert.False(t, ok, "non-positive TTL stores nothing")
}

func TestMemoryStore_LRUEviction(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMemoryStore(t, 2, 1<<20)

	require.NoError(t, s.Set(ctx, "a", "1", time.Hour))
	require.NoError(t, s.Set(ctx, "b", "2", time.Hour))
	_, _, _ = s.Get(ctx, "a")
	require.NoError(t, s.Set(ctx, "c", "3", time.Hour))

	_, ok, _ := s.Get(ctx, "b")
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok, _ = s.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, int64(1), s.Stats().Evictions)
}

func TestMemoryStore_ByteBound(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMemoryStore(t, 100, 10)

	require.NoError(t, s.Set(ctx, "big", "0123456789", time.Hour))
	_, ok, _ := s.Get(ctx, "big")
	assert.False(t, ok, "entries larger than the store are skipped")

	require.NoError(t, s.Set(ctx, "a", "12345", time.Hour))
	require.NoError(t, s.Set(ctx, "b", "12345", time.Hour))
	assert.Equal(t, 1, s.Stats().Items)
	assert.LessOrEqual(t, s.Stats().Bytes, int64(10))
}

func TestMemoryStore_RemoveExpired(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestMemoryStore(t, 10, 1<<20)
	require.NoError(t, s.Set(ctx, "short", "v", time.Second))
	require.NoError(t, s.Set(ctx, "long", "v", time.Hour))

	clock.Advance(time.Minute)
	assert.Equal(t, 1, s.removeExpired())
	assert.Equal(t, 1, s.Stats().Items)
}

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

func TestBreakerStore_PassesThrough(t *testing.T) {
	ctx := context.Background()
	next := &mockStore{}
	next.On("Get", ctx, "k").Return("v", true, nil)
	next.On("Set", ctx, "k", "v", time.Hour).Return(nil)
	next.On("Exists", ctx, "k").Return(true, nil)
	next.On("Delete", ctx, "k").Return(nil)

	b := NewBreakerStore(next, DefaultBreakerConfig(), zaptest.NewLogger(t))
	v, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	require.NoError(t, b.Set(ctx, "k", "v", time.Hour))
	exists, err := b.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, b.Delete(ctx, "k"))
	next.AssertExpectations(t)
}

func TestBreakerStore_OpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	next := &mockStore{}
	next.On("Get", ctx, "k").Return("", false, errors.New("connection refused")).Times(3)

	cfg := BreakerConfig{Name: "test", ConsecutiveFailures: 3, Timeout: time.Minute}
	b := NewBreakerStore(next, cfg, zaptest.NewLogger(t))

	for i := 0; i < 3; i++ {
		_, _, err := b.Get(ctx, "k")
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConnection))
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, _, err := b.Get(ctx, "k")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnavailable))
	next.AssertNumberOfCalls(t, "Get", 3)
}
