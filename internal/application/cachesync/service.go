// Package cachesync serves derived views from the cache and keeps them
// fresh. Reads never fail: any store or decoding problem is logged and
// reported as a miss. Writes happen off the caller's path through the
// background publisher and the cache-writer handlers.
package cachesync

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/colinxr/notion-graph-view-sub001/internal/domain/graph"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/page"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/shared"
	apperrors "github.com/colinxr/notion-graph-view-sub001/internal/errors"
	"github.com/colinxr/notion-graph-view-sub001/internal/infrastructure/cache"
)

// Scheduler accepts events for asynchronous publication.
type Scheduler interface {
	Submit(event shared.DomainEvent) bool
}

// Metrics receives cache read outcomes.
type Metrics interface {
	CacheLookup(kind string, hit bool)
	CacheDecodeFailed(kind string)
}

type nopMetrics struct{}

func (nopMetrics) CacheLookup(string, bool) {}
func (nopMetrics) CacheDecodeFailed(string) {}

// Databases is the cached summary of one user's databases.
type Databases struct {
	UserID    string          `json:"userId"`
	Databases []page.Database `json:"databases"`
	CachedAt  time.Time       `json:"cachedAt"`
}

// Service is the cache synchronization service.
type Service struct {
	store     cache.Store
	scheduler Scheduler
	ttl       time.Duration
	logger    *zap.Logger
	metrics   Metrics
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMetrics records lookups.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock overrides the clock stamped into envelopes and invalidation
// markers.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the service.
func NewService(store cache.Store, scheduler Scheduler, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:     store,
		scheduler: scheduler,
		ttl:       DefaultTTL,
		logger:    logger,
		metrics:   nopMetrics{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the lifetime given to written entries.
func (s *Service) TTL() time.Duration { return s.ttl }

// Now returns the service clock. Readers take it before reading the store
// and pass it as the asOf of the snapshot they schedule.
func (s *Service) Now() time.Time { return s.now().UTC() }

// GetCachedGraph returns the cached graph of a database, or nil.
func (s *Service) GetCachedGraph(ctx context.Context, databaseID string) *graph.Graph {
	env, ok := lookup[graph.Graph](ctx, s, KindGraph, GraphKey(databaseID))
	if !ok {
		return nil
	}
	return &env.Data
}

// GetCachedDatabases returns the cached database summary of a user, or nil.
func (s *Service) GetCachedDatabases(ctx context.Context, userID string) *Databases {
	env, ok := lookup[[]page.Database](ctx, s, KindDatabases, DatabasesKey(userID))
	if !ok {
		return nil
	}
	return &Databases{UserID: userID, Databases: env.Data, CachedAt: env.CachedAt}
}

func lookup[T any](ctx context.Context, s *Service, kind, key string) (envelope[T], bool) {
	raw, found, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache read failed, treating as miss",
			zap.String("key", key),
			zap.Error(err))
		s.metrics.CacheLookup(kind, false)
		return envelope[T]{}, false
	}
	if !found {
		s.metrics.CacheLookup(kind, false)
		return envelope[T]{}, false
	}

	env, err := decode[T](raw)
	if err != nil {
		s.logger.Warn("malformed cached value, treating as miss",
			zap.String("key", key),
			zap.Error(apperrors.Data(apperrors.CodeCacheDecode.String(), "failed to decode cached value").
				WithResource(kind).
				WithCause(err).
				Build()))
		s.metrics.CacheDecodeFailed(kind)
		s.metrics.CacheLookup(kind, false)
		return envelope[T]{}, false
	}
	s.metrics.CacheLookup(kind, true)
	return env, true
}

// ScheduleGraphRepopulate hands a graph read at asOf to the background
// publisher and returns immediately. It reports whether the event was queued.
func (s *Service) ScheduleGraphRepopulate(databaseID string, g graph.Graph, asOf time.Time) bool {
	ev := shared.NewGraphFetchedEvent(databaseID, g, GraphKey(databaseID))
	ev.AsOf = asOf
	return s.schedule(ev)
}

// ScheduleDatabasesRepopulate hands a user's databases read at asOf to the
// background publisher and returns immediately.
func (s *Service) ScheduleDatabasesRepopulate(userID string, databases []page.Database, asOf time.Time) bool {
	ev := shared.NewDatabasesFetchedEvent(userID, databases, DatabasesKey(userID))
	ev.AsOf = asOf
	return s.schedule(ev)
}

func (s *Service) schedule(ev shared.DomainEvent) bool {
	if s.scheduler == nil {
		return false
	}
	return s.scheduler.Submit(ev)
}

// WriteGraph stores a graph read at asOf under key with the configured TTL.
// A graph read before the key was last invalidated is dropped.
func (s *Service) WriteGraph(ctx context.Context, key string, g graph.Graph, asOf time.Time) error {
	return write(ctx, s, key, g, asOf)
}

// WriteDatabases stores a database summary read at asOf under key with the
// configured TTL, unless the key was invalidated since.
func (s *Service) WriteDatabases(ctx context.Context, key string, databases []page.Database, asOf time.Time) error {
	if databases == nil {
		databases = []page.Database{}
	}
	return write(ctx, s, key, databases, asOf)
}

func write[T any](ctx context.Context, s *Service, key string, data T, asOf time.Time) error {
	if s.superseded(ctx, key, asOf) {
		s.logger.Debug("stale snapshot dropped", zap.String("key", key), zap.Time("as_of", asOf))
		return nil
	}

	raw, err := encode(data, s.now())
	if err != nil {
		return apperrors.Data(apperrors.CodeCacheEncode.String(), "failed to encode cache value").
			WithResource(key).
			WithCause(err).
			Build()
	}
	if err := s.store.Set(ctx, key, raw, s.ttl); err != nil {
		return apperrors.Wrap(err, "cache.Set", "failed to write cache entry")
	}

	// An invalidation can land between the check above and the Set. It
	// writes its marker before deleting, so checking again catches it.
	if s.superseded(ctx, key, asOf) {
		s.logger.Debug("snapshot invalidated while writing", zap.String("key", key))
		return s.delete(ctx, key)
	}
	s.logger.Debug("cache entry written", zap.String("key", key), zap.Duration("ttl", s.ttl))
	return nil
}

// superseded reports whether key was invalidated at or after asOf. An
// unreadable marker counts as superseded: a miss is always safe.
func (s *Service) superseded(ctx context.Context, key string, asOf time.Time) bool {
	raw, found, err := s.store.Get(ctx, invalidatedKey(key))
	if err != nil {
		s.logger.Warn("invalidation marker unreadable", zap.String("key", key), zap.Error(err))
		return true
	}
	if !found {
		return false
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		s.logger.Warn("malformed invalidation marker", zap.String("key", key), zap.Error(err))
		return true
	}
	return !asOf.After(at)
}

// InvalidateGraph drops the cached graph of a database.
func (s *Service) InvalidateGraph(ctx context.Context, databaseID string) error {
	return s.Invalidate(ctx, GraphKey(databaseID))
}

// InvalidateDatabases drops the cached database summary of a user.
func (s *Service) InvalidateDatabases(ctx context.Context, userID string) error {
	return s.Invalidate(ctx, DatabasesKey(userID))
}

// Invalidate deletes a cache key and records when, so that snapshots read
// before now are not written back by a queued repopulation.
func (s *Service) Invalidate(ctx context.Context, key string) error {
	var markErr error
	marker := s.now().UTC().Format(time.RFC3339Nano)
	if err := s.store.Set(ctx, invalidatedKey(key), marker, s.ttl); err != nil {
		markErr = apperrors.Wrap(err, "cache.Set", "failed to record invalidation")
	}
	return errors.Join(markErr, s.delete(ctx, key))
}

func (s *Service) delete(ctx context.Context, key string) error {
	if err := s.store.Delete(ctx, key); err != nil {
		return apperrors.Wrap(err, "cache.Delete", "failed to invalidate cache entry")
	}
	return nil
}

// IsCached reports whether key currently holds a value. Store errors read
// as not cached.
func (s *Service) IsCached(ctx context.Context, key string) bool {
	ok, err := s.store.Exists(ctx, key)
	if err != nil {
		s.logger.Warn("cache exists check failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return ok
}
