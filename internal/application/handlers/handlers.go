// Package handlers holds the bus subscribers of the pipeline. Each handler
// owns one side effect, declares the events it reacts to, and never
// publishes the event it handles.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/colinxr/notion-graph-view-sub001/internal/application/extraction"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/backlink"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/graph"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/page"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/shared"
	apperrors "github.com/colinxr/notion-graph-view-sub001/internal/errors"
	"github.com/colinxr/notion-graph-view-sub001/internal/infrastructure/events"
	"github.com/colinxr/notion-graph-view-sub001/internal/repository"
)

// GraphCache is the graph side of the cache service.
type GraphCache interface {
	WriteGraph(ctx context.Context, key string, g graph.Graph, asOf time.Time) error
	InvalidateGraph(ctx context.Context, databaseID string) error
}

// DatabasesCache is the database summary side of the cache service.
type DatabasesCache interface {
	WriteDatabases(ctx context.Context, key string, databases []page.Database, asOf time.Time) error
	InvalidateDatabases(ctx context.Context, userID string) error
}

// Extractor runs backlink extraction.
type Extractor interface {
	ExtractPage(ctx context.Context, pageID string) (backlink.Result, error)
	ExtractDatabase(ctx context.Context, databaseID string) (extraction.Summary, error)
}

func unsupported(handler string, event shared.DomainEvent) error {
	return apperrors.Handler(apperrors.CodeHandlerFailed.String(), fmt.Sprintf("unsupported event type: %T", event)).
		WithResource(handler).
		WithOperation(event.EventName()).
		Build()
}

// DatabasesCacheWriter stores fetched database summaries under the key the
// event carries, unless the key was invalidated after the snapshot was read.
type DatabasesCacheWriter struct {
	cache DatabasesCache
}

func NewDatabasesCacheWriter(cache DatabasesCache) *DatabasesCacheWriter {
	return &DatabasesCacheWriter{cache: cache}
}

func (h *DatabasesCacheWriter) Name() string     { return "DatabasesCacheWriter" }
func (h *DatabasesCacheWriter) Events() []string { return []string{shared.EventDatabasesFetched} }

func (h *DatabasesCacheWriter) Handle(ctx context.Context, event shared.DomainEvent) error {
	e, ok := event.(*shared.DatabasesFetchedEvent)
	if !ok {
		return unsupported(h.Name(), event)
	}
	return h.cache.WriteDatabases(ctx, e.CacheKey, e.Databases, e.AsOf)
}

// GraphCacheWriter stores assembled graphs under the key the event carries.
type GraphCacheWriter struct {
	cache GraphCache
}

func NewGraphCacheWriter(cache GraphCache) *GraphCacheWriter {
	return &GraphCacheWriter{cache: cache}
}

func (h *GraphCacheWriter) Name() string     { return "GraphCacheWriter" }
func (h *GraphCacheWriter) Events() []string { return []string{shared.EventGraphFetched} }

func (h *GraphCacheWriter) Handle(ctx context.Context, event shared.DomainEvent) error {
	e, ok := event.(*shared.GraphFetchedEvent)
	if !ok {
		return unsupported(h.Name(), event)
	}
	return h.cache.WriteGraph(ctx, e.CacheKey, e.Graph, e.AsOf)
}

// DatabaseExtractor re-extracts every page of a database after a batch of its
// pages was stored.
type DatabaseExtractor struct {
	extractor Extractor
}

func NewDatabaseExtractor(extractor Extractor) *DatabaseExtractor {
	return &DatabaseExtractor{extractor: extractor}
}

func (h *DatabaseExtractor) Name() string     { return "DatabaseExtractor" }
func (h *DatabaseExtractor) Events() []string { return []string{shared.EventPagesFetched} }

func (h *DatabaseExtractor) Handle(ctx context.Context, event shared.DomainEvent) error {
	e, ok := event.(*shared.PagesFetchedEvent)
	if !ok {
		return unsupported(h.Name(), event)
	}
	_, err := h.extractor.ExtractDatabase(ctx, e.DatabaseID)
	return err
}

// PageExtractor re-extracts a changed page. New pages, renames and moves
// can change how other pages' references resolve, so those re-extract the
// affected databases instead.
type PageExtractor struct {
	extractor Extractor
}

func NewPageExtractor(extractor Extractor) *PageExtractor {
	return &PageExtractor{extractor: extractor}
}

func (h *PageExtractor) Name() string     { return "PageExtractor" }
func (h *PageExtractor) Events() []string { return []string{shared.EventPageUpdated} }

func (h *PageExtractor) Handle(ctx context.Context, event shared.DomainEvent) error {
	e, ok := event.(*shared.PageUpdatedEvent)
	if !ok {
		return unsupported(h.Name(), event)
	}
	if !e.TitleChanged && e.PreviousDatabaseID == "" {
		_, err := h.extractor.ExtractPage(ctx, e.PageID)
		return err
	}

	_, err := h.extractor.ExtractDatabase(ctx, e.DatabaseID)
	if e.PreviousDatabaseID != "" {
		_, prevErr := h.extractor.ExtractDatabase(ctx, e.PreviousDatabaseID)
		err = errors.Join(err, prevErr)
	}
	return err
}

// GraphInvalidator drops cached graphs of databases whose pages or edges
// changed.
type GraphInvalidator struct {
	cache GraphCache
}

func NewGraphInvalidator(cache GraphCache) *GraphInvalidator {
	return &GraphInvalidator{cache: cache}
}

func (h *GraphInvalidator) Name() string { return "GraphInvalidator" }

func (h *GraphInvalidator) Events() []string {
	return []string{
		shared.EventPagesFetched,
		shared.EventPageUpdated,
		shared.EventPageDeleted,
		shared.EventDatabaseDeleted,
		shared.EventBacklinkExtracted,
	}
}

func (h *GraphInvalidator) Handle(ctx context.Context, event shared.DomainEvent) error {
	var ids []string
	switch e := event.(type) {
	case *shared.PagesFetchedEvent:
		ids = append(ids, e.DatabaseID)
	case *shared.PageUpdatedEvent:
		ids = append(ids, e.DatabaseID)
		if e.PreviousDatabaseID != "" {
			ids = append(ids, e.PreviousDatabaseID)
		}
	case *shared.PageDeletedEvent:
		ids = append(ids, e.DatabaseID)
	case *shared.DatabaseDeletedEvent:
		ids = append(ids, e.DatabaseID)
	case *shared.BacklinkExtractedEvent:
		ids = append(ids, e.DatabaseID)
	default:
		return unsupported(h.Name(), event)
	}

	var errs []error
	for _, id := range ids {
		if err := h.cache.InvalidateGraph(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DatabasesInvalidator drops the cached database summary of the owner when
// the page membership of one of their databases changed.
type DatabasesInvalidator struct {
	databases repository.DatabaseRepository
	cache     DatabasesCache
	logger    *zap.Logger
}

func NewDatabasesInvalidator(databases repository.DatabaseRepository, cache DatabasesCache, logger *zap.Logger) *DatabasesInvalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DatabasesInvalidator{databases: databases, cache: cache, logger: logger}
}

func (h *DatabasesInvalidator) Name() string { return "DatabasesInvalidator" }

func (h *DatabasesInvalidator) Events() []string {
	return []string{
		shared.EventPagesFetched,
		shared.EventPageUpdated,
		shared.EventPageDeleted,
		shared.EventDatabaseDeleted,
	}
}

func (h *DatabasesInvalidator) Handle(ctx context.Context, event shared.DomainEvent) error {
	var databaseIDs []string
	switch e := event.(type) {
	case *shared.DatabaseDeletedEvent:
		return h.cache.InvalidateDatabases(ctx, e.OwnerID)
	case *shared.PagesFetchedEvent:
		databaseIDs = append(databaseIDs, e.DatabaseID)
	case *shared.PageUpdatedEvent:
		databaseIDs = append(databaseIDs, e.DatabaseID)
		if e.PreviousDatabaseID != "" {
			databaseIDs = append(databaseIDs, e.PreviousDatabaseID)
		}
	case *shared.PageDeletedEvent:
		databaseIDs = append(databaseIDs, e.DatabaseID)
	default:
		return unsupported(h.Name(), event)
	}

	owners := make(map[string]struct{})
	var errs []error
	for _, id := range databaseIDs {
		db, err := h.databases.FindDatabase(ctx, id)
		if apperrors.IsNotFound(err) {
			h.logger.Debug("database gone, nothing to invalidate", zap.String("database_id", id))
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, seen := owners[db.OwnerID]; seen {
			continue
		}
		owners[db.OwnerID] = struct{}{}
		if err := h.cache.InvalidateDatabases(ctx, db.OwnerID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Deps are the collaborators of the standard handler set.
type Deps struct {
	Graphs     GraphCache
	Databases  DatabasesCache
	Extractor  Extractor
	Repository repository.DatabaseRepository
	// Mirror is registered last when set.
	Mirror events.Subscriber
	Logger *zap.Logger
}

// Registrations returns the registration table. Order matters: extraction
// runs before the invalidators so a graph rebuilt after the publish sees
// fresh edges, and the mirror forwards only after local handling.
func Registrations(d Deps) []events.Registration {
	subs := []events.Subscriber{
		NewDatabasesCacheWriter(d.Databases),
		NewGraphCacheWriter(d.Graphs),
		NewDatabaseExtractor(d.Extractor),
		NewPageExtractor(d.Extractor),
		NewGraphInvalidator(d.Graphs),
		NewDatabasesInvalidator(d.Repository, d.Databases, d.Logger),
	}
	if d.Mirror != nil {
		subs = append(subs, d.Mirror)
	}

	table := make([]events.Registration, 0, len(subs))
	for _, s := range subs {
		table = append(table, events.Registration{Name: s.Name(), Events: s.Events(), Handler: s})
	}
	return table
}
