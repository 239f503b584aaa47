// Package shared defines the domain events exchanged over the in-process bus.
package shared

import (
	"time"

	"github.com/google/uuid"

	"github.com/colinxr/notion-graph-view-sub001/internal/domain/graph"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/page"
)

// Event names. These are stable identifiers: handlers are registered
// against them and the mirror forwards them as detail types.
const (
	EventDatabasesFetched  = "databases.fetched"
	EventPagesFetched      = "pages.fetched"
	EventPageUpdated       = "page.updated"
	EventPageDeleted       = "page.deleted"
	EventDatabaseDeleted   = "database.deleted"
	EventBacklinkExtracted = "backlink.extracted"
	EventGraphFetched      = "graph.fetched"
)

// EventNames lists every event the pipeline publishes.
var EventNames = []string{
	EventDatabasesFetched,
	EventPagesFetched,
	EventPageUpdated,
	EventPageDeleted,
	EventDatabaseDeleted,
	EventBacklinkExtracted,
	EventGraphFetched,
}

// DomainEvent is an immutable record of one logical state change.
type DomainEvent interface {
	// EventID returns a unique identifier for this event instance
	EventID() string

	// EventName returns the name handlers are registered against
	EventName() string

	// AggregateID returns the id of the entity the event is about
	AggregateID() string

	// OccurredOn returns when the event was created
	OccurredOn() time.Time

	// Payload returns the event-specific data
	Payload() any
}

// BaseEvent provides the common fields of every domain event.
type BaseEvent struct {
	eventID     string
	eventName   string
	aggregateID string
	occurredOn  time.Time
}

// NewBaseEvent creates a base event stamped with a fresh id and the current time.
func NewBaseEvent(eventName, aggregateID string) BaseEvent {
	return BaseEvent{
		eventID:     uuid.NewString(),
		eventName:   eventName,
		aggregateID: aggregateID,
		occurredOn:  time.Now().UTC(),
	}
}

// EventID returns the unique event identifier
func (e BaseEvent) EventID() string { return e.eventID }

// EventName returns the event name
func (e BaseEvent) EventName() string { return e.eventName }

// AggregateID returns the aggregate identifier
func (e BaseEvent) AggregateID() string { return e.aggregateID }

// OccurredOn returns the event timestamp
func (e BaseEvent) OccurredOn() time.Time { return e.occurredOn }

// DatabasesFetchedEvent carries a user's freshly fetched databases and the
// cache key the summary should be stored under.
type DatabasesFetchedEvent struct {
	BaseEvent
	UserID    string          `json:"userId"`
	Databases []page.Database `json:"databases"`
	CacheKey  string          `json:"cacheKey"`
	// AsOf is when the snapshot was read. A cache invalidated after AsOf
	// must not receive it.
	AsOf time.Time `json:"asOf"`
}

// NewDatabasesFetchedEvent creates a DatabasesFetchedEvent.
func NewDatabasesFetchedEvent(userID string, databases []page.Database, cacheKey string) *DatabasesFetchedEvent {
	base := NewBaseEvent(EventDatabasesFetched, userID)
	return &DatabasesFetchedEvent{
		BaseEvent: base,
		UserID:    userID,
		Databases: append([]page.Database(nil), databases...),
		CacheKey:  cacheKey,
		AsOf:      base.OccurredOn(),
	}
}

// Payload returns the event-specific data
func (e *DatabasesFetchedEvent) Payload() any {
	return map[string]any{
		"userId":    e.UserID,
		"databases": e.Databases,
		"cacheKey":  e.CacheKey,
		"asOf":      e.AsOf,
	}
}

// PagesFetchedEvent is published after a batch of pages of one database was stored.
type PagesFetchedEvent struct {
	BaseEvent
	DatabaseID string   `json:"databaseId"`
	PageIDs    []string `json:"pageIds"`
}

// NewPagesFetchedEvent creates a PagesFetchedEvent.
func NewPagesFetchedEvent(databaseID string, pageIDs []string) *PagesFetchedEvent {
	return &PagesFetchedEvent{
		BaseEvent:  NewBaseEvent(EventPagesFetched, databaseID),
		DatabaseID: databaseID,
		PageIDs:    append([]string(nil), pageIDs...),
	}
}

// Payload returns the event-specific data
func (e *PagesFetchedEvent) Payload() any {
	return map[string]any{
		"databaseId": e.DatabaseID,
		"pageIds":    e.PageIDs,
	}
}

// PageUpdatedEvent is published when a single page was created or changed.
type PageUpdatedEvent struct {
	BaseEvent
	PageID     string `json:"pageId"`
	DatabaseID string `json:"databaseId"`
	// PreviousDatabaseID is set when the page moved between databases.
	PreviousDatabaseID string `json:"previousDatabaseId,omitempty"`
	// TitleChanged is set for new pages and renames: references to the page
	// from other pages may now resolve differently.
	TitleChanged bool `json:"titleChanged,omitempty"`
}

// NewPageUpdatedEvent creates a PageUpdatedEvent.
func NewPageUpdatedEvent(pageID, databaseID string) *PageUpdatedEvent {
	return &PageUpdatedEvent{
		BaseEvent:  NewBaseEvent(EventPageUpdated, pageID),
		PageID:     pageID,
		DatabaseID: databaseID,
	}
}

// Payload returns the event-specific data
func (e *PageUpdatedEvent) Payload() any {
	return map[string]any{
		"pageId":             e.PageID,
		"databaseId":         e.DatabaseID,
		"previousDatabaseId": e.PreviousDatabaseID,
		"titleChanged":       e.TitleChanged,
	}
}

// PageDeletedEvent is published after a page and its backlinks were removed.
type PageDeletedEvent struct {
	BaseEvent
	PageID     string `json:"pageId"`
	DatabaseID string `json:"databaseId"`
}

// NewPageDeletedEvent creates a PageDeletedEvent.
func NewPageDeletedEvent(pageID, databaseID string) *PageDeletedEvent {
	return &PageDeletedEvent{
		BaseEvent:  NewBaseEvent(EventPageDeleted, pageID),
		PageID:     pageID,
		DatabaseID: databaseID,
	}
}

// Payload returns the event-specific data
func (e *PageDeletedEvent) Payload() any {
	return map[string]any{
		"pageId":     e.PageID,
		"databaseId": e.DatabaseID,
	}
}

// DatabaseDeletedEvent is published after an empty database was removed.
type DatabaseDeletedEvent struct {
	BaseEvent
	DatabaseID string `json:"databaseId"`
	OwnerID    string `json:"ownerId"`
}

// NewDatabaseDeletedEvent creates a DatabaseDeletedEvent.
func NewDatabaseDeletedEvent(databaseID, ownerID string) *DatabaseDeletedEvent {
	return &DatabaseDeletedEvent{
		BaseEvent:  NewBaseEvent(EventDatabaseDeleted, databaseID),
		DatabaseID: databaseID,
		OwnerID:    ownerID,
	}
}

// Payload returns the event-specific data
func (e *DatabaseDeletedEvent) Payload() any {
	return map[string]any{
		"databaseId": e.DatabaseID,
		"ownerId":    e.OwnerID,
	}
}

// BacklinkExtractedEvent is published after the stored backlinks of a source
// page were replaced.
type BacklinkExtractedEvent struct {
	BaseEvent
	SourcePageID string   `json:"sourcePageId"`
	DatabaseID   string   `json:"databaseId"`
	EdgeCount    int      `json:"edgeCount"`
	Unresolved   []string `json:"unresolved,omitempty"`
}

// NewBacklinkExtractedEvent creates a BacklinkExtractedEvent.
func NewBacklinkExtractedEvent(sourcePageID, databaseID string, edgeCount int, unresolved []string) *BacklinkExtractedEvent {
	return &BacklinkExtractedEvent{
		BaseEvent:    NewBaseEvent(EventBacklinkExtracted, sourcePageID),
		SourcePageID: sourcePageID,
		DatabaseID:   databaseID,
		EdgeCount:    edgeCount,
		Unresolved:   append([]string(nil), unresolved...),
	}
}

// Payload returns the event-specific data
func (e *BacklinkExtractedEvent) Payload() any {
	return map[string]any{
		"sourcePageId": e.SourcePageID,
		"databaseId":   e.DatabaseID,
		"edgeCount":    e.EdgeCount,
		"unresolved":   e.Unresolved,
	}
}

// GraphFetchedEvent carries a freshly assembled graph view for caching.
type GraphFetchedEvent struct {
	BaseEvent
	DatabaseID string      `json:"databaseId"`
	Graph      graph.Graph `json:"graph"`
	CacheKey   string      `json:"cacheKey"`
	// AsOf is when the graph was read from the store.
	AsOf time.Time `json:"asOf"`
}

// NewGraphFetchedEvent creates a GraphFetchedEvent. AsOf defaults to the
// event time; callers that read earlier overwrite it.
func NewGraphFetchedEvent(databaseID string, g graph.Graph, cacheKey string) *GraphFetchedEvent {
	base := NewBaseEvent(EventGraphFetched, databaseID)
	return &GraphFetchedEvent{
		BaseEvent:  base,
		DatabaseID: databaseID,
		Graph:      g,
		CacheKey:   cacheKey,
		AsOf:       base.OccurredOn(),
	}
}

// Payload returns the event-specific data
func (e *GraphFetchedEvent) Payload() any {
	return map[string]any{
		"databaseId": e.DatabaseID,
		"graph":      e.Graph,
		"cacheKey":   e.CacheKey,
		"asOf":       e.AsOf,
	}
}
