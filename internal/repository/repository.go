// Package repository defines the persistence capabilities the graph pipeline
// consumes. Implementations live in sub-packages (memory, sqlite, ddb) and
// must all satisfy the same contract, exercised by repotest.
//
// Ordering is part of the contract so that graph assembly is deterministic
// whatever the backing store:
//   - pages are returned sorted by id
//   - backlinks by source are sorted by target id
//   - backlinks by target are sorted by source id
//   - databases are sorted by id
package repository

import (
	"context"

	"github.com/colinxr/notion-graph-view-sub001/internal/domain/backlink"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/page"
)

// PageRepository persists pages.
type PageRepository interface {
	// FindPage returns the page with its incoming backlink refs populated.
	FindPage(ctx context.Context, pageID string) (*page.Page, error)
	FindPagesByDatabase(ctx context.Context, databaseID string) ([]page.Page, error)
	// SavePage inserts or replaces a page. The owning database must exist.
	SavePage(ctx context.Context, p page.Page) error
	// DeletePage removes the page and every backlink where it is the source
	// or the target.
	DeletePage(ctx context.Context, pageID string) error
}

// BacklinkRepository persists backlink edges.
type BacklinkRepository interface {
	FindBacklinksBySource(ctx context.Context, pageID string) ([]backlink.Backlink, error)
	FindBacklinksByTarget(ctx context.Context, pageID string) ([]backlink.Backlink, error)
	// ReplaceBacklinksForSource deletes every stored edge with the given
	// source and inserts links in its place. Every link must carry that
	// source id.
	ReplaceBacklinksForSource(ctx context.Context, pageID string, links []backlink.Backlink) error
}

// DatabaseRepository persists databases. Page membership is derived from
// the pages themselves, so Database.PageIDs is ignored on save and filled
// on read.
type DatabaseRepository interface {
	FindDatabase(ctx context.Context, databaseID string) (*page.Database, error)
	FindDatabasesByOwner(ctx context.Context, ownerID string) ([]page.Database, error)
	SaveDatabase(ctx context.Context, db page.Database) error
	// DeleteDatabase refuses with a conflict while the database still
	// groups pages.
	DeleteDatabase(ctx context.Context, databaseID string) error
}

// Repository is the full persistence capability.
type Repository interface {
	PageRepository
	BacklinkRepository
	DatabaseRepository
}
