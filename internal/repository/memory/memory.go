// Package memory provides an in-process Repository. It backs local
// development and unit tests; failures can be injected per method.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/colinxr/notion-graph-view-sub001/internal/domain/backlink"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/page"
	"github.com/colinxr/notion-graph-view-sub001/internal/repository"
)

// Repository keeps pages, databases and backlinks in maps guarded by one lock.
type Repository struct {
	mu sync.RWMutex

	databases map[string]page.Database
	pages     map[string]page.Page
	// sourcePageID -> targetPageID -> Backlink
	links map[string]map[string]backlink.Backlink

	shouldFailOn map[string]error
}

var _ repository.Repository = (*Repository)(nil)

// New creates an empty repository.
func New() *Repository {
	return &Repository{
		databases:    make(map[string]page.Database),
		pages:        make(map[string]page.Page),
		links:        make(map[string]map[string]backlink.Backlink),
		shouldFailOn: make(map[string]error),
	}
}

// SetError makes the named method return err until ClearErrors is called.
func (r *Repository) SetError(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shouldFailOn[method] = err
}

// ClearErrors removes all injected failures.
func (r *Repository) ClearErrors() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shouldFailOn = make(map[string]error)
}

func (r *Repository) fail(method string) error {
	return r.shouldFailOn[method]
}

func (r *Repository) FindPage(_ context.Context, pageID string) (*page.Page, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.fail("FindPage"); err != nil {
		return nil, err
	}

	p, ok := r.pages[pageID]
	if !ok {
		return nil, repository.NewPageNotFound(pageID)
	}
	p = clonePage(p)
	for _, l := range r.incoming(pageID) {
		p.Backlinks = append(p.Backlinks, page.BacklinkRef{
			SourcePageID:    l.SourcePageID,
			SourcePageTitle: l.SourcePageTitle,
			Context:         l.Context,
			CreatedAt:       l.CreatedAt,
		})
	}
	return &p, nil
}

func (r *Repository) FindPagesByDatabase(_ context.Context, databaseID string) ([]page.Page, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.fail("FindPagesByDatabase"); err != nil {
		return nil, err
	}

	out := make([]page.Page, 0)
	for _, p := range r.pages {
		if p.DatabaseID == databaseID {
			out = append(out, clonePage(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repository) SavePage(_ context.Context, p page.Page) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("SavePage"); err != nil {
		return err
	}

	if _, ok := r.databases[p.DatabaseID]; !ok {
		return repository.NewDatabaseNotFound(p.DatabaseID)
	}
	p = clonePage(p)
	// Incoming refs are derived from backlink records, never stored.
	p.Backlinks = nil
	r.pages[p.ID] = p
	return nil
}

func (r *Repository) DeletePage(_ context.Context, pageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("DeletePage"); err != nil {
		return err
	}

	if _, ok := r.pages[pageID]; !ok {
		return repository.NewPageNotFound(pageID)
	}
	delete(r.pages, pageID)
	delete(r.links, pageID)
	for source, targets := range r.links {
		delete(targets, pageID)
		if len(targets) == 0 {
			delete(r.links, source)
		}
	}
	return nil
}

func (r *Repository) FindBacklinksBySource(_ context.Context, pageID string) ([]backlink.Backlink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.fail("FindBacklinksBySource"); err != nil {
		return nil, err
	}

	out := make([]backlink.Backlink, 0, len(r.links[pageID]))
	for _, l := range r.links[pageID] {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetPageID < out[j].TargetPageID })
	return out, nil
}

func (r *Repository) FindBacklinksByTarget(_ context.Context, pageID string) ([]backlink.Backlink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.fail("FindBacklinksByTarget"); err != nil {
		return nil, err
	}
	return r.incoming(pageID), nil
}

// incoming must be called with the lock held.
func (r *Repository) incoming(pageID string) []backlink.Backlink {
	out := make([]backlink.Backlink, 0)
	for _, targets := range r.links {
		if l, ok := targets[pageID]; ok {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourcePageID < out[j].SourcePageID })
	return out
}

func (r *Repository) ReplaceBacklinksForSource(_ context.Context, pageID string, links []backlink.Backlink) error {
	if err := repository.CheckSource(pageID, links); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("ReplaceBacklinksForSource"); err != nil {
		return err
	}

	links = backlink.Dedupe(links)
	if len(links) == 0 {
		delete(r.links, pageID)
		return nil
	}
	targets := make(map[string]backlink.Backlink, len(links))
	for _, l := range links {
		targets[l.TargetPageID] = l
	}
	r.links[pageID] = targets
	return nil
}

func (r *Repository) FindDatabase(_ context.Context, databaseID string) (*page.Database, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.fail("FindDatabase"); err != nil {
		return nil, err
	}

	db, ok := r.databases[databaseID]
	if !ok {
		return nil, repository.NewDatabaseNotFound(databaseID)
	}
	db.PageIDs = r.pageIDs(databaseID)
	return &db, nil
}

func (r *Repository) FindDatabasesByOwner(_ context.Context, ownerID string) ([]page.Database, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.fail("FindDatabasesByOwner"); err != nil {
		return nil, err
	}

	out := make([]page.Database, 0)
	for _, db := range r.databases {
		if db.OwnerID != ownerID {
			continue
		}
		db.PageIDs = r.pageIDs(db.ID)
		out = append(out, db)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repository) SaveDatabase(_ context.Context, db page.Database) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("SaveDatabase"); err != nil {
		return err
	}

	db.PageIDs = nil
	r.databases[db.ID] = db
	return nil
}

func (r *Repository) DeleteDatabase(_ context.Context, databaseID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("DeleteDatabase"); err != nil {
		return err
	}

	if _, ok := r.databases[databaseID]; !ok {
		return repository.NewDatabaseNotFound(databaseID)
	}
	if n := len(r.pageIDs(databaseID)); n > 0 {
		return repository.NewDatabaseNotEmpty(databaseID, n)
	}
	delete(r.databases, databaseID)
	return nil
}

func (r *Repository) pageIDs(databaseID string) []string {
	var ids []string
	for id, p := range r.pages {
		if p.DatabaseID == databaseID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func clonePage(p page.Page) page.Page {
	if p.Properties != nil {
		p.Properties = append([]page.Property(nil), p.Properties...)
	}
	if p.Backlinks != nil {
		p.Backlinks = append([]page.BacklinkRef(nil), p.Backlinks...)
	}
	return p
}
