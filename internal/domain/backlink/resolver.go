package backlink

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/colinxr/notion-graph-view-sub001/internal/domain/page"
)

// Lookup resolves a marker target to a page.
type Lookup interface {
	Resolve(ref string) (page.Page, bool)
}

// Resolver resolves references against a fixed set of pages.
//
// Resolution rule: an exact page id match wins; otherwise the reference is
// compared to page titles after trimming, collapsing inner whitespace and
// Unicode case folding. When several pages share a folded title the one with
// the lexicographically smallest id wins, independent of input order.
//
// A Resolver is not safe for concurrent use.
type Resolver struct {
	byID    map[string]page.Page
	byTitle map[string]page.Page
	folder  cases.Caser
}

// NewResolver indexes pages for resolution.
func NewResolver(pages []page.Page) *Resolver {
	r := &Resolver{
		byID:    make(map[string]page.Page, len(pages)),
		byTitle: make(map[string]page.Page, len(pages)),
		folder:  cases.Fold(),
	}
	for _, p := range pages {
		r.byID[p.ID] = p

		key := r.normalize(p.Title)
		if key == "" {
			continue
		}
		if existing, ok := r.byTitle[key]; ok && existing.ID < p.ID {
			continue
		}
		r.byTitle[key] = p
	}
	return r
}

// Resolve implements Lookup.
func (r *Resolver) Resolve(ref string) (page.Page, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return page.Page{}, false
	}
	if p, ok := r.byID[ref]; ok {
		return p, true
	}
	p, ok := r.byTitle[r.normalize(ref)]
	return p, ok
}

// Len returns the number of indexed pages.
func (r *Resolver) Len() int {
	return len(r.byID)
}

func (r *Resolver) normalize(title string) string {
	collapsed := strings.Join(strings.Fields(title), " ")
	if collapsed == "" {
		return ""
	}
	return r.folder.String(collapsed)
}
