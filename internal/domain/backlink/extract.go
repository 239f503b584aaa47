package backlink

import (
	"time"

	"github.com/colinxr/notion-graph-view-sub001/internal/domain/page"
)

// Options configures extraction.
type Options struct {
	Syntax        Syntax
	ContextRadius int
	Now           func() time.Time
}

// DefaultOptions returns double-bracket markers with a 60 rune context radius.
func DefaultOptions() Options {
	return Options{Syntax: DefaultSyntax, ContextRadius: 60, Now: time.Now}
}

// Result is the outcome of extracting one source page.
type Result struct {
	// Backlinks is the complete outgoing edge set for the source page.
	Backlinks []Backlink
	// Unresolved lists marker targets that matched no page, in order, without duplicates.
	Unresolved []string
}

// Extract computes the outgoing backlinks of source. Unresolvable markers and
// references to the source itself are skipped; repeated references to one
// target keep the first occurrence's context.
func Extract(source page.Page, lookup Lookup, opts Options) Result {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	now := opts.Now().UTC()

	var res Result
	seenTarget := make(map[string]struct{})
	seenMissing := make(map[string]struct{})

	for _, m := range opts.Syntax.Scan(source.Content) {
		target, ok := lookup.Resolve(m.Target)
		if !ok {
			if _, dup := seenMissing[m.Target]; !dup {
				seenMissing[m.Target] = struct{}{}
				res.Unresolved = append(res.Unresolved, m.Target)
			}
			continue
		}
		if target.ID == source.ID {
			continue
		}
		if _, dup := seenTarget[target.ID]; dup {
			continue
		}
		seenTarget[target.ID] = struct{}{}

		res.Backlinks = append(res.Backlinks, Backlink{
			ID:              ID(source.ID, target.ID),
			SourcePageID:    source.ID,
			SourcePageTitle: source.DisplayTitle(),
			TargetPageID:    target.ID,
			Context:         Excerpt(source.Content, m, opts.ContextRadius),
			CreatedAt:       now,
		})
	}
	return res
}
