// Package graph assembles the read-optimized node/edge view of a database.
// The view is derived: it can always be rebuilt from pages and backlinks.
package graph

import (
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/backlink"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/page"
)

const (
	NodeTypePage     = "page"
	EdgeTypeBacklink = "backlink"
	EdgeLabel        = "links to"
)

// Position is an optional layout hint for a node.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one page in the graph. Its id is the page id.
type Node struct {
	ID         string            `json:"id"`
	Label      string            `json:"label"`
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties,omitempty"`
	Position   *Position         `json:"position,omitempty"`
}

// Edge is one backlink in the graph. Its id is the backlink id.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
	Type   string `json:"type"`
}

// Graph is the node/edge view served to readers.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Assemble joins pages and backlinks: every page becomes exactly one node,
// isolated pages included, and every backlink whose endpoints are both
// present becomes exactly one edge. Backlinks pointing outside the page set
// are returned as dangling instead of being rendered.
func Assemble(pages []page.Page, links []backlink.Backlink) (Graph, []backlink.Backlink) {
	g := Graph{
		Nodes: make([]Node, 0, len(pages)),
		Edges: make([]Edge, 0, len(links)),
	}

	present := make(map[string]struct{}, len(pages))
	for _, p := range pages {
		if _, dup := present[p.ID]; dup {
			continue
		}
		present[p.ID] = struct{}{}
		g.Nodes = append(g.Nodes, Node{
			ID:         p.ID,
			Label:      p.DisplayTitle(),
			Type:       NodeTypePage,
			Properties: p.PropertyMap(),
		})
	}

	var dangling []backlink.Backlink
	for _, l := range backlink.Dedupe(links) {
		_, srcOK := present[l.SourcePageID]
		_, dstOK := present[l.TargetPageID]
		if !srcOK || !dstOK {
			dangling = append(dangling, l)
			continue
		}
		g.Edges = append(g.Edges, Edge{
			ID:     l.ID,
			Source: l.SourcePageID,
			Target: l.TargetPageID,
			Label:  EdgeLabel,
			Type:   EdgeTypeBacklink,
		})
	}
	return g, dangling
}
