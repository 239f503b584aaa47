// Package page holds the externally sourced documents the graph is built from.
package page

import (
	"strings"
	"time"
)

// Property is one structured field of a page as delivered by the source
// (status, tags, dates). Values are kept as display text.
type Property struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// BacklinkRef is an incoming reference to a page, denormalized for display.
type BacklinkRef struct {
	SourcePageID    string    `json:"sourcePageId"`
	SourcePageTitle string    `json:"sourcePageTitle"`
	Context         string    `json:"context,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Page is a single document identified by its source-system id.
type Page struct {
	ID         string        `json:"id" validate:"required"`
	Title      string        `json:"title"`
	DatabaseID string        `json:"databaseId" validate:"required"`
	Content    string        `json:"content"`
	Properties []Property    `json:"properties,omitempty"`
	Backlinks  []BacklinkRef `json:"backlinks,omitempty"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// DisplayTitle returns the title, or the id for untitled pages.
func (p Page) DisplayTitle() string {
	if t := strings.TrimSpace(p.Title); t != "" {
		return t
	}
	return p.ID
}

// PropertyMap flattens the property list for graph node properties.
// Later duplicates win.
func (p Page) PropertyMap() map[string]string {
	if len(p.Properties) == 0 {
		return nil
	}
	m := make(map[string]string, len(p.Properties))
	for _, prop := range p.Properties {
		m[prop.Name] = prop.Value
	}
	return m
}

// Database groups pages and belongs to one user.
type Database struct {
	ID      string   `json:"id" validate:"required"`
	Title   string   `json:"title"`
	OwnerID string   `json:"ownerId" validate:"required"`
	PageIDs []string `json:"pageIds,omitempty"`
	// SyncedAt records the last successful sync from the source.
	SyncedAt time.Time `json:"syncedAt"`
}
