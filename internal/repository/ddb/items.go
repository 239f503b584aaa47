package ddb

import (
	"fmt"
	"strings"
	"time"

	"github.com/colinxr/notion-graph-view-sub001/internal/domain/backlink"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/page"
)

// Single-table layout:
//
//	database  PK=DB#{id}      SK=META          GSI1PK=OWNER#{owner}  GSI1SK=DB#{id}
//	page      PK=PAGE#{id}    SK=META          GSI1PK=DB#{database}  GSI1SK=PAGE#{id}
//	backlink  PK=PAGE#{src}   SK=LINK#{dst}    GSI1PK=TARGET#{dst}   GSI1SK=SOURCE#{src}
const (
	skMeta       = "META"
	prefixDB     = "DB#"
	prefixPage   = "PAGE#"
	prefixLink   = "LINK#"
	prefixOwner  = "OWNER#"
	prefixTarget = "TARGET#"
	prefixSource = "SOURCE#"

	entityDatabase = "database"
	entityPage     = "page"
	entityBacklink = "backlink"
)

func databasePK(id string) string { return prefixDB + id }
func pagePK(id string) string     { return prefixPage + id }
func linkSK(target string) string { return prefixLink + target }
func ownerGSI(id string) string   { return prefixOwner + id }
func targetGSI(id string) string  { return prefixTarget + id }

type propertyItem struct {
	Name  string `dynamodbav:"name"`
	Type  string `dynamodbav:"type,omitempty"`
	Value string `dynamodbav:"value"`
}

type databaseItem struct {
	PK       string `dynamodbav:"PK"`
	SK       string `dynamodbav:"SK"`
	GSI1PK   string `dynamodbav:"GSI1PK"`
	GSI1SK   string `dynamodbav:"GSI1SK"`
	Entity   string `dynamodbav:"entity"`
	ID       string `dynamodbav:"id"`
	Title    string `dynamodbav:"title"`
	OwnerID  string `dynamodbav:"ownerId"`
	SyncedAt string `dynamodbav:"syncedAt,omitempty"`
}

type pageItem struct {
	PK         string         `dynamodbav:"PK"`
	SK         string         `dynamodbav:"SK"`
	GSI1PK     string         `dynamodbav:"GSI1PK"`
	GSI1SK     string         `dynamodbav:"GSI1SK"`
	Entity     string         `dynamodbav:"entity"`
	ID         string         `dynamodbav:"id"`
	DatabaseID string         `dynamodbav:"databaseId"`
	Title      string         `dynamodbav:"title"`
	Content    string         `dynamodbav:"content"`
	Properties []propertyItem `dynamodbav:"properties,omitempty"`
	UpdatedAt  string         `dynamodbav:"updatedAt,omitempty"`
}

type backlinkItem struct {
	PK              string `dynamodbav:"PK"`
	SK              string `dynamodbav:"SK"`
	GSI1PK          string `dynamodbav:"GSI1PK"`
	GSI1SK          string `dynamodbav:"GSI1SK"`
	Entity          string `dynamodbav:"entity"`
	ID              string `dynamodbav:"id"`
	SourcePageID    string `dynamodbav:"sourcePageId"`
	SourcePageTitle string `dynamodbav:"sourcePageTitle"`
	TargetPageID    string `dynamodbav:"targetPageId"`
	Context         string `dynamodbav:"context,omitempty"`
	CreatedAt       string `dynamodbav:"createdAt,omitempty"`
}

func newDatabaseItem(db page.Database) databaseItem {
	return databaseItem{
		PK:       databasePK(db.ID),
		SK:       skMeta,
		GSI1PK:   ownerGSI(db.OwnerID),
		GSI1SK:   databasePK(db.ID),
		Entity:   entityDatabase,
		ID:       db.ID,
		Title:    db.Title,
		OwnerID:  db.OwnerID,
		SyncedAt: formatTime(db.SyncedAt),
	}
}

func (it databaseItem) toDomain() page.Database {
	return page.Database{
		ID:       it.ID,
		Title:    it.Title,
		OwnerID:  it.OwnerID,
		SyncedAt: parseTime(it.SyncedAt),
	}
}

func newPageItem(p page.Page) pageItem {
	it := pageItem{
		PK:         pagePK(p.ID),
		SK:         skMeta,
		GSI1PK:     databasePK(p.DatabaseID),
		GSI1SK:     pagePK(p.ID),
		Entity:     entityPage,
		ID:         p.ID,
		DatabaseID: p.DatabaseID,
		Title:      p.Title,
		Content:    p.Content,
		UpdatedAt:  formatTime(p.UpdatedAt),
	}
	for _, prop := range p.Properties {
		it.Properties = append(it.Properties, propertyItem(prop))
	}
	return it
}

func (it pageItem) toDomain() page.Page {
	p := page.Page{
		ID:         it.ID,
		Title:      it.Title,
		DatabaseID: it.DatabaseID,
		Content:    it.Content,
		UpdatedAt:  parseTime(it.UpdatedAt),
	}
	for _, prop := range it.Properties {
		p.Properties = append(p.Properties, page.Property(prop))
	}
	return p
}

func newBacklinkItem(l backlink.Backlink) backlinkItem {
	return backlinkItem{
		PK:              pagePK(l.SourcePageID),
		SK:              linkSK(l.TargetPageID),
		GSI1PK:          targetGSI(l.TargetPageID),
		GSI1SK:          prefixSource + l.SourcePageID,
		Entity:          entityBacklink,
		ID:              l.ID,
		SourcePageID:    l.SourcePageID,
		SourcePageTitle: l.SourcePageTitle,
		TargetPageID:    l.TargetPageID,
		Context:         l.Context,
		CreatedAt:       formatTime(l.CreatedAt),
	}
}

func (it backlinkItem) toDomain() backlink.Backlink {
	return backlink.Backlink{
		ID:              it.ID,
		SourcePageID:    it.SourcePageID,
		SourcePageTitle: it.SourcePageTitle,
		TargetPageID:    it.TargetPageID,
		Context:         it.Context,
		CreatedAt:       parseTime(it.CreatedAt),
	}
}

// idFromKey strips a key prefix, rejecting keys of another entity.
func idFromKey(key, prefix string) (string, error) {
	if !strings.HasPrefix(key, prefix) {
		return "", fmt.Errorf("key %q does not start with %q", key, prefix)
	}
	return strings.TrimPrefix(key, prefix), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
