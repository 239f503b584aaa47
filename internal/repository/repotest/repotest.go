// Package repotest holds the behavioral contract every Repository
// implementation must satisfy.
package repotest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colinxr/notion-graph-view-sub001/internal/domain/backlink"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/page"
	apperrors "github.com/colinxr/notion-graph-view-sub001/internal/errors"
	"github.com/colinxr/notion-graph-view-sub001/internal/repository"
)

// Factory returns a fresh, empty repository for one subtest.
type Factory func(t *testing.T) repository.Repository

var created = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Link builds a backlink with its stable id.
func Link(source, target string) backlink.Backlink {
	return backlink.Backlink{
		ID:              backlink.ID(source, target),
		SourcePageID:    source,
		SourcePageTitle: "Title " + source,
		TargetPageID:    target,
		Context:         "see " + target,
		CreatedAt:       created,
	}
}

// Seed stores one database owned by owner with the given page ids.
func Seed(t *testing.T, repo repository.Repository, owner, databaseID string, pageIDs ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.SaveDatabase(ctx, page.Database{ID: databaseID, Title: "DB " + databaseID, OwnerID: owner, SyncedAt: created}))
	for _, id := range pageIDs {
		require.NoError(t, repo.SavePage(ctx, page.Page{
			ID:         id,
			Title:      "Title " + id,
			DatabaseID: databaseID,
			Content:    "content of " + id,
			Properties: []page.Property{{Name: "Status", Type: "select", Value: "Open"}},
			UpdatedAt:  created,
		}))
	}
}

// Run executes the contract against repositories built by newRepo.
func Run(t *testing.T, newRepo Factory) {
	t.Run("pages round trip sorted by id", func(t *testing.T) {
		repo := newRepo(t)
		Seed(t, repo, "u1", "db1", "p2", "p1", "p3")
		Seed(t, repo, "u1", "db2", "q1")

		pages, err := repo.FindPagesByDatabase(context.Background(), "db1")
		require.NoError(t, err)
		require.Len(t, pages, 3)
		assert.Equal(t, []string{"p1", "p2", "p3"}, []string{pages[0].ID, pages[1].ID, pages[2].ID})
		assert.Equal(t, "Title p1", pages[0].Title)
		assert.Equal(t, "content of p1", pages[0].Content)
		assert.Equal(t, []page.Property{{Name: "Status", Type: "select", Value: "Open"}}, pages[0].Properties)
		assert.True(t, created.Equal(pages[0].UpdatedAt))

		empty, err := repo.FindPagesByDatabase(context.Background(), "none")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("save page upserts", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		Seed(t, repo, "u1", "db1", "p1")

		require.NoError(t, repo.SavePage(ctx, page.Page{ID: "p1", Title: "Renamed", DatabaseID: "db1"}))
		got, err := repo.FindPage(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Title)
		assert.Empty(t, got.Properties)
	})

	t.Run("save page requires database", func(t *testing.T) {
		repo := newRepo(t)
		err := repo.SavePage(context.Background(), page.Page{ID: "p1", DatabaseID: "missing"})
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("find missing page", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.FindPage(context.Background(), "nope")
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("replace is idempotent", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		Seed(t, repo, "u1", "db1", "pa", "pb", "pc")

		links := []backlink.Backlink{Link("pa", "pc"), Link("pa", "pb")}
		require.NoError(t, repo.ReplaceBacklinksForSource(ctx, "pa", links))
		require.NoError(t, repo.ReplaceBacklinksForSource(ctx, "pa", links))

		got, err := repo.FindBacklinksBySource(ctx, "pa")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "pb", got[0].TargetPageID)
		assert.Equal(t, "pc", got[1].TargetPageID)
		assert.Equal(t, backlink.ID("pa", "pb"), got[0].ID)
		assert.Equal(t, "see pb", got[0].Context)
		assert.Equal(t, "Title pa", got[0].SourcePageTitle)
		assert.True(t, created.Equal(got[0].CreatedAt))
	})

	t.Run("replace drops edges no longer present", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		Seed(t, repo, "u1", "db1", "pa", "pb", "pc")

		require.NoError(t, repo.ReplaceBacklinksForSource(ctx, "pa", []backlink.Backlink{Link("pa", "pb"), Link("pa", "pc")}))
		require.NoError(t, repo.ReplaceBacklinksForSource(ctx, "pa", []backlink.Backlink{Link("pa", "pc")}))
		got, err := repo.FindBacklinksBySource(ctx, "pa")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "pc", got[0].TargetPageID)

		require.NoError(t, repo.ReplaceBacklinksForSource(ctx, "pa", nil))
		got, err = repo.FindBacklinksBySource(ctx, "pa")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("replace rejects foreign source", func(t *testing.T) {
		repo := newRepo(t)
		Seed(t, repo, "u1", "db1", "pa", "pb")
		err := repo.ReplaceBacklinksForSource(context.Background(), "pa", []backlink.Backlink{Link("pb", "pa")})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("incoming refs populate page", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		Seed(t, repo, "u1", "db1", "pa", "pb", "pc")
		require.NoError(t, repo.ReplaceBacklinksForSource(ctx, "pc", []backlink.Backlink{Link("pc", "pb")}))
		require.NoError(t, repo.ReplaceBacklinksForSource(ctx, "pa", []backlink.Backlink{Link("pa", "pb")}))

		in, err := repo.FindBacklinksByTarget(ctx, "pb")
		require.NoError(t, err)
		require.Len(t, in, 2)
		assert.Equal(t, "pa", in[0].SourcePageID)
		assert.Equal(t, "pc", in[1].SourcePageID)

		p, err := repo.FindPage(ctx, "pb")
		require.NoError(t, err)
		require.Len(t, p.Backlinks, 2)
		assert.Equal(t, "pa", p.Backlinks[0].SourcePageID)
		assert.Equal(t, "Title pa", p.Backlinks[0].SourcePageTitle)
	})

	t.Run("delete page cascades both directions", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		Seed(t, repo, "u1", "db1", "p", "out", "in")
		require.NoError(t, repo.ReplaceBacklinksForSource(ctx, "p", []backlink.Backlink{Link("p", "out")}))
		require.NoError(t, repo.ReplaceBacklinksForSource(ctx, "in", []backlink.Backlink{Link("in", "p"), Link("in", "out")}))

		require.NoError(t, repo.DeletePage(ctx, "p"))

		bySource, err := repo.FindBacklinksBySource(ctx, "p")
		require.NoError(t, err)
		assert.Empty(t, bySource)
		byTarget, err := repo.FindBacklinksByTarget(ctx, "p")
		require.NoError(t, err)
		assert.Empty(t, byTarget)

		remaining, err := repo.FindBacklinksBySource(ctx, "in")
		require.NoError(t, err)
		require.Len(t, remaining, 1)
		assert.Equal(t, "out", remaining[0].TargetPageID)

		err = repo.DeletePage(ctx, "p")
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("databases by owner with derived page ids", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		Seed(t, repo, "u1", "db2", "b")
		Seed(t, repo, "u1", "db1", "a2", "a1")
		Seed(t, repo, "u2", "db3")

		dbs, err := repo.FindDatabasesByOwner(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, dbs, 2)
		assert.Equal(t, "db1", dbs[0].ID)
		assert.Equal(t, []string{"a1", "a2"}, dbs[0].PageIDs)
		assert.Equal(t, "DB db1", dbs[0].Title)

		db, err := repo.FindDatabase(ctx, "db3")
		require.NoError(t, err)
		assert.Equal(t, "u2", db.OwnerID)
		assert.Empty(t, db.PageIDs)

		_, err = repo.FindDatabase(ctx, "nope")
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("delete database refuses while pages remain", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		Seed(t, repo, "u1", "db1", "p1")

		err := repo.DeleteDatabase(ctx, "db1")
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))

		require.NoError(t, repo.DeletePage(ctx, "p1"))
		require.NoError(t, repo.DeleteDatabase(ctx, "db1"))
		_, err = repo.FindDatabase(ctx, "db1")
		assert.True(t, apperrors.IsNotFound(err))

		assert.True(t, apperrors.IsNotFound(repo.DeleteDatabase(ctx, "db1")))
	})
}
