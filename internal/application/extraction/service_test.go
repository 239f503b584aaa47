package extraction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/colinxr/notion-graph-view-sub001/internal/domain/backlink"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/page"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/shared"
	apperrors "github.com/colinxr/notion-graph-view-sub001/internal/errors"
	"github.com/colinxr/notion-graph-view-sub001/internal/infrastructure/events"
	"github.com/colinxr/notion-graph-view-sub001/internal/repository/memory"
)

type fixture struct {
	repo      *memory.Repository
	svc       *Service
	extracted []*shared.BacklinkExtractedEvent
	clock     time.Time
	edges     int
}

func (f *fixture) ExtractionCompleted(edges, _ int) { f.edges += edges }

func newFixture(t *testing.T, pages ...page.Page) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{repo: memory.New(), clock: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}

	bus := events.NewBus(zaptest.NewLogger(t), nil)
	require.NoError(t, bus.Register(events.Registration{
		Name:   "capture",
		Events: []string{shared.EventBacklinkExtracted},
		Handler: events.HandlerFunc(func(_ context.Context, ev shared.DomainEvent) error {
			f.extracted = append(f.extracted, ev.(*shared.BacklinkExtractedEvent))
			return nil
		}),
	}))

	opts := backlink.DefaultOptions()
	opts.Now = func() time.Time { return f.clock }
	f.svc = NewService(f.repo, bus, opts, zaptest.NewLogger(t), f)

	require.NoError(t, f.repo.SaveDatabase(ctx, page.Database{ID: "db1", OwnerID: "u1"}))
	for _, p := range pages {
		p.DatabaseID = "db1"
		require.NoError(t, f.repo.SavePage(ctx, p))
	}
	return f
}

func TestExtractPage_SingleReference(t *testing.T) {
	f := newFixture(t,
		page.Page{ID: "pa1", Title: "Page A", Content: "See [[Page B]] for details"},
		page.Page{ID: "pb1", Title: "Page B"},
	)
	ctx := context.Background()

	res, err := f.svc.ExtractPage(ctx, "pa1")
	require.NoError(t, err)
	require.Len(t, res.Backlinks, 1)

	stored, err := f.repo.FindBacklinksBySource(ctx, "pa1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "pa1", stored[0].SourcePageID)
	assert.Equal(t, "pb1", stored[0].TargetPageID)
	assert.Equal(t, "Page A", stored[0].SourcePageTitle)

	require.Len(t, f.extracted, 1)
	assert.Equal(t, "pa1", f.extracted[0].SourcePageID)
	assert.Equal(t, "db1", f.extracted[0].DatabaseID)
	assert.Equal(t, 1, f.extracted[0].EdgeCount)
	assert.Equal(t, 1, f.edges)
}

func TestExtractPage_IsIdempotent(t *testing.T) {
	f := newFixture(t,
		page.Page{ID: "src", Title: "Source", Content: "Links to [[Alpha]] and [[Beta]]."},
		page.Page{ID: "a", Title: "Alpha"},
		page.Page{ID: "b", Title: "Beta"},
	)
	ctx := context.Background()

	_, err := f.svc.ExtractPage(ctx, "src")
	require.NoError(t, err)
	first, err := f.repo.FindBacklinksBySource(ctx, "src")
	require.NoError(t, err)

	f.clock = f.clock.Add(time.Hour)
	_, err = f.svc.ExtractPage(ctx, "src")
	require.NoError(t, err)
	second, err := f.repo.FindBacklinksBySource(ctx, "src")
	require.NoError(t, err)

	require.Len(t, second, 2, "two references yield two records, not four")
	assert.Equal(t, first, second, "ids and creation times survive re-extraction")
}

func TestExtractPage_ContentChangeReplacesEdges(t *testing.T) {
	f := newFixture(t,
		page.Page{ID: "src", Title: "Source", Content: "[[Alpha]] [[Beta]]"},
		page.Page{ID: "a", Title: "Alpha"},
		page.Page{ID: "b", Title: "Beta"},
	)
	ctx := context.Background()
	_, err := f.svc.ExtractPage(ctx, "src")
	require.NoError(t, err)

	require.NoError(t, f.repo.SavePage(ctx, page.Page{ID: "src", Title: "Source", DatabaseID: "db1", Content: "only [[Beta]] and [[Gamma]]"}))
	res, err := f.svc.ExtractPage(ctx, "src")
	require.NoError(t, err)
	assert.Equal(t, []string{"Gamma"}, res.Unresolved)

	stored, err := f.repo.FindBacklinksBySource(ctx, "src")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "b", stored[0].TargetPageID)
	assert.Equal(t, []string{"Gamma"}, f.extracted[1].Unresolved)
}

func TestExtractPage_MissingPage(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ExtractPage(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Empty(t, f.extracted)
}

func TestExtractDatabase(t *testing.T) {
	f := newFixture(t,
		page.Page{ID: "a", Title: "Alpha", Content: "[[Beta]] [[Nowhere]]"},
		page.Page{ID: "b", Title: "Beta", Content: "[[Alpha]]"},
		page.Page{ID: "c", Title: "Gamma"},
	)
	ctx := context.Background()

	sum, err := f.svc.ExtractDatabase(ctx, "db1")
	require.NoError(t, err)
	assert.Equal(t, Summary{DatabaseID: "db1", Pages: 3, Edges: 2, Unresolved: 1}, sum)
	assert.Len(t, f.extracted, 3)

	in, err := f.repo.FindBacklinksByTarget(ctx, "a")
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, "b", in[0].SourcePageID)
}

func TestExtractDatabase_CollectsFailures(t *testing.T) {
	f := newFixture(t,
		page.Page{ID: "a", Title: "Alpha", Content: "[[Beta]]"},
		page.Page{ID: "b", Title: "Beta"},
	)
	boom := errors.New("disk full")
	f.repo.SetError("ReplaceBacklinksForSource", boom)

	sum, err := f.svc.ExtractDatabase(context.Background(), "db1")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a", "b"}, sum.Failed)
	assert.Empty(t, f.extracted)
}
