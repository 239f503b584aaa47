// Package extraction keeps stored backlinks consistent with page content.
// Every run recomputes the full outgoing edge set of a source page and
// replaces what was stored, so repeated runs converge on the same records.
package extraction

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/colinxr/notion-graph-view-sub001/internal/domain/backlink"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/page"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/shared"
	apperrors "github.com/colinxr/notion-graph-view-sub001/internal/errors"
	"github.com/colinxr/notion-graph-view-sub001/internal/infrastructure/events"
	"github.com/colinxr/notion-graph-view-sub001/internal/repository"
)

// Metrics receives extraction outcomes.
type Metrics interface {
	ExtractionCompleted(edges, unresolved int)
}

// Store is the persistence the service needs.
type Store interface {
	repository.PageRepository
	repository.BacklinkRepository
}

// Summary reports a database-wide run.
type Summary struct {
	DatabaseID string   `json:"databaseId"`
	Pages      int      `json:"pages"`
	Edges      int      `json:"edges"`
	Unresolved int      `json:"unresolved"`
	Failed     []string `json:"failed,omitempty"`
}

// Service runs backlink extraction against the repository.
type Service struct {
	store     Store
	publisher events.Publisher
	opts      backlink.Options
	logger    *zap.Logger
	metrics   Metrics
}

// NewService creates the service. metrics may be nil.
func NewService(store Store, publisher events.Publisher, opts backlink.Options, logger *zap.Logger, metrics Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
	}
}

// ExtractPage recomputes the outgoing backlinks of one page, resolving
// references against the pages of its database.
func (s *Service) ExtractPage(ctx context.Context, pageID string) (backlink.Result, error) {
	source, err := s.store.FindPage(ctx, pageID)
	if err != nil {
		return backlink.Result{}, err
	}
	pages, err := s.store.FindPagesByDatabase(ctx, source.DatabaseID)
	if err != nil {
		return backlink.Result{}, err
	}
	return s.extract(ctx, *source, backlink.NewResolver(pages))
}

// ExtractDatabase recomputes the backlinks of every page in a database. A
// failing page is logged and skipped; the error lists every failure.
func (s *Service) ExtractDatabase(ctx context.Context, databaseID string) (Summary, error) {
	pages, err := s.store.FindPagesByDatabase(ctx, databaseID)
	if err != nil {
		return Summary{DatabaseID: databaseID}, err
	}
	resolver := backlink.NewResolver(pages)

	sum := Summary{DatabaseID: databaseID, Pages: len(pages)}
	var errs []error
	for _, p := range pages {
		res, err := s.extract(ctx, p, resolver)
		if err != nil {
			sum.Failed = append(sum.Failed, p.ID)
			errs = append(errs, err)
			continue
		}
		sum.Edges += len(res.Backlinks)
		sum.Unresolved += len(res.Unresolved)
	}

	s.logger.Info("database extraction completed",
		zap.String("database_id", databaseID),
		zap.Int("pages", sum.Pages),
		zap.Int("edges", sum.Edges),
		zap.Int("unresolved", sum.Unresolved),
		zap.Int("failed", len(sum.Failed)))
	return sum, errors.Join(errs...)
}

func (s *Service) extract(ctx context.Context, source page.Page, lookup backlink.Lookup) (backlink.Result, error) {
	res := backlink.Extract(source, lookup, s.opts)

	previous, err := s.store.FindBacklinksBySource(ctx, source.ID)
	if err != nil {
		return backlink.Result{}, err
	}
	res.Backlinks = backlink.PreserveCreated(res.Backlinks, previous)

	if err := s.store.ReplaceBacklinksForSource(ctx, source.ID, res.Backlinks); err != nil {
		return backlink.Result{}, apperrors.Wrap(err, "ReplaceBacklinksForSource", "failed to store backlinks")
	}

	if len(res.Unresolved) > 0 {
		s.logger.Debug("unresolved references skipped",
			zap.String("page_id", source.ID),
			zap.Strings("targets", res.Unresolved))
	}
	if s.metrics != nil {
		s.metrics.ExtractionCompleted(len(res.Backlinks), len(res.Unresolved))
	}
	if s.publisher != nil {
		s.publisher.Publish(ctx, shared.NewBacklinkExtractedEvent(source.ID, source.DatabaseID, len(res.Backlinks), res.Unresolved))
	}
	return res, nil
}
