// Package graph serves graph and database reads cache-aside: the cache is
// consulted first and, on a miss, the view is rebuilt from the repository
// and handed back to the cache asynchronously.
package graph

import (
	"context"

	"go.uber.org/zap"

	"github.com/colinxr/notion-graph-view-sub001/internal/application/cachesync"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/backlink"
	domaingraph "github.com/colinxr/notion-graph-view-sub001/internal/domain/graph"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/page"
	"github.com/colinxr/notion-graph-view-sub001/internal/repository"
)

// Source tells where a read was served from.
type Source string

const (
	SourceCache Source = "cache"
	SourceStore Source = "store"
)

// GraphView is a database graph and where it came from.
type GraphView struct {
	DatabaseID string            `json:"databaseId"`
	Graph      domaingraph.Graph `json:"graph"`
	Source     Source            `json:"source"`
}

// DatabasesView is a user's databases and where they came from.
type DatabasesView struct {
	UserID    string          `json:"userId"`
	Databases []page.Database `json:"databases"`
	Source    Source          `json:"source"`
}

// Service is the graph read service.
type Service struct {
	repo   repository.Repository
	cache  *cachesync.Service
	logger *zap.Logger
}

// NewService creates the service.
func NewService(repo repository.Repository, cache *cachesync.Service, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// DatabaseGraph returns the node/edge view of a database.
func (s *Service) DatabaseGraph(ctx context.Context, databaseID string) (*GraphView, error) {
	if g := s.cache.GetCachedGraph(ctx, databaseID); g != nil {
		return &GraphView{DatabaseID: databaseID, Graph: *g, Source: SourceCache}, nil
	}

	asOf := s.cache.Now()
	g, err := s.Rebuild(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	if !s.cache.ScheduleGraphRepopulate(databaseID, g, asOf) {
		s.logger.Debug("graph repopulation not scheduled", zap.String("database_id", databaseID))
	}
	return &GraphView{DatabaseID: databaseID, Graph: g, Source: SourceStore}, nil
}

// Rebuild assembles the graph of a database from the repository, bypassing
// the cache.
func (s *Service) Rebuild(ctx context.Context, databaseID string) (domaingraph.Graph, error) {
	if _, err := s.repo.FindDatabase(ctx, databaseID); err != nil {
		return domaingraph.Graph{}, err
	}
	pages, err := s.repo.FindPagesByDatabase(ctx, databaseID)
	if err != nil {
		return domaingraph.Graph{}, err
	}

	var links []backlink.Backlink
	for _, p := range pages {
		out, err := s.repo.FindBacklinksBySource(ctx, p.ID)
		if err != nil {
			return domaingraph.Graph{}, err
		}
		links = append(links, out...)
	}

	g, dangling := domaingraph.Assemble(pages, links)
	for _, d := range dangling {
		// Edges crossing into another database land here as well as
		// edges left behind by a failed cascade.
		s.logger.Warn("backlink target outside database, edge omitted",
			zap.String("database_id", databaseID),
			zap.String("backlink_id", d.ID),
			zap.String("source", d.SourcePageID),
			zap.String("target", d.TargetPageID))
	}
	return g, nil
}

// UserDatabases returns the databases a user owns.
func (s *Service) UserDatabases(ctx context.Context, userID string) (*DatabasesView, error) {
	if cached := s.cache.GetCachedDatabases(ctx, userID); cached != nil {
		return &DatabasesView{UserID: userID, Databases: cached.Databases, Source: SourceCache}, nil
	}

	asOf := s.cache.Now()
	dbs, err := s.repo.FindDatabasesByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cache.ScheduleDatabasesRepopulate(userID, dbs, asOf)
	return &DatabasesView{UserID: userID, Databases: dbs, Source: SourceStore}, nil
}
