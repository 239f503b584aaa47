// Package ingest stores databases and pages delivered by the source system
// and announces the changes on the event bus. Extraction and cache upkeep
// happen in the subscribed handlers, never here.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/colinxr/notion-graph-view-sub001/internal/domain/page"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/shared"
	apperrors "github.com/colinxr/notion-graph-view-sub001/internal/errors"
	"github.com/colinxr/notion-graph-view-sub001/internal/infrastructure/events"
	"github.com/colinxr/notion-graph-view-sub001/internal/repository"
)

// Scheduler queues cache repopulation off the caller's path.
type Scheduler interface {
	ScheduleDatabasesRepopulate(userID string, databases []page.Database, asOf time.Time) bool
}

// Service is the ingest service.
type Service struct {
	repo      repository.Repository
	publisher events.Publisher
	scheduler Scheduler
	validate  *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates the service. scheduler may be nil.
func NewService(repo repository.Repository, publisher events.Publisher, scheduler Scheduler, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		scheduler: scheduler,
		validate:  validator.New(),
		logger:    logger,
		now:       time.Now,
	}
}

// IngestDatabases stores the databases of a user and schedules the fresh
// summary for caching. Databases without an owner are assigned to userID.
func (s *Service) IngestDatabases(ctx context.Context, userID string, databases []page.Database) ([]page.Database, error) {
	if userID == "" {
		return nil, invalid("user id is required")
	}

	batch := make([]page.Database, len(databases))
	for i, db := range databases {
		if db.OwnerID == "" {
			db.OwnerID = userID
		}
		if db.OwnerID != userID {
			return nil, invalid(fmt.Sprintf("database '%s' belongs to '%s', not '%s'", db.ID, db.OwnerID, userID))
		}
		if err := s.validate.Struct(db); err != nil {
			return nil, validationFailed("database", err)
		}
		if db.SyncedAt.IsZero() {
			db.SyncedAt = s.now().UTC()
		}
		batch[i] = db
	}

	for _, db := range batch {
		if err := s.repo.SaveDatabase(ctx, db); err != nil {
			return nil, apperrors.Wrap(err, "SaveDatabase", "failed to store database")
		}
	}

	asOf := s.now().UTC()
	stored, err := s.repo.FindDatabasesByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.scheduler != nil && !s.scheduler.ScheduleDatabasesRepopulate(userID, stored, asOf) {
		s.logger.Warn("databases repopulation not scheduled", zap.String("user_id", userID))
	}
	s.logger.Info("databases ingested",
		zap.String("user_id", userID),
		zap.Int("count", len(batch)))
	return stored, nil
}

// IngestPages stores a batch of pages of one database and publishes
// pages.fetched. The batch is validated as a whole before anything is written.
func (s *Service) IngestPages(ctx context.Context, databaseID string, pages []page.Page) ([]string, error) {
	if _, err := s.repo.FindDatabase(ctx, databaseID); err != nil {
		return nil, err
	}

	batch := make([]page.Page, len(pages))
	for i, p := range pages {
		p, err := s.prepare(p, databaseID)
		if err != nil {
			return nil, err
		}
		batch[i] = p
	}

	ids := make([]string, 0, len(batch))
	for _, p := range batch {
		if err := s.repo.SavePage(ctx, p); err != nil {
			return ids, apperrors.Wrap(err, "SavePage", "failed to store page")
		}
		ids = append(ids, p.ID)
	}

	s.publish(ctx, shared.NewPagesFetchedEvent(databaseID, ids))
	s.logger.Info("pages ingested",
		zap.String("database_id", databaseID),
		zap.Int("count", len(ids)))
	return ids, nil
}

// UpsertPage stores a single created or changed page and publishes page.updated.
func (s *Service) UpsertPage(ctx context.Context, p page.Page) error {
	p, err := s.prepare(p, p.DatabaseID)
	if err != nil {
		return err
	}

	ev := shared.NewPageUpdatedEvent(p.ID, p.DatabaseID)
	previous, err := s.repo.FindPage(ctx, p.ID)
	switch {
	case apperrors.IsNotFound(err):
		ev.TitleChanged = true
	case err != nil:
		return err
	default:
		ev.TitleChanged = previous.DisplayTitle() != p.DisplayTitle()
		if previous.DatabaseID != p.DatabaseID {
			ev.PreviousDatabaseID = previous.DatabaseID
		}
	}

	if err := s.repo.SavePage(ctx, p); err != nil {
		return apperrors.Wrap(err, "SavePage", "failed to store page")
	}
	s.publish(ctx, ev)
	return nil
}

// DeletePage removes a page together with every backlink touching it and
// publishes page.deleted.
func (s *Service) DeletePage(ctx context.Context, pageID string) error {
	p, err := s.repo.FindPage(ctx, pageID)
	if err != nil {
		return err
	}
	if err := s.repo.DeletePage(ctx, pageID); err != nil {
		return err
	}
	s.publish(ctx, shared.NewPageDeletedEvent(pageID, p.DatabaseID))
	return nil
}

// DeleteDatabase removes an empty database and publishes database.deleted.
func (s *Service) DeleteDatabase(ctx context.Context, databaseID string) error {
	db, err := s.repo.FindDatabase(ctx, databaseID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteDatabase(ctx, databaseID); err != nil {
		return err
	}
	s.publish(ctx, shared.NewDatabaseDeletedEvent(databaseID, db.OwnerID))
	return nil
}

func (s *Service) prepare(p page.Page, databaseID string) (page.Page, error) {
	if p.DatabaseID == "" {
		p.DatabaseID = databaseID
	}
	if p.DatabaseID != databaseID {
		return p, apperrors.Validation(apperrors.CodePageDatabaseChange.String(),
			fmt.Sprintf("page '%s' belongs to database '%s', not '%s'", p.ID, p.DatabaseID, databaseID)).
			WithResource("page").
			Build()
	}
	if err := s.validate.Struct(p); err != nil {
		return p, validationFailed("page", err)
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = s.now().UTC()
	}
	p.Backlinks = nil
	return p, nil
}

func (s *Service) publish(ctx context.Context, ev shared.DomainEvent) {
	if s.publisher == nil {
		return
	}
	res := s.publisher.Publish(ctx, ev)
	if res.Failed > 0 {
		s.logger.Warn("handlers failed after ingest",
			zap.String("event", ev.EventName()),
			zap.String("aggregate_id", ev.AggregateID()),
			zap.Int("failed", res.Failed))
	}
}

func invalid(msg string) error {
	return apperrors.Validation(apperrors.CodeInvalidInput.String(), msg).Build()
}

func validationFailed(resource string, err error) error {
	return apperrors.Validation(apperrors.CodeValidationFailed.String(), resource+" failed validation").
		WithResource(resource).
		WithDetails(err.Error()).
		WithCause(err).
		Build()
}
