// Package sqlite implements the Repository on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/colinxr/notion-graph-view-sub001/internal/domain/backlink"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/page"
	apperrors "github.com/colinxr/notion-graph-view-sub001/internal/errors"
	"github.com/colinxr/notion-graph-view-sub001/internal/repository"
)

// Store is a SQLite-backed Repository.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

var _ repository.Repository = (*Store)(nil)

// Open opens (creating if needed) the database at path and migrates it.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	// Pragmas in the DSN apply to every pooled connection.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("sqlite store opened", zap.String("path", path))
	return &Store{db: db, path: path, logger: logger}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SchemaVersion reports the applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (int64, error) {
	return SchemaVersion(ctx, s.db)
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) FindPage(ctx context.Context, pageID string) (*page.Page, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, database_id, title, content, properties, updated_at FROM pages WHERE id = ?`, pageID)
	p, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.NewPageNotFound(pageID)
	}
	if err != nil {
		return nil, s.storageErr("FindPage", err)
	}

	incoming, err := s.FindBacklinksByTarget(ctx, pageID)
	if err != nil {
		return nil, err
	}
	for _, l := range incoming {
		p.Backlinks = append(p.Backlinks, page.BacklinkRef{
			SourcePageID:    l.SourcePageID,
			SourcePageTitle: l.SourcePageTitle,
			Context:         l.Context,
			CreatedAt:       l.CreatedAt,
		})
	}
	return &p, nil
}

func (s *Store) FindPagesByDatabase(ctx context.Context, databaseID string) ([]page.Page, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, database_id, title, content, properties, updated_at FROM pages WHERE database_id = ? ORDER BY id`, databaseID)
	if err != nil {
		return nil, s.storageErr("FindPagesByDatabase", err)
	}
	defer rows.Close()

	out := make([]page.Page, 0)
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, s.storageErr("FindPagesByDatabase", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, s.storageErr("FindPagesByDatabase", err)
	}
	return out, nil
}

func (s *Store) SavePage(ctx context.Context, p page.Page) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM databases WHERE id = ?`, p.DatabaseID).Scan(&exists)
	if err != nil {
		return s.storageErr("SavePage", err)
	}
	if exists == 0 {
		return repository.NewDatabaseNotFound(p.DatabaseID)
	}

	props := p.Properties
	if props == nil {
		props = []page.Property{}
	}
	encoded, err := json.Marshal(props)
	if err != nil {
		return apperrors.Wrap(err, "SavePage", "failed to encode page properties")
	}

	// An upsert rather than REPLACE: REPLACE deletes the row first and
	// would cascade away the page's backlinks.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pages (id, database_id, title, content, properties, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			database_id = excluded.database_id,
			title = excluded.title,
			content = excluded.content,
			properties = excluded.properties,
			updated_at = excluded.updated_at`,
		p.ID, p.DatabaseID, p.Title, p.Content, string(encoded), formatTime(p.UpdatedAt))
	if err != nil {
		return s.storageErr("SavePage", err)
	}
	return nil
}

func (s *Store) DeletePage(ctx context.Context, pageID string) error {
	// Backlinks in both directions go with the page via ON DELETE CASCADE.
	res, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE id = ?`, pageID)
	if err != nil {
		return s.storageErr("DeletePage", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.storageErr("DeletePage", err)
	}
	if n == 0 {
		return repository.NewPageNotFound(pageID)
	}
	return nil
}

func (s *Store) FindBacklinksBySource(ctx context.Context, pageID string) ([]backlink.Backlink, error) {
	return s.queryBacklinks(ctx, "FindBacklinksBySource",
		`SELECT id, source_page_id, source_page_title, target_page_id, context, created_at
		 FROM backlinks WHERE source_page_id = ? ORDER BY target_page_id`, pageID)
}

func (s *Store) FindBacklinksByTarget(ctx context.Context, pageID string) ([]backlink.Backlink, error) {
	return s.queryBacklinks(ctx, "FindBacklinksByTarget",
		`SELECT id, source_page_id, source_page_title, target_page_id, context, created_at
		 FROM backlinks WHERE target_page_id = ? ORDER BY source_page_id`, pageID)
}

func (s *Store) queryBacklinks(ctx context.Context, op, query string, args ...any) ([]backlink.Backlink, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.storageErr(op, err)
	}
	defer rows.Close()

	out := make([]backlink.Backlink, 0)
	for rows.Next() {
		var (
			l       backlink.Backlink
			created string
		)
		if err := rows.Scan(&l.ID, &l.SourcePageID, &l.SourcePageTitle, &l.TargetPageID, &l.Context, &created); err != nil {
			return nil, s.storageErr(op, err)
		}
		l.CreatedAt = parseTime(created)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, s.storageErr(op, err)
	}
	return out, nil
}

func (s *Store) ReplaceBacklinksForSource(ctx context.Context, pageID string, links []backlink.Backlink) error {
	if err := repository.CheckSource(pageID, links); err != nil {
		return err
	}
	links = backlink.Dedupe(links)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.storageErr("ReplaceBacklinksForSource", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM backlinks WHERE source_page_id = ?`, pageID); err != nil {
		return s.storageErr("ReplaceBacklinksForSource", err)
	}
	if len(links) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO backlinks (id, source_page_id, source_page_title, target_page_id, context, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return s.storageErr("ReplaceBacklinksForSource", err)
		}
		defer stmt.Close()

		for _, l := range links {
			if _, err := stmt.ExecContext(ctx, l.ID, l.SourcePageID, l.SourcePageTitle, l.TargetPageID, l.Context, formatTime(l.CreatedAt)); err != nil {
				return s.storageErr("ReplaceBacklinksForSource", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return s.storageErr("ReplaceBacklinksForSource", err)
	}
	return nil
}

func (s *Store) FindDatabase(ctx context.Context, databaseID string) (*page.Database, error) {
	var (
		db     page.Database
		synced string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, owner_id, synced_at FROM databases WHERE id = ?`, databaseID).
		Scan(&db.ID, &db.Title, &db.OwnerID, &synced)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.NewDatabaseNotFound(databaseID)
	}
	if err != nil {
		return nil, s.storageErr("FindDatabase", err)
	}
	db.SyncedAt = parseTime(synced)
	if db.PageIDs, err = s.pageIDs(ctx, databaseID); err != nil {
		return nil, err
	}
	return &db, nil
}

func (s *Store) FindDatabasesByOwner(ctx context.Context, ownerID string) ([]page.Database, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, owner_id, synced_at FROM databases WHERE owner_id = ? ORDER BY id`, ownerID)
	if err != nil {
		return nil, s.storageErr("FindDatabasesByOwner", err)
	}
	out := make([]page.Database, 0)
	for rows.Next() {
		var (
			db     page.Database
			synced string
		)
		if err := rows.Scan(&db.ID, &db.Title, &db.OwnerID, &synced); err != nil {
			rows.Close()
			return nil, s.storageErr("FindDatabasesByOwner", err)
		}
		db.SyncedAt = parseTime(synced)
		out = append(out, db)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, s.storageErr("FindDatabasesByOwner", err)
	}

	for i := range out {
		if out[i].PageIDs, err = s.pageIDs(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) SaveDatabase(ctx context.Context, db page.Database) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO databases (id, title, owner_id, synced_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			owner_id = excluded.owner_id,
			synced_at = excluded.synced_at`,
		db.ID, db.Title, db.OwnerID, formatTime(db.SyncedAt))
	if err != nil {
		return s.storageErr("SaveDatabase", err)
	}
	return nil
}

func (s *Store) DeleteDatabase(ctx context.Context, databaseID string) error {
	ids, err := s.pageIDs(ctx, databaseID)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		return repository.NewDatabaseNotEmpty(databaseID, len(ids))
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM databases WHERE id = ?`, databaseID)
	if err != nil {
		return s.storageErr("DeleteDatabase", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.storageErr("DeleteDatabase", err)
	}
	if n == 0 {
		return repository.NewDatabaseNotFound(databaseID)
	}
	return nil
}

func (s *Store) pageIDs(ctx context.Context, databaseID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM pages WHERE database_id = ? ORDER BY id`, databaseID)
	if err != nil {
		return nil, s.storageErr("pageIDs", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, s.storageErr("pageIDs", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, s.storageErr("pageIDs", err)
	}
	return ids, nil
}

func (s *Store) storageErr(op string, err error) error {
	var unified *apperrors.UnifiedError
	if errors.As(err, &unified) {
		return err
	}
	s.logger.Warn("sqlite operation failed", zap.String("operation", op), zap.Error(err))
	return repository.NewStorageError(apperrors.CodeSQLiteError, op, err)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPage(row scanner) (page.Page, error) {
	var (
		p       page.Page
		props   string
		updated string
	)
	if err := row.Scan(&p.ID, &p.DatabaseID, &p.Title, &p.Content, &props, &updated); err != nil {
		return page.Page{}, err
	}
	if err := json.Unmarshal([]byte(props), &p.Properties); err != nil {
		return page.Page{}, repository.NewCorruptRecord("page", p.ID, err)
	}
	if len(p.Properties) == 0 {
		p.Properties = nil
	}
	p.UpdatedAt = parseTime(updated)
	return p, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
