package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/IshaanNene/mediabias/internal/types"
)

const documentSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	dataset TEXT NOT NULL,
	url TEXT NOT NULL,
	publisher TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	published_at TEXT NOT NULL DEFAULT '',
	fetched_at TEXT NOT NULL,
	content TEXT NOT NULL,
	UNIQUE(dataset, url)
);

CREATE INDEX IF NOT EXISTS idx_documents_publisher ON documents(dataset, publisher);
`

// SQLiteStore keeps documents in a SQLite table shared by all datasets.
type SQLiteStore struct {
	db      *sql.DB
	dataset string
	logger  *slog.Logger
}

// NewSQLiteStore opens or creates the database at path.
func NewSQLiteStore(ctx context.Context, path, dataset string, logger *slog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, &types.StorageError{Backend: "sqlite", Err: err}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, &types.StorageError{Backend: "sqlite", Err: fmt.Errorf("enable WAL mode: %w", err)}
	}
	if _, err := db.ExecContext(ctx, documentSchema); err != nil {
		_ = db.Close()
		return nil, &types.StorageError{Backend: "sqlite", Err: fmt.Errorf("create tables: %w", err)}
	}

	return &SQLiteStore{
		db:      db,
		dataset: dataset,
		logger:  logger.With("component", "sqlite_store", "dataset", dataset),
	}, nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

func (s *SQLiteStore) Load(ctx context.Context) ([]types.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT url, publisher, title, published_at, fetched_at, content
		FROM documents WHERE dataset = ? ORDER BY id`, s.dataset)
	if err != nil {
		return nil, &types.StorageError{Backend: "sqlite", Err: err}
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		var d types.Document
		var published, fetched string
		if err := rows.Scan(&d.URL, &d.Publisher, &d.Title, &published, &fetched, &d.Content); err != nil {
			return nil, &types.StorageError{Backend: "sqlite", Err: err}
		}
		if d.PublishedAt, err = parseTime(published); err != nil {
			return nil, &types.StorageError{Backend: "sqlite", Err: fmt.Errorf("row %q: %w", d.URL, err)}
		}
		if d.FetchedAt, err = parseTime(fetched); err != nil {
			return nil, &types.StorageError{Backend: "sqlite", Err: fmt.Errorf("row %q: %w", d.URL, err)}
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.StorageError{Backend: "sqlite", Err: err}
	}
	return docs, nil
}

// Append inserts docs in one transaction. Conflicting URLs are ignored.
func (s *SQLiteStore) Append(ctx context.Context, docs []types.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &types.StorageError{Backend: "sqlite", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (dataset, url, publisher, title, published_at, fetched_at, content)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dataset, url) DO NOTHING`)
	if err != nil {
		return 0, &types.StorageError{Backend: "sqlite", Err: err}
	}
	defer stmt.Close()

	added := 0
	for _, d := range docs {
		res, err := stmt.ExecContext(ctx, s.dataset, d.URL, d.Publisher, d.Title,
			formatTime(d.PublishedAt), formatTime(d.FetchedAt), d.Content)
		if err != nil {
			return 0, &types.StorageError{Backend: "sqlite", Err: fmt.Errorf("insert %s: %w", d.URL, err)}
		}
		if n, err := res.RowsAffected(); err == nil {
			added += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, &types.StorageError{Backend: "sqlite", Err: err}
	}
	s.logger.Info("documents stored", "added", added, "offered", len(docs))
	return added, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
