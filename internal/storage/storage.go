// Package storage persists crawled documents and the derived mention and
// aggregation tables.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/IshaanNene/mediabias/internal/config"
	"github.com/IshaanNene/mediabias/internal/types"
)

// DocumentStore is the append-only table of crawled documents of one
// dataset. URL is the unique key.
type DocumentStore interface {
	// Load returns every stored document in insertion order. A store that
	// does not exist yet loads as empty.
	Load(ctx context.Context) ([]types.Document, error)

	// Append stores the documents whose URL is not yet present and returns
	// how many were added. Existing rows are never modified. A failed
	// Append leaves the store unchanged.
	Append(ctx context.Context, docs []types.Document) (int, error)

	// Close releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// Merge is the set union of existing and fresh keyed by URL. The first
// document seen for a URL wins: existing rows come first, then fresh rows
// in arrival order. added holds the fresh documents that made it in.
func Merge(existing, fresh []types.Document) (union, added []types.Document) {
	seen := make(map[string]struct{}, len(existing)+len(fresh))
	union = make([]types.Document, 0, len(existing)+len(fresh))

	for _, d := range existing {
		if _, ok := seen[d.URL]; ok {
			continue
		}
		seen[d.URL] = struct{}{}
		union = append(union, d)
	}
	for _, d := range fresh {
		if _, ok := seen[d.URL]; ok {
			continue
		}
		seen[d.URL] = struct{}{}
		union = append(union, d)
		added = append(added, d)
	}
	return union, added
}

// Open returns the document store of dataset for the configured backend.
func Open(ctx context.Context, cfg config.StorageConfig, dataset string, logger *slog.Logger) (DocumentStore, error) {
	paths := NewPaths(cfg.Dir)
	switch cfg.Type {
	case "csv", "":
		return NewCSVStore(paths.Documents(dataset), logger)
	case "sqlite":
		return NewSQLiteStore(ctx, paths.Database(), dataset, logger)
	case "mongodb":
		return NewMongoStore(ctx, cfg, dataset, logger)
	default:
		return nil, &types.ConfigError{Field: "storage.type", Err: fmt.Errorf("unsupported storage type: %s", cfg.Type)}
	}
}

// Paths names the files kept under the storage directory.
type Paths struct {
	Dir string
}

// NewPaths returns the file layout rooted at dir.
func NewPaths(dir string) Paths {
	return Paths{Dir: dir}
}

// Documents is the CSV document table of dataset.
func (p Paths) Documents(dataset string) string {
	return filepath.Join(p.Dir, dataset+"_documents.csv")
}

// Mentions is the per-document mention table of dataset.
func (p Paths) Mentions(dataset string) string {
	return filepath.Join(p.Dir, dataset+"_mentions.csv")
}

// Analysis is the aggregated table of dataset.
func (p Paths) Analysis(dataset string) string {
	return filepath.Join(p.Dir, dataset+"_analysis.csv")
}

// Database is the SQLite file shared by all datasets.
func (p Paths) Database() string {
	return filepath.Join(p.Dir, "mediabias.db")
}
