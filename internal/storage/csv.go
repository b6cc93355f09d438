package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/IshaanNene/mediabias/internal/types"
)

var documentHeader = []string{"url", "publisher", "title", "published_at", "fetched_at", "content"}

// CSVStore keeps a dataset's documents in one CSV file. Every Append
// rewrites the file through a temporary file and a rename.
type CSVStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewCSVStore creates a CSV document store at path.
func NewCSVStore(path string, logger *slog.Logger) (*CSVStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &CSVStore{
		path:   path,
		logger: logger.With("component", "csv_store"),
	}, nil
}

func (s *CSVStore) Name() string { return "csv" }

func (s *CSVStore) Load(ctx context.Context) ([]types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *CSVStore) load() ([]types.Document, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Info("no document table yet, starting empty", "path", s.path)
		return nil, nil
	}
	if err != nil {
		return nil, &types.StorageError{Backend: "csv", Err: err}
	}
	defer f.Close()

	docs, err := readDocuments(f)
	if err != nil {
		return nil, &types.StorageError{Backend: "csv", Err: fmt.Errorf("%s: %w", s.path, err)}
	}
	return docs, nil
}

func (s *CSVStore) Append(ctx context.Context, docs []types.Document) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load()
	if err != nil {
		return 0, err
	}
	union, added := Merge(existing, docs)
	if len(added) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if err := writeAtomic(s.path, func(w io.Writer) error {
		return writeDocuments(w, union)
	}); err != nil {
		return 0, &types.StorageError{Backend: "csv", Err: err}
	}

	s.logger.Info("documents stored", "path", s.path, "added", len(added), "total", len(union))
	return len(added), nil
}

func (s *CSVStore) Close() error { return nil }

func readDocuments(r io.Reader) ([]types.Document, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	col, err := columnIndex(header, documentHeader...)
	if err != nil {
		return nil, err
	}

	var docs []types.Document
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			return nil, err
		}

		doc := types.Document{
			URL:       rec[col["url"]],
			Publisher: rec[col["publisher"]],
			Title:     rec[col["title"]],
			Content:   rec[col["content"]],
		}
		if doc.PublishedAt, err = parseTime(rec[col["published_at"]]); err != nil {
			return nil, fmt.Errorf("row %q: published_at: %w", doc.URL, err)
		}
		if doc.FetchedAt, err = parseTime(rec[col["fetched_at"]]); err != nil {
			return nil, fmt.Errorf("row %q: fetched_at: %w", doc.URL, err)
		}
		docs = append(docs, doc)
	}
}

func writeDocuments(w io.Writer, docs []types.Document) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(documentHeader); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}
	for _, d := range docs {
		row := []string{d.URL, d.Publisher, d.Title, formatTime(d.PublishedAt), formatTime(d.FetchedAt), d.Content}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// columnIndex maps the required column names to their position in header.
func columnIndex(header []string, required ...string) (map[string]int, error) {
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}
	for _, name := range required {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	return col, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

// writeAtomic writes path through a temporary file in the same directory
// so readers never observe a partial table.
func writeAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
