package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/IshaanNene/mediabias/internal/analytics"
	"github.com/IshaanNene/mediabias/internal/types"
)

const totalSuffix = "_total"

// TotalColumn names the count column of party.
func TotalColumn(party string) string {
	return party + totalSuffix
}

// WriteMentions replaces the mention table at path. One row per record,
// one <party>_total column per party in the given order.
func WriteMentions(path string, parties []string, records []types.PartyMentionRecord) error {
	header := append([]string{"document_id", "publisher", "week_start"}, totalColumns(parties)...)
	return writeAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return err
		}
		for _, r := range records {
			row := append([]string{r.DocumentID, r.Publisher, r.PeriodStart.Format(time.DateOnly)}, countCells(parties, r.Counts)...)
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// ReadMentions loads the mention table at path and returns the parties
// named by its <party>_total columns. A missing file wraps types.ErrNoInput.
func ReadMentions(path string) ([]string, []types.PartyMentionRecord, error) {
	var records []types.PartyMentionRecord
	parties, err := readTable(path, []string{"document_id", "publisher", "week_start"}, func(row map[string]string, counts map[string]int) error {
		period, err := time.Parse(time.DateOnly, row["week_start"])
		if err != nil {
			return fmt.Errorf("week_start: %w", err)
		}
		records = append(records, types.PartyMentionRecord{
			DocumentID:  row["document_id"],
			Publisher:   row["publisher"],
			PeriodStart: period,
			Counts:      counts,
		})
		return nil
	})
	return parties, records, err
}

// WriteAnalysis replaces the aggregated table at path: one row per
// (period, publisher).
func WriteAnalysis(path string, parties []string, buckets []analytics.AggregationBucket) error {
	header := append([]string{"period_start", "publisher"}, totalColumns(parties)...)
	return writeAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return err
		}
		for _, b := range buckets {
			row := append([]string{b.PeriodStart.Format(time.DateOnly), b.GroupKey}, countCells(parties, b.Counts)...)
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// ReadAnalysis loads the aggregated table at path. A missing file wraps
// types.ErrNoInput.
func ReadAnalysis(path string) ([]string, []analytics.AggregationBucket, error) {
	var buckets []analytics.AggregationBucket
	parties, err := readTable(path, []string{"period_start", "publisher"}, func(row map[string]string, counts map[string]int) error {
		period, err := time.Parse(time.DateOnly, row["period_start"])
		if err != nil {
			return fmt.Errorf("period_start: %w", err)
		}
		buckets = append(buckets, analytics.AggregationBucket{
			GroupKey:    row["publisher"],
			PeriodStart: period,
			Counts:      counts,
		})
		return nil
	})
	return parties, buckets, err
}

func totalColumns(parties []string) []string {
	cols := make([]string, len(parties))
	for i, p := range parties {
		cols[i] = TotalColumn(p)
	}
	return cols
}

func countCells(parties []string, counts map[string]int) []string {
	cells := make([]string, len(parties))
	for i, p := range parties {
		cells[i] = strconv.Itoa(counts[p])
	}
	return cells
}

// readTable reads a CSV table with the given key columns followed by
// <party>_total columns, calling fn per row.
func readTable(path string, keys []string, fn func(row map[string]string, counts map[string]int) error) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", types.ErrNoInput, path)
	}
	if err != nil {
		return nil, &types.StorageError{Backend: "csv", Err: err}
	}
	defer f.Close()

	cr := csv.NewReader(f)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s is empty", types.ErrNoInput, path)
	}
	if err != nil {
		return nil, &types.StorageError{Backend: "csv", Err: err}
	}
	if _, err := columnIndex(header, keys...); err != nil {
		return nil, &types.StorageError{Backend: "csv", Err: fmt.Errorf("%s: %w", path, err)}
	}

	var parties []string
	for _, h := range header {
		if name, ok := strings.CutSuffix(h, totalSuffix); ok {
			parties = append(parties, name)
		}
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return parties, nil
		}
		if err != nil {
			return nil, &types.StorageError{Backend: "csv", Err: err}
		}

		row := make(map[string]string, len(header))
		counts := make(map[string]int, len(parties))
		for i, h := range header {
			name, ok := strings.CutSuffix(h, totalSuffix)
			if !ok {
				row[h] = rec[i]
				continue
			}
			n, err := strconv.Atoi(rec[i])
			if err != nil || n < 0 {
				return nil, &types.StorageError{Backend: "csv", Err: fmt.Errorf("%s line %d: bad count %q in %s", path, line, rec[i], h)}
			}
			counts[name] = n
		}
		if err := fn(row, counts); err != nil {
			return nil, &types.StorageError{Backend: "csv", Err: fmt.Errorf("%s line %d: %w", path, line, err)}
		}
	}
}
