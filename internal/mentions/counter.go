package mentions

import (
	"log/slog"
	"slices"
	"time"

	"github.com/IshaanNene/mediabias/internal/textnorm"
	"github.com/IshaanNene/mediabias/internal/types"
)

// Bucketer maps a document date to the start of its period.
type Bucketer interface {
	PeriodStart(t time.Time) time.Time
}

// Counter counts whole-word party mentions.
type Counter struct {
	dict   *Dictionary
	logger *slog.Logger
}

// NewCounter creates a Counter. Forms shared between parties are logged
// once; each such mention counts for every owning party.
func NewCounter(dict *Dictionary, logger *slog.Logger) *Counter {
	c := &Counter{dict: dict, logger: logger.With("component", "mention_counter")}
	for _, o := range dict.Overlaps() {
		c.logger.Warn("synonym shared by several parties", "form", o.Form, "parties", o.Parties)
	}
	return c
}

// Count returns the mention count of every party in normalized text. A
// form matches only a run of whole tokens. Within one party, longer forms
// claim their tokens first, so "die linke" is one mention, not two.
//
// The result is therefore not the plain sum of per-synonym occurrence
// counts whenever one synonym is contained in another: a token counts
// for at most one mention per party.
func (c *Counter) Count(normalized string) map[string]int {
	tokens := textnorm.Tokens(normalized)
	counts := make(map[string]int, len(c.dict.parties))

	for _, p := range c.dict.parties {
		claimed := make([]bool, len(tokens))
		n := 0
		for _, form := range p.forms {
			for i := 0; i+len(form) <= len(tokens); i++ {
				if !slices.Equal(tokens[i:i+len(form)], form) {
					continue
				}
				if slices.Contains(claimed[i:i+len(form)], true) {
					continue
				}
				for j := i; j < i+len(form); j++ {
					claimed[j] = true
				}
				n++
				i += len(form) - 1
			}
		}
		counts[p.name] = n
	}
	return counts
}

// Record counts the mentions in doc and tags them with doc's period.
func (c *Counter) Record(doc types.Document, b Bucketer) types.PartyMentionRecord {
	return types.PartyMentionRecord{
		DocumentID:  doc.URL,
		Publisher:   doc.Publisher,
		PeriodStart: b.PeriodStart(doc.Date()),
		Counts:      c.Count(textnorm.Normalize(doc.Content)),
	}
}

// Records builds one record per document, in document order. Empty content
// yields all-zero counts. Documents without a URL cannot be linked to a
// record and are reported in skipped.
func (c *Counter) Records(docs []types.Document, b Bucketer) (records []types.PartyMentionRecord, skipped int) {
	records = make([]types.PartyMentionRecord, 0, len(docs))
	for _, doc := range docs {
		if doc.URL == "" {
			skipped++
			continue
		}
		records = append(records, c.Record(doc, b))
	}
	if skipped > 0 {
		c.logger.Warn("documents without url skipped", "count", skipped)
	}
	return records, skipped
}
