package types

import (
	"time"
)

// Document is a crawled article or transcript. URL is the unique key.
type Document struct {
	// URL identifies the document across crawl runs.
	URL string

	// Publisher is the outlet or show the document was crawled for.
	Publisher string

	// Title is the extracted headline, possibly empty.
	Title string

	// PublishedAt is the extracted publication date; zero when the page had none.
	PublishedAt time.Time

	// FetchedAt is when the crawler first stored the document.
	FetchedAt time.Time

	// Content is the extracted body text.
	Content string
}

// Date returns the timestamp used for time bucketing: the publication
// date when known, otherwise the fetch time.
func (d Document) Date() time.Time {
	if !d.PublishedAt.IsZero() {
		return d.PublishedAt
	}
	return d.FetchedAt
}

// PartyMentionRecord holds the per-party mention counts of one document.
type PartyMentionRecord struct {
	// DocumentID is the URL of the source document.
	DocumentID string

	// Publisher is copied from the source document.
	Publisher string

	// PeriodStart is the start of the time bucket the document falls in.
	PeriodStart time.Time

	// Counts maps canonical party name to a non-negative mention count.
	Counts map[string]int
}

// Count returns the mention count for party, zero when absent.
func (r PartyMentionRecord) Count(party string) int {
	return r.Counts[party]
}

// Total returns the sum of all party counts.
func (r PartyMentionRecord) Total() int {
	total := 0
	for _, c := range r.Counts {
		total += c
	}
	return total
}
