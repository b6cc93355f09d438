// Package observability exposes pipeline counters in Prometheus text format.
package observability

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
)

// Metrics tracks operational counters across crawl, count and query.
// The zero value is ready to use.
type Metrics struct {
	// Crawl metrics
	RequestsTotal      atomic.Int64
	RequestsFailed     atomic.Int64
	RequestsRetried    atomic.Int64
	RequestsBlocked    atomic.Int64
	LinksDiscovered    atomic.Int64
	DocumentsExtracted atomic.Int64
	ExtractionFailures atomic.Int64
	BytesDownloaded    atomic.Int64
	CrawlsAborted      atomic.Int64

	// Store metrics
	DocumentsStored atomic.Int64

	// Analysis metrics
	RecordsCounted atomic.Int64
	QueriesServed  atomic.Int64
	QueriesFailed  atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

type metric struct {
	name  string
	help  string
	value int64
}

func (m *Metrics) list() []metric {
	return []metric{
		{"mediabias_requests_total", "Total page fetches attempted", m.RequestsTotal.Load()},
		{"mediabias_requests_failed_total", "Total page fetches that failed after retries", m.RequestsFailed.Load()},
		{"mediabias_requests_retried_total", "Total fetch retries", m.RequestsRetried.Load()},
		{"mediabias_requests_blocked_total", "Total URLs skipped by robots.txt", m.RequestsBlocked.Load()},
		{"mediabias_links_discovered_total", "Total article links discovered on seed pages", m.LinksDiscovered.Load()},
		{"mediabias_documents_extracted_total", "Total documents extracted", m.DocumentsExtracted.Load()},
		{"mediabias_extraction_failures_total", "Total pages discarded for lack of content", m.ExtractionFailures.Load()},
		{"mediabias_bytes_downloaded_total", "Total bytes downloaded", m.BytesDownloaded.Load()},
		{"mediabias_crawls_aborted_total", "Total crawl cycles aborted", m.CrawlsAborted.Load()},
		{"mediabias_documents_stored_total", "Total new documents merged into the store", m.DocumentsStored.Load()},
		{"mediabias_records_counted_total", "Total party mention records produced", m.RecordsCounted.Load()},
		{"mediabias_queries_served_total", "Total queries answered", m.QueriesServed.Load()},
		{"mediabias_queries_failed_total", "Total queries rejected", m.QueriesFailed.Load()},
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	for _, metric := range m.list() {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", metric.name)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// Snapshot returns all metrics as a map keyed by exposition name.
func (m *Metrics) Snapshot() map[string]int64 {
	out := make(map[string]int64)
	for _, metric := range m.list() {
		out[metric.name] = metric.value
	}
	return out
}

// LogSummary writes the current counters at info level.
func (m *Metrics) LogSummary() {
	if m == nil || m.logger == nil {
		return
	}
	args := make([]any, 0, 2*len(m.list()))
	for _, metric := range m.list() {
		if metric.value != 0 {
			args = append(args, metric.name, metric.value)
		}
	}
	m.logger.Info("metrics", args...)
}
