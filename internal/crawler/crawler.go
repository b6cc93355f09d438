// Package crawler discovers and extracts new documents for a dataset.
//
// A crawl cycle has two phases. Seed pages are fetched and scanned for
// links matching the dataset's identifiers; links already stored or
// already queued are dropped. The remaining candidates are fetched and
// extracted with their publisher's rules. Both phases fan out on an
// errgroup bounded by the configured concurrency, and every task writes
// only its own result slot. Results are gathered after Wait returns, so a
// cancelled or aborted cycle yields nothing.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IshaanNene/mediabias/internal/config"
	"github.com/IshaanNene/mediabias/internal/fetcher"
	"github.com/IshaanNene/mediabias/internal/observability"
	"github.com/IshaanNene/mediabias/internal/parser"
	"github.com/IshaanNene/mediabias/internal/pipeline"
	"github.com/IshaanNene/mediabias/internal/types"
)

var errTooManyFailures = errors.New("too many fetch failures")

// Stats summarizes a crawl cycle.
type Stats struct {
	SeedsFetched       int
	LinksFound         int
	LinksKnown         int
	Candidates         int
	FetchFailures      int
	Blocked            int
	ExtractionFailures int
	Documents          int
	Duration           time.Duration
}

// Skipped returns the number of URLs dropped after they were queued.
func (s Stats) Skipped() int {
	return s.FetchFailures + s.Blocked + s.ExtractionFailures
}

// counters is the concurrent form of Stats used while tasks run.
type counters struct {
	seedsFetched       atomic.Int64
	fetchFailures      atomic.Int64
	blocked            atomic.Int64
	extractionFailures atomic.Int64
}

// Result holds the new documents of one cycle, in discovery order.
type Result struct {
	Documents []types.Document
	Stats     Stats
}

// Crawler runs crawl cycles. It is safe to reuse across cycles but not to
// run two cycles at once.
type Crawler struct {
	cfg        config.CrawlConfig
	publishers map[string]config.PublisherConfig
	fetcher    fetcher.Fetcher
	extractor  *parser.Extractor
	pipeline   *pipeline.Pipeline
	robots     *RobotsManager
	limiter    *HostLimiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithMetrics reports crawl counters to m.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Crawler) { c.metrics = m }
}

// WithRobots replaces the robots.txt manager.
func WithRobots(rm *RobotsManager) Option {
	return func(c *Crawler) { c.robots = rm }
}

// New creates a Crawler that fetches through f.
func New(cfg *config.Config, f fetcher.Fetcher, logger *slog.Logger, opts ...Option) *Crawler {
	publishers := make(map[string]config.PublisherConfig, len(cfg.Publishers))
	for _, p := range cfg.Publishers {
		publishers[p.Name] = p
	}

	c := &Crawler{
		cfg:        cfg.Crawl,
		publishers: publishers,
		fetcher:    f,
		extractor:  parser.NewExtractor(cfg.Publishers, logger),
		pipeline:   pipeline.NewArticlePipeline(logger),
		robots:     NewRobotsManager(cfg.Crawl.RespectRobotsTxt, "mediabias"),
		limiter:    NewHostLimiter(cfg.Crawl.RequestsPerSecond, cfg.Crawl.Burst),
		metrics:    &observability.Metrics{},
		logger:     logger.With("component", "crawler"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// candidate is an article link queued for phase two.
type candidate struct {
	url       string
	publisher string
	parent    string
}

// Crawl runs one cycle over dataset and returns the documents whose URLs
// are not in known. The error wraps types.ErrCrawlAborted when the cycle
// was cancelled or exceeded max_failures, and is a *types.ConfigError
// when a seed names a publisher without rules.
func (c *Crawler) Crawl(ctx context.Context, dataset config.DatasetConfig, known KnownURLs) (*Result, error) {
	for i, seed := range dataset.Seeds {
		if _, ok := c.publishers[seed.Publisher]; !ok {
			return nil, &types.ConfigError{
				Field: fmt.Sprintf("datasets.%s.seeds[%d].publisher", dataset.Name, i),
				Err:   fmt.Errorf("%w: %q", types.ErrUnknownPublisher, seed.Publisher),
			}
		}
	}
	matcher, err := parser.NewLinkMatcher(dataset.LinkIdentifiers)
	if err != nil {
		return nil, &types.ConfigError{Field: "datasets." + dataset.Name + ".link_identifiers", Err: err}
	}
	if known == nil {
		known = URLSet{}
	}

	start := time.Now()
	logger := c.logger.With("dataset", dataset.Name)

	if c.cfg.CycleTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, c.cfg.CycleTimeout)
		defer cancelTimeout()
	}
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var cnt counters
	dedup := NewDeduplicator(256)
	for _, seed := range dataset.Seeds {
		dedup.MarkSeen(seed.URL)
	}

	logger.Info("crawl started", "seeds", len(dataset.Seeds))

	// Phase 1: seed pages.
	seedLinks := make([][]string, len(dataset.Seeds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, seed := range dataset.Seeds {
		g.Go(func() error {
			req, err := c.newRequest(seed.URL, seed.Publisher, types.KindSeed, "")
			if err != nil {
				c.fail(&cnt, cancel, logger, seed.URL, err)
				return nil
			}
			resp, err := c.fetch(gctx, req, &cnt)
			if err != nil {
				c.fail(&cnt, cancel, logger, seed.URL, err)
				return nil
			}
			links, err := c.extractor.Links(resp)
			if err != nil {
				c.fail(&cnt, cancel, logger, seed.URL, err)
				return nil
			}
			cnt.seedsFetched.Add(1)
			seedLinks[i] = links
			return nil
		})
	}
	_ = g.Wait()
	if err := c.aborted(ctx); err != nil {
		return nil, err
	}

	var stats Stats
	var candidates []candidate
	for i, links := range seedLinks {
		seed := dataset.Seeds[i]
		for _, link := range matcher.Filter(links) {
			stats.LinksFound++
			// Other spellings of a stored article are duplicates too.
			if !dedup.MarkSeen(link) {
				continue
			}
			if known.Contains(link) {
				stats.LinksKnown++
				continue
			}
			candidates = append(candidates, candidate{url: link, publisher: seed.Publisher, parent: seed.URL})
		}
	}
	stats.Candidates = len(candidates)
	c.metrics.LinksDiscovered.Add(int64(stats.LinksFound))

	logger.Info("links discovered",
		"matching", stats.LinksFound,
		"already_stored", stats.LinksKnown,
		"candidates", stats.Candidates,
		"unique_urls", dedup.Count(),
	)

	// Phase 2: article pages.
	docs := make([]*types.Document, len(candidates))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, cand := range candidates {
		g.Go(func() error {
			docs[i] = c.article(gctx, cand, &cnt, cancel, logger)
			return nil
		})
	}
	_ = g.Wait()
	if err := c.aborted(ctx); err != nil {
		return nil, err
	}

	result := &Result{}
	for _, d := range docs {
		if d != nil {
			result.Documents = append(result.Documents, *d)
		}
	}

	stats.SeedsFetched = int(cnt.seedsFetched.Load())
	stats.FetchFailures = int(cnt.fetchFailures.Load())
	stats.Blocked = int(cnt.blocked.Load())
	stats.ExtractionFailures = int(cnt.extractionFailures.Load())
	stats.Documents = len(result.Documents)
	stats.Duration = time.Since(start)
	result.Stats = stats

	logger.Info("crawl complete",
		"documents", stats.Documents,
		"fetch_failures", stats.FetchFailures,
		"extraction_failures", stats.ExtractionFailures,
		"blocked", stats.Blocked,
		"duration", stats.Duration,
	)

	return result, nil
}

// article fetches and extracts one candidate. It returns nil when the
// page is skipped for any reason.
func (c *Crawler) article(ctx context.Context, cand candidate, cnt *counters, cancel context.CancelCauseFunc, logger *slog.Logger) *types.Document {
	req, err := c.newRequest(cand.url, cand.publisher, types.KindArticle, cand.parent)
	if err != nil {
		c.fail(cnt, cancel, logger, cand.url, err)
		return nil
	}
	resp, err := c.fetch(ctx, req, cnt)
	if err != nil {
		c.fail(cnt, cancel, logger, cand.url, err)
		return nil
	}

	item, err := c.extractor.Extract(resp)
	if err == nil {
		item, err = c.pipeline.Process(item)
	}
	if err != nil || item == nil {
		cnt.extractionFailures.Add(1)
		c.metrics.ExtractionFailures.Add(1)
		logger.Debug("document discarded", "url", cand.url, "error", err)
		return nil
	}

	item.Timestamp = resp.FetchedAt
	doc := item.ToDocument()
	c.metrics.DocumentsExtracted.Add(1)
	return &doc
}

func (c *Crawler) newRequest(rawURL, publisher string, kind types.Kind, parent string) (*types.Request, error) {
	req, err := types.NewRequest(rawURL)
	if err != nil {
		return nil, err
	}
	pub := c.publishers[publisher]
	req.Kind = kind
	req.Publisher = publisher
	req.ParentURL = parent
	req.MaxRetries = c.cfg.MaxRetries
	req.FetcherType = pub.Fetcher
	req.WaitSelector = pub.WaitSelector
	return req, nil
}

// fetch applies robots.txt and the per-host limiter, then fetches req,
// retrying retryable failures with linear backoff.
func (c *Crawler) fetch(ctx context.Context, req *types.Request, cnt *counters) (*types.Response, error) {
	if !c.robots.IsAllowed(ctx, req.URLString()) {
		cnt.blocked.Add(1)
		c.metrics.RequestsBlocked.Add(1)
		return nil, types.ErrBlocked
	}
	c.limiter.Respect(req.Domain(), c.robots.CrawlDelay(req.URL.Scheme+"://"+req.URL.Host))

	for {
		if err := c.limiter.Wait(ctx, req.Domain()); err != nil {
			return nil, err
		}

		c.metrics.RequestsTotal.Add(1)
		resp, err := c.fetcher.Fetch(ctx, req)
		if err == nil {
			c.metrics.BytesDownloaded.Add(int64(len(resp.Body)))
			return resp, nil
		}

		var fetchErr *types.FetchError
		if !errors.As(err, &fetchErr) || !fetchErr.IsRetryable() || req.RetryCount >= req.MaxRetries {
			return nil, err
		}

		req.RetryCount++
		c.metrics.RequestsRetried.Add(1)
		delay := c.cfg.RetryDelay * time.Duration(req.RetryCount)
		if fetchErr.RetryAfter > delay {
			delay = fetchErr.RetryAfter
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// fail records a failed URL. Blocked URLs are not failures. Exceeding
// max_failures cancels the cycle.
func (c *Crawler) fail(cnt *counters, cancel context.CancelCauseFunc, logger *slog.Logger, rawURL string, err error) {
	if errors.Is(err, types.ErrBlocked) {
		logger.Debug("blocked by robots.txt", "url", rawURL)
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}

	n := cnt.fetchFailures.Add(1)
	c.metrics.RequestsFailed.Add(1)
	logger.Warn("fetch failed, skipping", "url", rawURL, "error", err)

	if c.cfg.MaxFailures > 0 && n > int64(c.cfg.MaxFailures) {
		cancel(fmt.Errorf("%w: %d > %d", errTooManyFailures, n, c.cfg.MaxFailures))
	}
}

// aborted reports whether the cycle context ended, wrapping its cause.
func (c *Crawler) aborted(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	c.metrics.CrawlsAborted.Add(1)
	return fmt.Errorf("%w: %v", types.ErrCrawlAborted, context.Cause(ctx))
}
