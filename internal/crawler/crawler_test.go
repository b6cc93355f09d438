package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IshaanNene/mediabias/internal/config"
	"github.com/IshaanNene/mediabias/internal/fetcher"
	"github.com/IshaanNene/mediabias/internal/observability"
	"github.com/IshaanNene/mediabias/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const listingHTML = `<html><body>
<a href="/politik/a.html">A</a>
<a href="/politik/b.html">B</a>
<a href="/politik/a.html#kommentare">A again</a>
<a href="/sport/fussball.html">Sport</a>
<a href="/politik/geheim.html">Blocked</a>
<a href="/politik/leer.html">Empty</a>
<a href="/politik/kaputt.html">Broken</a>
</body></html>`

func articleHTML(title, body string) string {
	return fmt.Sprintf(`<html><head>
<meta property="article:published_time" content="2025-09-01T10:00:00+02:00">
</head><body><h1>%s</h1><article><p>%s</p></article></body></html>`, title, body)
}

// newsSite serves a listing page and its articles. hits counts requests
// per path.
func newsSite(t *testing.T) (*httptest.Server, *pathHits) {
	t.Helper()
	hits := &pathHits{}
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /politik/geheim\n")
	})
	mux.HandleFunc("/politik/", func(w http.ResponseWriter, r *http.Request) {
		hits.inc(r.URL.Path)
		switch r.URL.Path {
		case "/politik/":
			fmt.Fprint(w, listingHTML)
		case "/politik/a.html":
			fmt.Fprint(w, articleHTML("Koalition", "Die CDU und die SPD streiten."))
		case "/politik/b.html":
			fmt.Fprint(w, articleHTML("Opposition", "Die AfD und die Grünen widersprechen."))
		case "/politik/leer.html":
			fmt.Fprint(w, `<html><body><h1>Nur Titel</h1></body></html>`)
		case "/politik/geheim.html":
			fmt.Fprint(w, articleHTML("Geheim", "Sollte nie geholt werden."))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, hits
}

type pathHits struct {
	a, b, geheim atomic.Int64
}

func (s *pathHits) inc(path string) {
	switch path {
	case "/politik/a.html":
		s.a.Add(1)
	case "/politik/b.html":
		s.b.Add(1)
	case "/politik/geheim.html":
		s.geheim.Add(1)
	}
}

func testConfig(seedURL string) (*config.Config, config.DatasetConfig) {
	cfg := config.DefaultConfig()
	cfg.Crawl.Concurrency = 4
	cfg.Crawl.RequestsPerSecond = 0
	cfg.Crawl.MaxRetries = 1
	cfg.Crawl.RetryDelay = time.Millisecond
	cfg.Crawl.RequestTimeout = 5 * time.Second
	cfg.Crawl.CycleTimeout = 30 * time.Second
	cfg.Publishers = []config.PublisherConfig{{
		Name: "Tagesblatt",
		Rules: []config.ParseRule{
			{Name: "title", Type: "css", Selector: "h1"},
			{Name: "content", Type: "css", Selector: "article p", Multiple: true},
		},
	}}
	ds := config.DatasetConfig{
		Name:            "news",
		Seeds:           []config.SeedConfig{{URL: seedURL, Publisher: "Tagesblatt"}},
		LinkIdentifiers: []string{"/politik/"},
		Frequency:       "weekly",
		RollingWindow:   4,
	}
	return cfg, ds
}

func newTestCrawler(cfg *config.Config, opts ...Option) *Crawler {
	return New(cfg, fetcher.NewHTTPFetcher(cfg, testLogger), testLogger, opts...)
}

func TestCrawlDiscoversAndExtracts(t *testing.T) {
	srv, hits := newsSite(t)
	cfg, ds := testConfig(srv.URL + "/politik/")
	metrics := observability.NewMetrics(testLogger)
	c := newTestCrawler(cfg, WithMetrics(metrics))

	res, err := c.Crawl(context.Background(), ds, nil)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}

	if len(res.Documents) != 2 {
		t.Fatalf("expected 2 documents, got %d: %+v", len(res.Documents), res.Documents)
	}
	first := res.Documents[0]
	if first.URL != srv.URL+"/politik/a.html" {
		t.Errorf("first url = %q", first.URL)
	}
	if first.Title != "Koalition" || first.Publisher != "Tagesblatt" {
		t.Errorf("unexpected document %+v", first)
	}
	if !strings.Contains(first.Content, "CDU") {
		t.Errorf("content = %q", first.Content)
	}
	want := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	if !first.PublishedAt.Equal(want) {
		t.Errorf("published = %v, want %v", first.PublishedAt, want)
	}
	if first.FetchedAt.IsZero() {
		t.Error("fetched_at must be set")
	}

	if hits.a.Load() != 1 {
		t.Errorf("a.html fetched %d times, want 1", hits.a.Load())
	}
	if hits.geheim.Load() != 0 {
		t.Error("robots-disallowed page was fetched")
	}

	s := res.Stats
	if s.Blocked != 1 || s.ExtractionFailures != 1 || s.FetchFailures != 1 {
		t.Errorf("stats = %+v", s)
	}
	if s.Skipped() != 3 {
		t.Errorf("skipped = %d, want 3", s.Skipped())
	}
	if metrics.DocumentsExtracted.Load() != 2 || metrics.RequestsRetried.Load() != 1 {
		t.Errorf("metrics: extracted=%d retried=%d",
			metrics.DocumentsExtracted.Load(), metrics.RequestsRetried.Load())
	}
}

func TestCrawlSkipsKnownURLs(t *testing.T) {
	srv, hits := newsSite(t)
	cfg, ds := testConfig(srv.URL + "/politik/")
	c := newTestCrawler(cfg)

	first, err := c.Crawl(context.Background(), ds, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Crawl(context.Background(), ds, NewURLSet(first.Documents))
	if err != nil {
		t.Fatal(err)
	}

	if len(second.Documents) != 0 {
		t.Errorf("second crawl returned %d documents", len(second.Documents))
	}
	if second.Stats.LinksKnown != 2 {
		t.Errorf("links known = %d, want 2", second.Stats.LinksKnown)
	}
	if hits.a.Load() != 1 || hits.b.Load() != 1 {
		t.Errorf("known articles refetched: a=%d b=%d", hits.a.Load(), hits.b.Load())
	}
}

func TestCrawlAbortsAfterMaxFailures(t *testing.T) {
	srv, _ := newsSite(t)
	cfg, ds := testConfig(srv.URL + "/politik/")
	cfg.Crawl.MaxRetries = 0
	cfg.Crawl.Concurrency = 1
	ds.Seeds = append(ds.Seeds,
		config.SeedConfig{URL: srv.URL + "/politik/weg1", Publisher: "Tagesblatt"},
		config.SeedConfig{URL: srv.URL + "/politik/weg2", Publisher: "Tagesblatt"},
	)
	cfg.Crawl.MaxFailures = 1
	metrics := observability.NewMetrics(testLogger)
	c := newTestCrawler(cfg, WithMetrics(metrics))

	res, err := c.Crawl(context.Background(), ds, nil)
	if !errors.Is(err, types.ErrCrawlAborted) {
		t.Fatalf("expected ErrCrawlAborted, got %v", err)
	}
	if res != nil {
		t.Errorf("aborted crawl must not return documents, got %+v", res)
	}
	if metrics.CrawlsAborted.Load() != 1 {
		t.Errorf("crawls aborted = %d", metrics.CrawlsAborted.Load())
	}
}

func TestCrawlCancelled(t *testing.T) {
	srv, _ := newsSite(t)
	cfg, ds := testConfig(srv.URL + "/politik/")
	c := newTestCrawler(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := c.Crawl(ctx, ds, nil)
	if !errors.Is(err, types.ErrCrawlAborted) {
		t.Fatalf("expected ErrCrawlAborted, got %v", err)
	}
	if res != nil {
		t.Error("cancelled crawl returned a result")
	}
}

func TestCrawlUnknownPublisher(t *testing.T) {
	cfg, ds := testConfig("https://tagesblatt.example/politik/")
	ds.Seeds[0].Publisher = "Abendpost"
	c := newTestCrawler(cfg)

	_, err := c.Crawl(context.Background(), ds, nil)
	var cfgErr *types.ConfigError
	if !errors.As(err, &cfgErr) || !errors.Is(err, types.ErrUnknownPublisher) {
		t.Fatalf("expected ConfigError wrapping ErrUnknownPublisher, got %v", err)
	}
	if !types.IsFatal(err) {
		t.Error("unknown publisher must be fatal")
	}
}

func TestCrawlWithoutRobots(t *testing.T) {
	srv, hits := newsSite(t)
	cfg, ds := testConfig(srv.URL + "/politik/")
	c := newTestCrawler(cfg, WithRobots(NewRobotsManager(false, "mediabias")))

	res, err := c.Crawl(context.Background(), ds, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Documents) != 3 || hits.geheim.Load() != 1 {
		t.Errorf("documents=%d geheim hits=%d", len(res.Documents), hits.geheim.Load())
	}
}

func TestCrawlSkipsOtherSpellingsOfKnownURLs(t *testing.T) {
	var articleHits atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/politik/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/politik/" {
			fmt.Fprint(w, `<a href="/politik/a.html">A</a><a href="/politik/a.html/">A again</a>`)
			return
		}
		articleHits.Add(1)
		fmt.Fprint(w, articleHTML("Koalition", "Die CDU und die SPD streiten."))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg, ds := testConfig(srv.URL + "/politik/")
	c := newTestCrawler(cfg, WithRobots(NewRobotsManager(false, "mediabias")))

	first, err := c.Crawl(context.Background(), ds, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Documents) != 1 || articleHits.Load() != 1 {
		t.Fatalf("first crawl: documents=%d article hits=%d, want 1 and 1",
			len(first.Documents), articleHits.Load())
	}

	second, err := c.Crawl(context.Background(), ds, NewURLSet(first.Documents))
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Documents) != 0 {
		t.Errorf("second crawl returned %d documents: %v", len(second.Documents), second.Documents[0].URL)
	}
	if second.Stats.LinksKnown != 1 {
		t.Errorf("links known = %d, want 1", second.Stats.LinksKnown)
	}

	stored := NewURLSet([]types.Document{{URL: srv.URL + "/politik/a.html/"}})
	third, err := c.Crawl(context.Background(), ds, stored)
	if err != nil {
		t.Fatal(err)
	}
	if len(third.Documents) != 0 {
		t.Errorf("crawl against the slash spelling returned %d documents", len(third.Documents))
	}
	if articleHits.Load() != 1 {
		t.Errorf("article fetched %d times, want 1", articleHits.Load())
	}
}

// inFlight records the peak number of concurrent requests per phase.
type inFlight struct {
	cur         atomic.Int64
	seedPeak    atomic.Int64
	articlePeak atomic.Int64
}

func (f *inFlight) enter(peak *atomic.Int64) {
	n := f.cur.Add(1)
	for {
		p := peak.Load()
		if n <= p || peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func TestCrawlBoundsConcurrency(t *testing.T) {
	const seeds, perSeed, concurrency = 5, 3, 2

	flight := &inFlight{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		peak := &flight.articlePeak
		if strings.HasPrefix(r.URL.Path, "/seed/") {
			peak = &flight.seedPeak
		}
		flight.enter(peak)
		defer flight.cur.Add(-1)
		time.Sleep(30 * time.Millisecond)

		if seed, ok := strings.CutPrefix(r.URL.Path, "/seed/"); ok {
			for k := range perSeed {
				fmt.Fprintf(w, `<a href="/politik/%s-%d.html">x</a>`, seed, k)
			}
			return
		}
		fmt.Fprint(w, articleHTML("Titel", "Die SPD und die Grünen."))
	}))
	defer srv.Close()

	cfg, ds := testConfig(srv.URL + "/seed/0")
	cfg.Crawl.Concurrency = concurrency
	for i := 1; i < seeds; i++ {
		ds.Seeds = append(ds.Seeds, config.SeedConfig{URL: fmt.Sprintf("%s/seed/%d", srv.URL, i), Publisher: "Tagesblatt"})
	}
	c := newTestCrawler(cfg, WithRobots(NewRobotsManager(false, "mediabias")))

	res, err := c.Crawl(context.Background(), ds, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Documents) != seeds*perSeed {
		t.Errorf("documents = %d, want %d", len(res.Documents), seeds*perSeed)
	}
	if p := flight.seedPeak.Load(); p > concurrency {
		t.Errorf("seed phase peak = %d, limit %d", p, concurrency)
	}
	if p := flight.articlePeak.Load(); p > concurrency || p < 2 {
		t.Errorf("article phase peak = %d, want exactly %d", p, concurrency)
	}
}
