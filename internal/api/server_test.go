package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/mediabias/internal/analytics"
	"github.com/IshaanNene/mediabias/internal/config"
	"github.com/IshaanNene/mediabias/internal/observability"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func share(v float64) *float64 { return &v }

func newTestServer(t *testing.T) (*Server, *observability.Metrics) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Parties = []config.PartyConfig{
		{Name: "A", Synonyms: []string{"a"}, ReferenceShare: share(0.33)},
		{Name: "B", Synonyms: []string{"b"}, ReferenceShare: share(0.19)},
	}
	news, _ := cfg.Dataset("news")
	news.Since = ""
	news.RollingWindow = 1

	buckets := []analytics.AggregationBucket{
		{GroupKey: "X", PeriodStart: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC), Counts: map[string]int{"A": 3}},
		{GroupKey: "X", PeriodStart: time.Date(2025, 9, 8, 0, 0, 0, 0, time.UTC), Counts: map[string]int{"A": 1, "B": 4}},
		{GroupKey: "Y", PeriodStart: time.Date(2025, 9, 8, 0, 0, 0, 0, time.UTC), Counts: map[string]int{"B": 2}},
	}
	ds, err := analytics.NewDataset(news, buckets)
	require.NoError(t, err)

	metrics := observability.NewMetrics(testLogger)
	return NewServer(cfg, analytics.NewEngine(cfg.Parties, ds), metrics, testLogger), metrics
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestDatasets(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/api/v1/datasets")
	require.Equal(t, http.StatusOK, rec.Code)

	infos := decode[[]datasetInfo](t, rec)
	require.Len(t, infos, 1)
	assert.Equal(t, "news", infos[0].Name)
	assert.Equal(t, "weekly", infos[0].Frequency)
	assert.Equal(t, []string{"X", "Y"}, infos[0].Publishers)
}

func TestQueryTotals(t *testing.T) {
	s, metrics := newTestServer(t)

	rec := get(t, s, "/api/v1/datasets/news/query?mode=totals&publisher=X")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[analytics.Result](t, rec)
	assert.Equal(t, []string{"A", "B"}, res.Parties)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, map[string]float64{"A": 4, "B": 4}, res.Rows[0].Values)
	assert.EqualValues(t, 1, metrics.QueriesServed.Load())
}

func TestQueryDefaultsSelectEverything(t *testing.T) {
	s, _ := newTestServer(t)

	res := decode[analytics.Result](t, get(t, s, "/api/v1/datasets/news/query"))
	assert.Equal(t, analytics.ModeTotals, res.Mode)
	assert.Equal(t, map[string]float64{"A": 4, "B": 6}, res.Rows[0].Values)
}

func TestQueryTimeseriesPercent(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/api/v1/datasets/news/query?mode=timeseries&unit=percent&publisher=X&party=A,B")
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[analytics.Result](t, rec)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "2025-09-08", res.Rows[1].Label)
	assert.InDelta(t, 20, res.Rows[1].Values["A"], 1e-9)
	assert.InDelta(t, 80, res.Rows[1].Values["B"], 1e-9)
}

func TestQueryComparison(t *testing.T) {
	s, _ := newTestServer(t)

	res := decode[analytics.Result](t, get(t, s, "/api/v1/datasets/news/query?mode=comparison&party=A&party=B"))
	require.Len(t, res.Rows, 2)
	assert.Equal(t, analytics.SeriesReference, res.Rows[1].Series)
	assert.InDelta(t, 33, res.Rows[1].Values["A"], 1e-9)
}

func TestQueryEmptySelection(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/api/v1/datasets/news/query?publisher=")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[analytics.Result](t, rec).Empty)
}

func TestQueryErrors(t *testing.T) {
	s, metrics := newTestServer(t)

	tests := []struct {
		target string
		status int
	}{
		{"/api/v1/datasets/radio/query", http.StatusNotFound},
		{"/api/v1/datasets/news/query?mode=median", http.StatusBadRequest},
		{"/api/v1/datasets/news/query?unit=permille", http.StatusBadRequest},
		{"/api/v1/datasets/news/query?since=yesterday", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := get(t, s, tt.target)
		assert.Equal(t, tt.status, rec.Code, tt.target)
		assert.NotEmpty(t, decode[errorResponse](t, rec).Error)
	}
	assert.EqualValues(t, len(tests), metrics.QueriesFailed.Load())
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	get(t, s, "/api/v1/datasets/news/query")

	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "mediabias_queries_served_total 1"), rec.Body.String())
}

func TestSetEngine(t *testing.T) {
	s, _ := newTestServer(t)
	s.SetEngine(analytics.NewEngine(nil))

	rec := get(t, s, "/api/v1/datasets/news/query")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListenAndServeShutsDown(t *testing.T) {
	s, _ := newTestServer(t)
	s.cfg.API.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
