package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/mediabias/internal/config"
	"github.com/IshaanNene/mediabias/internal/types"
)

func ptr(v float64) *float64 { return &v }

var (
	week1 = time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	week2 = time.Date(2025, 9, 8, 0, 0, 0, 0, time.UTC)
	week4 = time.Date(2025, 9, 22, 0, 0, 0, 0, time.UTC)
)

func weeklyConfig(window int) config.DatasetConfig {
	return config.DatasetConfig{
		Name:          "news",
		Frequency:     "weekly",
		WeekStart:     "monday",
		RollingWindow: window,
		LabelFormat:   time.DateOnly,
	}
}

func scenarioRecords() []types.PartyMentionRecord {
	return []types.PartyMentionRecord{
		{DocumentID: "u1", Publisher: "X", PeriodStart: week1, Counts: map[string]int{"A": 2, "B": 0}},
		{DocumentID: "u2", Publisher: "X", PeriodStart: week1.AddDate(0, 0, 3), Counts: map[string]int{"A": 1, "B": 0}},
		{DocumentID: "u3", Publisher: "X", PeriodStart: week2, Counts: map[string]int{"A": 1, "B": 4}},
	}
}

func scenarioEngine(t *testing.T, window int) *Engine {
	t.Helper()
	cfg := weeklyConfig(window)
	g, err := GranularityFor(cfg)
	require.NoError(t, err)

	ds, err := NewDataset(cfg, Aggregate(scenarioRecords(), g))
	require.NoError(t, err)

	parties := []config.PartyConfig{
		{Name: "A", Synonyms: []string{"a"}, ReferenceShare: ptr(0.33)},
		{Name: "B", Synonyms: []string{"b"}, ReferenceShare: ptr(0.19)},
		{Name: "C", Synonyms: []string{"c"}},
	}
	return NewEngine(parties, ds)
}

func query(mode Mode, unit Unit, parties ...string) Query {
	return Query{Publishers: []string{"X"}, Parties: parties, Mode: mode, Unit: unit}
}

func TestPeriodStart(t *testing.T) {
	wed := time.Date(2025, 9, 3, 23, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		g    Granularity
		want time.Time
	}{
		{"weekly monday", Granularity{Frequency: Weekly, WeekStart: time.Monday}, week1},
		{"weekly sunday", Granularity{Frequency: Weekly, WeekStart: time.Sunday}, time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC)},
		{"weekly wednesday", Granularity{Frequency: Weekly, WeekStart: time.Wednesday}, time.Date(2025, 9, 3, 0, 0, 0, 0, time.UTC)},
		{"monthly", Granularity{Frequency: Monthly}, time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.g.PeriodStart(wed))
		})
	}

	berlin := time.FixedZone("CEST", 2*3600)
	g := Granularity{Frequency: Weekly, WeekStart: time.Monday}
	assert.Equal(t, time.Date(2025, 8, 25, 0, 0, 0, 0, time.UTC),
		g.PeriodStart(time.Date(2025, 9, 1, 1, 0, 0, 0, berlin)), "periods use UTC dates")
}

func TestGranularityFor(t *testing.T) {
	g, err := GranularityFor(config.DatasetConfig{Name: "talkshows", Frequency: "monthly", RollingWindow: 3, LabelFormat: "2006-01"})
	require.NoError(t, err)
	assert.Equal(t, "2025-09", g.Label(time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), g.Next(time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)))

	_, err = GranularityFor(config.DatasetConfig{Name: "x", Frequency: "daily"})
	assert.True(t, types.IsFatal(err))

	_, err = GranularityFor(config.DatasetConfig{Name: "x", Frequency: "weekly", WeekStart: "someday"})
	assert.Error(t, err)
}

func TestAggregate(t *testing.T) {
	g, _ := GranularityFor(weeklyConfig(1))
	records := append(scenarioRecords(),
		types.PartyMentionRecord{DocumentID: "u4", Publisher: "W", PeriodStart: week2, Counts: map[string]int{"A": 5}},
	)

	buckets := Aggregate(records, g)
	require.Len(t, buckets, 3)

	assert.Equal(t, "X", buckets[0].GroupKey)
	assert.Equal(t, week1, buckets[0].PeriodStart)
	assert.Equal(t, 3, buckets[0].Count("A"))

	assert.Equal(t, "W", buckets[1].GroupKey, "same period sorts by publisher")
	assert.Equal(t, "X", buckets[2].GroupKey)
	assert.Equal(t, 4, buckets[2].Count("B"))
}

func TestTotalsScenario(t *testing.T) {
	e := scenarioEngine(t, 1)

	res, err := e.Query("news", query(ModeTotals, UnitAbsolute, "A", "B"))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, []string{"A", "B"}, res.Parties)
	assert.Equal(t, map[string]float64{"A": 4, "B": 4}, res.Rows[0].Values)
}

func TestTimeseriesScenario(t *testing.T) {
	e := scenarioEngine(t, 1)

	res, err := e.Query("news", query(ModeTimeseries, UnitAbsolute, "A", "B"))
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, map[string]float64{"A": 3, "B": 0}, res.Rows[0].Values)
	assert.Equal(t, map[string]float64{"A": 1, "B": 4}, res.Rows[1].Values)
	assert.Equal(t, "2025-09-08", res.Rows[1].Label)

	pct, err := e.Query("news", query(ModeTimeseries, UnitPercent, "A", "B"))
	require.NoError(t, err)
	assert.InDelta(t, 20, pct.Rows[1].Values["A"], 1e-9)
	assert.InDelta(t, 80, pct.Rows[1].Values["B"], 1e-9)
}

func TestComparisonScenario(t *testing.T) {
	e := scenarioEngine(t, 1)

	res, err := e.Query("news", query(ModeComparison, "", "A", "B", "C"))
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, UnitPercent, res.Unit)

	observed, reference := res.Rows[0], res.Rows[1]
	assert.Equal(t, SeriesObserved, observed.Series)
	assert.InDelta(t, 50, observed.Values["A"], 1e-9)
	assert.InDelta(t, 50, observed.Values["B"], 1e-9)
	assert.Contains(t, observed.Values, "C")

	assert.Equal(t, SeriesReference, reference.Series)
	assert.InDelta(t, 33, reference.Values["A"], 1e-9)
	assert.InDelta(t, 19, reference.Values["B"], 1e-9)
	_, ok := reference.Value("C")
	assert.False(t, ok, "parties without a share are omitted from the reference series")
}

func TestPercentageClosure(t *testing.T) {
	e := scenarioEngine(t, 2)

	res, err := e.Query("news", query(ModePercentage, "", "A", "B", "C"))
	require.NoError(t, err)
	var sum float64
	for _, v := range res.Rows[0].Values {
		sum += v
	}
	assert.InDelta(t, 100, sum, 1e-9)

	ts, err := e.Query("news", query(ModeTimeseries, UnitPercent, "A", "B"))
	require.NoError(t, err)
	for _, row := range ts.Rows {
		assert.InDelta(t, 100, row.Values["A"]+row.Values["B"], 1e-9, row.Label)
	}
}

func TestZeroTotalSafety(t *testing.T) {
	e := scenarioEngine(t, 1)

	res, err := e.Query("news", query(ModePercentage, "", "C"))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"C": 0}, res.Rows[0].Values)

	ts, err := e.Query("news", query(ModeTimeseries, UnitPercent, "C"))
	require.NoError(t, err)
	for _, row := range ts.Rows {
		v := row.Values["C"]
		assert.False(t, math.IsNaN(v))
		assert.Zero(t, v)
	}
}

func TestRollingWindow(t *testing.T) {
	e := scenarioEngine(t, 4)

	res, err := e.Query("news", query(ModeTimeseries, UnitAbsolute, "A", "B"))
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, map[string]float64{"A": 3, "B": 0}, res.Rows[0].Values, "first bucket is unsmoothed")
	assert.Equal(t, map[string]float64{"A": 2, "B": 2}, res.Rows[1].Values)
}

func TestTimeseriesFillsGaps(t *testing.T) {
	cfg := weeklyConfig(2)
	g, _ := GranularityFor(cfg)
	records := []types.PartyMentionRecord{
		{DocumentID: "u1", Publisher: "X", PeriodStart: week1, Counts: map[string]int{"A": 4}},
		{DocumentID: "u2", Publisher: "X", PeriodStart: week4, Counts: map[string]int{"A": 2}},
	}
	ds, err := NewDataset(cfg, Aggregate(records, g))
	require.NoError(t, err)
	e := NewEngine([]config.PartyConfig{{Name: "A"}}, ds)

	res, err := e.Query("news", Query{Publishers: []string{GroupAll}, Parties: []string{"A"}, Mode: ModeTimeseries})
	require.NoError(t, err)
	require.Len(t, res.Rows, 4)

	want := []float64{4, 2, 0, 1}
	for i, row := range res.Rows {
		assert.Equal(t, week1.AddDate(0, 0, 7*i), row.Period)
		assert.Equal(t, want[i], row.Values["A"], row.Label)
	}
}

func TestSince(t *testing.T) {
	e := scenarioEngine(t, 1)

	q := query(ModeTotals, UnitAbsolute, "A", "B")
	q.Since = week2
	res, err := e.Query("news", q)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"A": 1, "B": 4}, res.Rows[0].Values)
}

func TestEmptySelections(t *testing.T) {
	e := scenarioEngine(t, 1)

	res, err := e.Query("news", Query{Parties: []string{"A"}, Mode: ModeTotals})
	require.NoError(t, err)
	assert.True(t, res.Empty)
	assert.Empty(t, res.Rows)

	res, err = e.Query("news", Query{Publishers: []string{"X"}, Parties: []string{"Z"}, Mode: ModeTotals})
	require.NoError(t, err)
	assert.True(t, res.Empty)
}

func TestQueryErrors(t *testing.T) {
	e := scenarioEngine(t, 1)

	_, err := e.Query("radio", query(ModeTotals, "", "A"))
	assert.ErrorIs(t, err, types.ErrUnknownDataset)

	_, err = e.Query("news", query("median", "", "A"))
	assert.ErrorIs(t, err, types.ErrUnknownMode)

	_, err = e.Query("news", query(ModeTotals, "permille", "A"))
	assert.ErrorIs(t, err, types.ErrUnknownUnit)
}

func TestQueryIsDeterministic(t *testing.T) {
	e := scenarioEngine(t, 3)
	q := query(ModeTimeseries, UnitPercent, "A", "B", "C")

	first, err := e.Query("news", q)
	require.NoError(t, err)
	for range 10 {
		again, err := e.Query("news", q)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestDatasetSnapshotIsImmutable(t *testing.T) {
	g, _ := GranularityFor(weeklyConfig(1))
	buckets := Aggregate(scenarioRecords(), g)
	ds, err := NewDataset(weeklyConfig(1), buckets)
	require.NoError(t, err)

	buckets[0].Counts["A"] = 1000
	out := ds.Buckets()
	out[0].Counts["A"] = 2000

	assert.Equal(t, 3, ds.Buckets()[0].Count("A"))
	assert.Equal(t, []string{"X"}, ds.Publishers())
}
