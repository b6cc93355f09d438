package analytics

import (
	"fmt"
	"slices"
	"time"

	"github.com/IshaanNene/mediabias/internal/config"
	"github.com/IshaanNene/mediabias/internal/types"
)

// Mode selects the semantics of a query.
type Mode string

const (
	ModeTotals     Mode = "totals"
	ModePercentage Mode = "percentage"
	ModeComparison Mode = "comparison"
	ModeTimeseries Mode = "timeseries"
)

// Unit selects absolute counts or percent shares.
type Unit string

const (
	UnitAbsolute Unit = "absolute"
	UnitPercent  Unit = "percent"
)

// Series tags the rows of a comparison result.
const (
	SeriesObserved  = "observed"
	SeriesReference = "reference"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeTotals, ModePercentage, ModeComparison, ModeTimeseries:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", types.ErrUnknownMode, s)
}

// ParseUnit validates a unit name. The empty string means absolute.
func ParseUnit(s string) (Unit, error) {
	switch u := Unit(s); u {
	case "":
		return UnitAbsolute, nil
	case UnitAbsolute, UnitPercent:
		return u, nil
	}
	return "", fmt.Errorf("%w: %q", types.ErrUnknownUnit, s)
}

// Query is one request of the reporting surface. Publishers and Parties
// select what is included; an empty selection yields an empty result.
// A zero Since falls back to the dataset's lower bound.
type Query struct {
	Publishers []string
	Parties    []string
	Mode       Mode
	Unit       Unit
	Since      time.Time
}

// Row is one line of a result. Period is zero outside time series.
// Values holds one entry per included party, except in the reference
// series, which omits parties without a reference share.
type Row struct {
	Series string             `json:"series"`
	Period time.Time          `json:"period,omitzero"`
	Label  string             `json:"label,omitempty"`
	Values map[string]float64 `json:"values"`
}

// Value returns the value for party and whether it is present.
func (r Row) Value(party string) (float64, bool) {
	v, ok := r.Values[party]
	return v, ok
}

// Result is the table answering a Query.
type Result struct {
	Dataset string   `json:"dataset"`
	Mode    Mode     `json:"mode"`
	Unit    Unit     `json:"unit"`
	Parties []string `json:"parties"`
	Rows    []Row    `json:"rows"`
	Empty   bool     `json:"empty"`
}

// Dataset is an immutable snapshot of one dataset's aggregated table.
type Dataset struct {
	Name        string
	Granularity Granularity
	Since       time.Time
	buckets     []AggregationBucket
	publishers  []string
}

// NewDataset snapshots buckets under the configuration of cfg.
func NewDataset(cfg config.DatasetConfig, buckets []AggregationBucket) (*Dataset, error) {
	g, err := GranularityFor(cfg)
	if err != nil {
		return nil, err
	}
	since, err := cfg.SinceTime()
	if err != nil {
		return nil, &types.ConfigError{Field: "datasets." + cfg.Name + ".since", Err: err}
	}

	snap := cloneBuckets(buckets)
	sortBuckets(snap)

	var publishers []string
	for _, b := range snap {
		if !slices.Contains(publishers, b.GroupKey) {
			publishers = append(publishers, b.GroupKey)
		}
	}
	slices.Sort(publishers)

	return &Dataset{
		Name:        cfg.Name,
		Granularity: g,
		Since:       since,
		buckets:     snap,
		publishers:  publishers,
	}, nil
}

// Publishers returns the group keys present in the dataset, sorted.
func (d *Dataset) Publishers() []string {
	return slices.Clone(d.publishers)
}

// Buckets returns a copy of the aggregated table.
func (d *Dataset) Buckets() []AggregationBucket {
	return cloneBuckets(d.buckets)
}

// Engine answers queries over dataset snapshots. It holds no state that
// a query changes, so it is safe for concurrent use.
type Engine struct {
	parties   []string
	reference map[string]float64
	datasets  map[string]*Dataset
	order     []string
}

// NewEngine creates an Engine for parties. A party's ReferenceShare, when
// set, joins the reference series of comparison queries.
func NewEngine(parties []config.PartyConfig, datasets ...*Dataset) *Engine {
	e := &Engine{
		reference: make(map[string]float64),
		datasets:  make(map[string]*Dataset, len(datasets)),
	}
	for _, p := range parties {
		e.parties = append(e.parties, p.Name)
		if p.ReferenceShare != nil {
			e.reference[p.Name] = *p.ReferenceShare
		}
	}
	for _, d := range datasets {
		if _, dup := e.datasets[d.Name]; !dup {
			e.order = append(e.order, d.Name)
		}
		e.datasets[d.Name] = d
	}
	return e
}

// Datasets returns the dataset names in registration order.
func (e *Engine) Datasets() []string {
	return slices.Clone(e.order)
}

// Dataset returns the snapshot named name.
func (e *Engine) Dataset(name string) (*Dataset, error) {
	d, ok := e.datasets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownDataset, name)
	}
	return d, nil
}

// Parties returns the tracked parties in configuration order.
func (e *Engine) Parties() []string {
	return slices.Clone(e.parties)
}

// Query runs q against dataset. Unknown datasets, modes and units are
// errors; empty selections are not.
func (e *Engine) Query(dataset string, q Query) (*Result, error) {
	d, err := e.Dataset(dataset)
	if err != nil {
		return nil, err
	}
	mode, err := ParseMode(string(q.Mode))
	if err != nil {
		return nil, err
	}
	unit, err := ParseUnit(string(q.Unit))
	if err != nil {
		return nil, err
	}
	if mode == ModePercentage || mode == ModeComparison {
		unit = UnitPercent
	}

	res := &Result{Dataset: d.Name, Mode: mode, Unit: unit, Parties: e.selectParties(q.Parties), Rows: []Row{}}
	if len(q.Publishers) == 0 || len(res.Parties) == 0 {
		res.Empty = true
		return res, nil
	}

	since := q.Since
	if since.IsZero() {
		since = d.Since
	}
	buckets := d.selectBuckets(q.Publishers, since)

	switch mode {
	case ModeTotals, ModePercentage:
		res.Rows = append(res.Rows, totalsRow(buckets, res.Parties, unit))
	case ModeComparison:
		res.Rows = append(res.Rows, totalsRow(buckets, res.Parties, UnitPercent), e.referenceRow(res.Parties))
	case ModeTimeseries:
		res.Rows = timeseries(buckets, res.Parties, d.Granularity, unit)
	}
	return res, nil
}

// selectParties keeps the requested parties that are tracked, in
// configuration order.
func (e *Engine) selectParties(requested []string) []string {
	var out []string
	for _, p := range e.parties {
		if slices.Contains(requested, p) {
			out = append(out, p)
		}
	}
	return out
}

// selectBuckets filters by publisher and lower period bound. GroupAll
// selects every publisher.
func (d *Dataset) selectBuckets(publishers []string, since time.Time) []AggregationBucket {
	all := slices.Contains(publishers, GroupAll)
	var out []AggregationBucket
	for _, b := range d.buckets {
		if b.PeriodStart.Before(since) {
			continue
		}
		if !all && !slices.Contains(publishers, b.GroupKey) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func totalsRow(buckets []AggregationBucket, parties []string, unit Unit) Row {
	values := make(map[string]float64, len(parties))
	for _, p := range parties {
		values[p] = 0
	}
	for _, b := range buckets {
		for _, p := range parties {
			values[p] += float64(b.Count(p))
		}
	}
	if unit == UnitPercent {
		toPercent(values, parties)
	}
	return Row{Series: SeriesObserved, Values: values}
}

func (e *Engine) referenceRow(parties []string) Row {
	values := make(map[string]float64)
	for _, p := range parties {
		if share, ok := e.reference[p]; ok {
			values[p] = share * 100
		}
	}
	return Row{Series: SeriesReference, Values: values}
}

// timeseries sums buckets per period, fills gaps between the first and
// last period with zeros, then applies a trailing mean over the rolling
// window with min-periods 1. Percent values are shares of the smoothed
// cross-party total.
func timeseries(buckets []AggregationBucket, parties []string, g Granularity, unit Unit) []Row {
	if len(buckets) == 0 {
		return []Row{}
	}

	sums := make(map[time.Time]map[string]float64)
	first, last := buckets[0].PeriodStart, buckets[0].PeriodStart
	for _, b := range buckets {
		p := g.PeriodStart(b.PeriodStart)
		if p.Before(first) {
			first = p
		}
		if p.After(last) {
			last = p
		}
		if sums[p] == nil {
			sums[p] = make(map[string]float64, len(parties))
		}
		for _, party := range parties {
			sums[p][party] += float64(b.Count(party))
		}
	}

	var periods []time.Time
	for p := first; !p.After(last); p = g.Next(p) {
		periods = append(periods, p)
	}

	rows := make([]Row, len(periods))
	for i, p := range periods {
		lo := max(0, i-g.RollingWindow+1)
		values := make(map[string]float64, len(parties))
		for _, party := range parties {
			var sum float64
			for _, q := range periods[lo : i+1] {
				sum += sums[q][party]
			}
			values[party] = sum / float64(i+1-lo)
		}
		if unit == UnitPercent {
			toPercent(values, parties)
		}
		rows[i] = Row{Series: SeriesObserved, Period: p, Label: g.Label(p), Values: values}
	}
	return rows
}

// toPercent rescales values to shares of their sum, summing in party
// order so results are reproducible. A zero sum leaves every value at zero.
func toPercent(values map[string]float64, parties []string) {
	var total float64
	for _, p := range parties {
		total += values[p]
	}
	for _, p := range parties {
		if total == 0 {
			values[p] = 0
			continue
		}
		values[p] = values[p] / total * 100
	}
}
