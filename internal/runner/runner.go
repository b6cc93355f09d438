// Package runner orchestrates the crawl, count and aggregate stages of a
// dataset and reports one outcome per stage.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/IshaanNene/mediabias/internal/analytics"
	"github.com/IshaanNene/mediabias/internal/config"
	"github.com/IshaanNene/mediabias/internal/crawler"
	"github.com/IshaanNene/mediabias/internal/fetcher"
	"github.com/IshaanNene/mediabias/internal/mentions"
	"github.com/IshaanNene/mediabias/internal/observability"
	"github.com/IshaanNene/mediabias/internal/storage"
	"github.com/IshaanNene/mediabias/internal/types"
)

// Stage names as reported in outcomes.
const (
	StageCrawl     = "crawl"
	StageCount     = "count"
	StageAggregate = "aggregate"
)

// Runner executes pipeline stages. Each stage loads its input in full and
// replaces its output in full, so stages never share mutable state.
type Runner struct {
	cfg     *config.Config
	fetcher fetcher.Fetcher
	dict    *mentions.Dictionary
	counter *mentions.Counter
	paths   storage.Paths
	metrics *observability.Metrics
	runID   string
	logger  *slog.Logger
}

// New validates cfg and builds the synonym dictionary. Both failures are
// fatal configuration errors. f may be nil when no crawl stage will run.
func New(cfg *config.Config, f fetcher.Fetcher, metrics *observability.Metrics, logger *slog.Logger) (*Runner, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	dict, err := mentions.NewDictionary(cfg.Parties)
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = &observability.Metrics{}
	}

	runID := uuid.NewString()
	logger = logger.With("component", "runner", "run_id", runID)

	return &Runner{
		cfg:     cfg,
		fetcher: f,
		dict:    dict,
		counter: mentions.NewCounter(dict, logger),
		paths:   storage.NewPaths(cfg.Storage.Dir),
		metrics: metrics,
		runID:   runID,
		logger:  logger,
	}, nil
}

// RunID identifies this runner in logs.
func (r *Runner) RunID() string { return r.runID }

func (r *Runner) dataset(name string) (config.DatasetConfig, error) {
	ds, ok := r.cfg.Dataset(name)
	if !ok {
		return config.DatasetConfig{}, &types.ConfigError{
			Field: "dataset",
			Err:   fmt.Errorf("%w: %q", types.ErrUnknownDataset, name),
		}
	}
	return ds, nil
}

// Run executes crawl, count and aggregate in order. It stops after an
// aborted stage, and after a stage that found no input.
func (r *Runner) Run(ctx context.Context, dataset string) []types.Outcome {
	stages := []func(context.Context, string) types.Outcome{r.Crawl, r.Count, r.Aggregate}

	var outcomes []types.Outcome
	for _, stage := range stages {
		o := stage(ctx, dataset)
		outcomes = append(outcomes, o)
		r.logger.Info("stage finished", "dataset", dataset, "outcome", o.String())
		if o.Status == types.StatusAborted || o.Status == types.StatusNoInput {
			break
		}
	}
	return outcomes
}

// Crawl fetches new documents for dataset and appends them to its store.
// Nothing is stored when the crawl cycle aborts.
func (r *Runner) Crawl(ctx context.Context, dataset string) types.Outcome {
	ds, err := r.dataset(dataset)
	if err != nil {
		return types.Aborted(StageCrawl, err)
	}
	if r.fetcher == nil {
		return types.Aborted(StageCrawl, types.ErrNoFetcher)
	}

	store, err := storage.Open(ctx, r.cfg.Storage, dataset, r.logger)
	if err != nil {
		return types.Aborted(StageCrawl, err)
	}
	defer store.Close()

	existing, err := store.Load(ctx)
	if err != nil {
		return types.Aborted(StageCrawl, err)
	}

	c := crawler.New(r.cfg, r.fetcher, r.logger, crawler.WithMetrics(r.metrics))
	res, err := c.Crawl(ctx, ds, crawler.NewURLSet(existing))
	if err != nil {
		return types.Aborted(StageCrawl, err)
	}

	added, err := store.Append(ctx, res.Documents)
	if err != nil {
		return types.Aborted(StageCrawl, err)
	}
	r.metrics.DocumentsStored.Add(int64(added))

	r.logger.Info("crawl stored",
		"dataset", dataset,
		"backend", store.Name(),
		"new", added,
		"total", len(existing)+added,
	)
	return types.NewOutcome(StageCrawl, added, res.Stats.Skipped())
}

// Count derives the mention table of dataset from its document store.
func (r *Runner) Count(ctx context.Context, dataset string) types.Outcome {
	ds, err := r.dataset(dataset)
	if err != nil {
		return types.Aborted(StageCount, err)
	}
	g, err := analytics.GranularityFor(ds)
	if err != nil {
		return types.Aborted(StageCount, err)
	}

	store, err := storage.Open(ctx, r.cfg.Storage, dataset, r.logger)
	if err != nil {
		return types.Aborted(StageCount, err)
	}
	defer store.Close()

	docs, err := store.Load(ctx)
	if err != nil {
		return types.Aborted(StageCount, err)
	}
	if len(docs) == 0 {
		r.logger.Warn("no documents found, exiting", "dataset", dataset)
		return types.NoInput(StageCount)
	}

	records, skipped := r.counter.Records(docs, g)
	path := r.paths.Mentions(dataset)
	if err := storage.WriteMentions(path, r.dict.Parties(), records); err != nil {
		return types.Aborted(StageCount, &types.StorageError{Backend: "csv", Err: err})
	}
	r.metrics.RecordsCounted.Add(int64(len(records)))

	r.logger.Info("mention table written", "dataset", dataset, "path", path, "records", len(records))
	return types.NewOutcome(StageCount, len(records), skipped)
}

// Aggregate derives the aggregated table of dataset from its mention
// table.
func (r *Runner) Aggregate(ctx context.Context, dataset string) types.Outcome {
	ds, err := r.dataset(dataset)
	if err != nil {
		return types.Aborted(StageAggregate, err)
	}
	g, err := analytics.GranularityFor(ds)
	if err != nil {
		return types.Aborted(StageAggregate, err)
	}

	parties, records, err := storage.ReadMentions(r.paths.Mentions(dataset))
	if errors.Is(err, types.ErrNoInput) {
		r.logger.Warn("mention table not found, exiting", "dataset", dataset, "error", err)
		return types.NoInput(StageAggregate)
	}
	if err != nil {
		return types.Aborted(StageAggregate, err)
	}
	if len(records) == 0 {
		return types.NoInput(StageAggregate)
	}

	buckets := analytics.Aggregate(records, g)
	path := r.paths.Analysis(dataset)
	if err := storage.WriteAnalysis(path, parties, buckets); err != nil {
		return types.Aborted(StageAggregate, &types.StorageError{Backend: "csv", Err: err})
	}

	r.logger.Info("aggregated table written", "dataset", dataset, "path", path, "rows", len(buckets))
	return types.NewOutcome(StageAggregate, len(buckets), 0)
}

// Engine loads the aggregated table of every configured dataset. A
// dataset without a table is served empty.
func (r *Runner) Engine() (*analytics.Engine, error) {
	datasets := make([]*analytics.Dataset, 0, len(r.cfg.Datasets))
	for _, dc := range r.cfg.Datasets {
		_, buckets, err := storage.ReadAnalysis(r.paths.Analysis(dc.Name))
		if errors.Is(err, types.ErrNoInput) {
			r.logger.Warn("aggregated table not found, serving empty dataset", "dataset", dc.Name)
		} else if err != nil {
			return nil, err
		}

		ds, err := analytics.NewDataset(dc, buckets)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, ds)
	}
	return analytics.NewEngine(r.cfg.Parties, datasets...), nil
}
