package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/mediabias/internal/runner"
	"github.com/IshaanNene/mediabias/internal/types"
)

// stageCmd creates a subcommand running one stage, or all of them for
// "run", over the selected datasets.
func stageCmd(stage, short string) *cobra.Command {
	return &cobra.Command{
		Use:   stage,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			needsFetcher := stage == runner.StageCrawl || stage == "run"
			a, err := setup(needsFetcher)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signalContext()
			defer stop()

			start := time.Now()
			var failed bool
			for _, name := range a.datasets() {
				for _, o := range runStage(ctx, a.runner, stage, name) {
					fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", name, o)
					if o.Status == types.StatusAborted {
						failed = true
					}
				}
				if ctx.Err() != nil {
					break
				}
			}
			a.metrics.LogSummary()
			a.logger.Info("finished", "command", stage, "elapsed", time.Since(start).Round(time.Millisecond))

			if failed {
				return fmt.Errorf("%s: one or more stages aborted", stage)
			}
			return nil
		},
	}
}

func runStage(ctx context.Context, r *runner.Runner, stage, dataset string) []types.Outcome {
	switch stage {
	case runner.StageCrawl:
		return []types.Outcome{r.Crawl(ctx, dataset)}
	case runner.StageCount:
		return []types.Outcome{r.Count(ctx, dataset)}
	case runner.StageAggregate:
		return []types.Outcome{r.Aggregate(ctx, dataset)}
	default:
		return r.Run(ctx, dataset)
	}
}
