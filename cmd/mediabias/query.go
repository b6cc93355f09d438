package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/mediabias/internal/analytics"
	"github.com/IshaanNene/mediabias/internal/api"
	"github.com/IshaanNene/mediabias/internal/runner"
)

// queryCmd answers one query from the aggregated tables on disk.
func queryCmd() *cobra.Command {
	var (
		mode       string
		unit       string
		publishers []string
		parties    []string
		since      string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query aggregated mention counts",
		Long: `Query aggregated mention counts of one dataset (--dataset, default the
first configured one).

Modes:
  totals      summed counts per party
  percentage  share of each party in the summed counts
  comparison  observed share next to the configured reference share
  timeseries  one row per period, smoothed over the rolling window

Without --publisher every publisher is included; without --party every
tracked party is.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(false)
			if err != nil {
				return err
			}
			defer a.close()

			names := a.datasets()
			if len(names) == 0 {
				return fmt.Errorf("no datasets configured")
			}
			name := names[0]

			engine, err := a.runner.Engine()
			if err != nil {
				return err
			}

			q := analytics.Query{
				Mode:       analytics.Mode(mode),
				Unit:       analytics.Unit(unit),
				Publishers: []string{analytics.GroupAll},
				Parties:    engine.Parties(),
			}
			if cmd.Flags().Changed("publisher") {
				q.Publishers = publishers
			}
			if cmd.Flags().Changed("party") {
				q.Parties = parties
			}
			if since != "" {
				q.Since, err = time.Parse(time.DateOnly, since)
				if err != nil {
					return fmt.Errorf("--since must be YYYY-MM-DD: %w", err)
				}
			}

			res, err := engine.Query(name, q)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			return printResult(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", string(analytics.ModeTotals), "totals, percentage, comparison or timeseries")
	cmd.Flags().StringVarP(&unit, "unit", "u", string(analytics.UnitAbsolute), "absolute or percent")
	cmd.Flags().StringSliceVarP(&publishers, "publisher", "p", nil, "publishers to include (repeatable, comma separated)")
	cmd.Flags().StringSliceVar(&parties, "party", nil, "parties to include (repeatable, comma separated)")
	cmd.Flags().StringVar(&since, "since", "", "earliest period start, YYYY-MM-DD (default: the dataset's since)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")

	return cmd
}

// printResult renders res as an aligned table with one column per party.
func printResult(w io.Writer, res *analytics.Result) error {
	if res.Empty {
		_, err := fmt.Fprintln(w, "no publishers or parties selected")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "%s\t%s\t\n", "series", strings.Join(res.Parties, "\t"))

	format := "%.0f"
	if res.Unit == analytics.UnitPercent || res.Mode == analytics.ModeTimeseries {
		format = "%.2f"
	}
	for _, row := range res.Rows {
		label := string(row.Series)
		if row.Label != "" {
			label = row.Label
		}
		cells := make([]string, len(res.Parties))
		for i, p := range res.Parties {
			if v, ok := row.Value(p); ok {
				cells[i] = fmt.Sprintf(format, v)
			} else {
				cells[i] = "-"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t\n", label, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

// serveCmd serves the query API until interrupted.
func serveCmd() *cobra.Command {
	var reload time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(false)
			if err != nil {
				return err
			}
			defer a.close()

			engine, err := a.runner.Engine()
			if err != nil {
				return err
			}
			srv := api.NewServer(a.cfg, engine, a.metrics, a.logger)

			ctx, stop := signalContext()
			defer stop()

			if reload > 0 {
				go reloadEngine(ctx, srv, a.runner, reload, a.logger)
			}
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().DurationVar(&reload, "reload", 0, "reload the aggregated tables at this interval (0 disables)")
	return cmd
}

func reloadEngine(ctx context.Context, srv *api.Server, r *runner.Runner, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			engine, err := r.Engine()
			if err != nil {
				logger.Warn("reloading aggregated tables failed, keeping previous", "error", err)
				continue
			}
			srv.SetEngine(engine)
			logger.Debug("aggregated tables reloaded")
		}
	}
}
