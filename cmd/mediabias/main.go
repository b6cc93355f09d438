package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/mediabias/internal/config"
	"github.com/IshaanNene/mediabias/internal/fetcher"
	"github.com/IshaanNene/mediabias/internal/logging"
	"github.com/IshaanNene/mediabias/internal/observability"
	"github.com/IshaanNene/mediabias/internal/runner"
)

var (
	cfgFile string
	verbose bool
	dataset string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mediabias",
		Short: "Track how often news outlets and talk shows mention political parties",
		Long: `mediabias crawls configured news sites and talk-show guest lists, counts
party mentions per document, aggregates them per publisher and period, and
answers totals, percentage, comparison and timeseries queries.

Stages:
  crawl      fetch new documents into the document store
  count      derive the mention table from the document store
  aggregate  derive the aggregated table from the mention table
  run        all three stages in order`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&dataset, "dataset", "d", "", "dataset to operate on (default: all configured datasets)")

	rootCmd.AddCommand(stageCmd(runner.StageCrawl, "Fetch new documents into the document store"))
	rootCmd.AddCommand(stageCmd(runner.StageCount, "Count party mentions per stored document"))
	rootCmd.AddCommand(stageCmd(runner.StageAggregate, "Aggregate mention counts per publisher and period"))
	rootCmd.AddCommand(stageCmd("run", "Run crawl, count and aggregate in order"))
	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles what every subcommand needs.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	runner  *runner.Runner
	fetcher fetcher.Fetcher
}

// setup loads and validates the configuration. withFetcher builds the
// fetchers the configured publishers need.
func setup(withFetcher bool) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.Logging, verbose)
	metrics := observability.NewMetrics(logger)

	a := &app{cfg: cfg, logger: logger, metrics: metrics}
	if withFetcher {
		if err := config.Validate(cfg); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		f, err := newFetcher(cfg, logger)
		if err != nil {
			return nil, err
		}
		a.fetcher = f
	}

	r, err := runner.New(cfg, a.fetcher, metrics, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a.runner = r
	return a, nil
}

func (a *app) close() {
	if a.fetcher != nil {
		if err := a.fetcher.Close(); err != nil {
			a.logger.Warn("closing fetcher", "error", err)
		}
	}
}

// datasets returns the datasets selected by --dataset.
func (a *app) datasets() []string {
	if dataset != "" {
		return []string{dataset}
	}
	names := make([]string, len(a.cfg.Datasets))
	for i, d := range a.cfg.Datasets {
		names[i] = d.Name
	}
	return names
}

// newFetcher registers the HTTP fetcher, plus the browser fetcher when the
// default or any publisher asks for it.
func newFetcher(cfg *config.Config, logger *slog.Logger) (fetcher.Fetcher, error) {
	fetchers := []fetcher.Fetcher{fetcher.NewHTTPFetcher(cfg, logger)}

	needBrowser := cfg.Fetcher.Type == "browser"
	for _, p := range cfg.Publishers {
		if p.Fetcher == "browser" {
			needBrowser = true
		}
	}
	if needBrowser {
		bf, err := fetcher.NewBrowserFetcher(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create browser fetcher: %w", err)
		}
		fetchers = append(fetchers, bf)
	}
	return fetcher.NewRouter(cfg.Fetcher.Type, fetchers...), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mediabias %s\n", config.Version)
		},
	}
}

// configCmd prints the effective configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			out, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return nil
		},
	}
}
