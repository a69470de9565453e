package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"slices"
	"text/tabwriter"

	"tariffmaster/internal/config"
	"tariffmaster/internal/db"
	"tariffmaster/internal/index"
	"tariffmaster/internal/loader"
	applog "tariffmaster/internal/log"
	"tariffmaster/internal/pipeline"
	"tariffmaster/internal/pricing"
	"tariffmaster/internal/store"
	"tariffmaster/models"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// app carries what every command needs once the root command has run.
type app struct {
	cfg   config.Config
	open  func(config.DatabaseConfig) (*gorm.DB, error)
	store *store.Store
}

func newApp() *app {
	return &app{open: db.Configure}
}

func (a *app) pipeline() *pipeline.Pipeline {
	return pipeline.New(a.store, pipeline.Config{
		SourceDir:     a.cfg.Pipeline.SourceDir,
		BatchSize:     a.cfg.Pipeline.BatchSize,
		Workers:       a.cfg.Pipeline.Workers,
		SkipUnchanged: a.cfg.Pipeline.SkipUnchanged,
	})
}

func newRootCmd(a *app) *cobra.Command {
	var (
		logLevel  string
		sourceDir string
	)

	root := &cobra.Command{
		Use:           "tariffmaster",
		Short:         "Load dm+d releases, resolve missing prices and build the search index",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			if sourceDir != "" {
				cfg.Pipeline.SourceDir = sourceDir
			}
			if err := applog.SetLevel(cfg.Logging.Level); err != nil {
				return err
			}
			applog.SetOutput(cmd.ErrOrStderr())

			database, err := a.open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			s, err := store.New(database)
			if err != nil {
				return err
			}
			a.cfg, a.store = cfg, s
			return nil
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error (default from LOG_LEVEL)")
	root.PersistentFlags().StringVar(&sourceDir, "dir", "", "Directory holding the release files (default from DMD_SOURCE_DIR)")

	root.AddCommand(
		newLoadCmd(a),
		newClassifyCmd(a),
		newPriceCmd(a),
		newIndexCmd(a),
		newRunCmd(a),
		newReportCmd(a),
	)
	return root
}

type loadOptions struct {
	rebuild     bool
	incremental bool
	rehash      bool
}

// mode is a full rebuild unless --incremental is given. --rebuild names the
// default explicitly and cannot be combined with --incremental.
func (o loadOptions) mode() loader.Mode {
	if o.incremental && !o.rebuild {
		return loader.ModeIncremental
	}
	return loader.ModeFullRebuild
}

func bindLoadFlags(cmd *cobra.Command, opts *loadOptions) {
	cmd.Flags().BoolVar(&opts.rebuild, "rebuild", false, "Clear the reference data and load every source (the default)")
	cmd.Flags().BoolVar(&opts.incremental, "incremental", false, "Upsert into the existing data instead of rebuilding it")
	cmd.Flags().BoolVar(&opts.rehash, "rehash", false, "Reload sources even when their fingerprint is unchanged")
	cmd.MarkFlagsMutuallyExclusive("rebuild", "incremental")
}

func (a *app) applyLoadOptions(opts loadOptions) {
	if opts.rehash {
		a.cfg.Pipeline.SkipUnchanged = false
	}
}

func newLoadCmd(a *app) *cobra.Command {
	var opts loadOptions

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load the release files into the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.applyLoadOptions(opts)
			report, err := a.pipeline().Load(cmd.Context(), opts.mode())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
	bindLoadFlags(cmd, &opts)
	return cmd
}

func newClassifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "classify",
		Short: "Label branded packs that are legitimately unpriced",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := a.pipeline().Classify(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
}

func priceMode(recalculate bool) pricing.Mode {
	if recalculate {
		return pricing.ModeRecalculateAll
	}
	return pricing.ModeFillMissing
}

func newPriceCmd(a *app) *cobra.Command {
	var recalculate bool

	cmd := &cobra.Command{
		Use:   "price",
		Short: "Infer prices for branded packs without a sourced price",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := a.pipeline().CalculatePrices(cmd.Context(), priceMode(recalculate))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().BoolVar(&recalculate, "recalculate", false, "Discard every estimate and infer them again")
	return cmd
}

func newIndexCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Rebuild the unified search index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := a.pipeline().RebuildSearchIndex(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
}

func newRunCmd(a *app) *cobra.Command {
	var (
		opts        loadOptions
		recalculate bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load, classify, price and index in one go",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.applyLoadOptions(opts)
			report, err := a.pipeline().Run(cmd.Context(), opts.mode(), priceMode(recalculate))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
	bindLoadFlags(cmd, &opts)
	cmd.Flags().BoolVar(&recalculate, "recalculate", false, "Discard every estimate and infer them again")
	return cmd
}

func newReportCmd(a *app) *cobra.Command {
	var runs int

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarise price resolution and recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.report(cmd.Context(), cmd.OutOrStdout(), runs)
		},
	}
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of recent ledger entries to show")
	return cmd
}

func (a *app) report(ctx context.Context, out io.Writer, runs int) error {
	analysis, err := pricing.Analyze(ctx, a.store)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Branded packs\t%d\n", analysis.Total)
	fmt.Fprintf(w, "Sourced prices\t%d\n", analysis.Initial)
	fmt.Fprintf(w, "Needs review\t%d\n", analysis.NeedsReview)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Status\tCount")
	for _, status := range sortedKeys(analysis.ByStatus) {
		fmt.Fprintf(w, "%s\t%d\n", status, analysis.ByStatus[status])
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Missing reason\tCount")
	for _, reason := range sortedKeys(analysis.ByReason) {
		fmt.Fprintf(w, "%s\t%d\n", reason, analysis.ByReason[reason])
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Method\tCount\tAvg confidence\tMin\tMax\tAvg price")
	for _, m := range analysis.Methods {
		fmt.Fprintf(w, "%s\t%d\t%.4f\t%.4f\t%.4f\t%s\n", m.Method, m.Count, m.AvgConfidence, m.MinConfidence, m.MaxConfidence, averagePrice(m.AvgPrice))
	}

	if runs > 0 {
		entries, err := a.store.Runs(ctx, runs)
		if err != nil {
			return err
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Run\tPhase\tMode\tStatus\tStarted")
		for _, run := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", run.ID, run.Phase, run.Mode, run.Status, run.StartedAt.Format("2006-01-02 15:04:05"))
		}
	}
	return w.Flush()
}

// averagePrice renders a mean in minor units the way the index shows prices.
func averagePrice(minor float64) string {
	return index.DisplayPrice(models.Ptr(int64(math.Round(minor))))
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
