package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"ModelRetrainer/internal/app"
	"ModelRetrainer/internal/config"
	"ModelRetrainer/internal/dataset"
	"ModelRetrainer/internal/domain"
	"ModelRetrainer/internal/infrastructure/importer"
	"ModelRetrainer/internal/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
	jsonOutput bool
}

type importOptions struct {
	format   string
	label    string
	features []string
}

func (o importOptions) options() importer.Options {
	return importer.Options{LabelColumn: o.label, FeatureColumns: o.features}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "modelretrainer",
		Short:        "Retrains and promotes a regression model as labeled data accumulates",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config (defaults to $RETRAINER_CONFIG)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print results as JSON")

	root.AddCommand(
		newRunCmd(opts),
		newServeCmd(opts),
		newAddCmd(opts),
		newIngestCmd(opts),
		newSimulateCmd(opts),
		newSeedCmd(opts),
		newStatusCmd(opts),
		newHistoryCmd(opts),
	)
	return root
}

// withApp loads config, opens the application and closes it after fn.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(*app.Application) error) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	logger := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging.Level)
	application, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := application.Close(); cerr != nil {
			logger.Error("close storage", "error", cerr)
		}
	}()
	return fn(application)
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the retraining pipeline once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app.Application) error {
				outcome, err := a.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				return printOutcome(cmd.OutOrStdout(), outcome, opts.jsonOutput)
			})
		},
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline on a schedule and expose /healthz, /status, /history and /metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app.Application) error {
				return a.Serve(cmd.Context())
			})
		},
	}
}

func newAddCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [--] <feature>... <label>",
		Short: "Add one labeled record, e.g. `add 5.5 61`",
		Long: "Add one labeled record. The last value is the label.\n\n" +
			"Values after the first one are never read as flags. When the first\n" +
			"value is negative, put -- before it: `add -- -1.5 3`.",
		Example: "  modelretrainer add 5.5 61\n  modelretrainer add -- -1.5 3",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := parseRecord(args)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(a *app.Application) error {
				status, err := a.AddRecord(cmd.Context(), record)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added record, %d pending\n", status.Pending)
				return nil
			})
		},
	}
	cmd.Flags().SetInterspersed(false)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w (negative values go after --, e.g. `add -- -1.5 3`)", err)
	})
	return cmd
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	imp := &importOptions{}
	cmd := &cobra.Command{
		Use:   "ingest <file.csv|file.html|url>",
		Short: "Import labeled records from a CSV file or HTML table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.Application) error {
				n, status, err := a.Ingest(cmd.Context(), args[0], imp.format, imp.options())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ingested %d records, %d pending\n", n, status.Pending)
				return nil
			})
		},
	}
	bindImportFlags(cmd, imp)
	return cmd
}

func newSimulateCmd(opts *rootOptions) *cobra.Command {
	var seed int64
	cmd := &cobra.Command{
		Use:   "simulate <count>",
		Short: "Add simulated study-hours records (score ~ 10 * hours + noise)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return fmt.Errorf("count must be a positive integer, got %q", args[0])
			}
			if !cmd.Flags().Changed("seed") {
				seed = time.Now().UnixNano()
			}
			records := dataset.Simulate(n, rand.New(rand.NewSource(seed)))
			return withApp(cmd, opts, func(a *app.Application) error {
				status, err := a.AddRecords(cmd.Context(), records)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %d simulated records, %d pending\n", n, status.Pending)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed for reproducible data")
	return cmd
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	imp := &importOptions{}
	cmd := &cobra.Command{
		Use:   "seed <file.csv|file.html|url>",
		Short: "Train and register version 1 from an initial dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.Application) error {
				entry, err := a.Seed(cmd.Context(), args[0], imp.format, imp.options())
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), entry)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "registered v%d (r2 %.4f, accuracy %.2f%%)\n",
					entry.Version, entry.Metrics.R2, entry.Metrics.AccuracyPct)
				return nil
			})
		},
	}
	bindImportFlags(cmd, imp)
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the pending counter and the production model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app.Application) error {
				report, err := a.Status(cmd.Context())
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), report)
				}
				printStatus(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List every promoted model version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app.Application) error {
				entries, err := a.History(cmd.Context())
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), entries)
				}
				printHistory(cmd.OutOrStdout(), entries)
				return nil
			})
		},
	}
}

func bindImportFlags(cmd *cobra.Command, imp *importOptions) {
	cmd.Flags().StringVar(&imp.format, "format", "", "input format (csv, html); detected from the extension by default")
	cmd.Flags().StringVar(&imp.label, "label", "", "label column (default \"score\", else the last column)")
	cmd.Flags().StringSliceVar(&imp.features, "features", nil, "feature columns (default: every non-label column)")
}

// parseRecord reads `<feature>... <label>` positional arguments.
func parseRecord(args []string) (domain.Record, error) {
	values := make([]float64, len(args))
	for i, arg := range args {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return domain.Record{}, fmt.Errorf("argument %d: %q is not a number", i+1, arg)
		}
		values[i] = v
	}
	last := len(values) - 1
	return domain.Record{Features: values[:last], Label: values[last]}, nil
}

func printOutcome(w io.Writer, outcome domain.PipelineOutcome, asJSON bool) error {
	if asJSON {
		type view struct {
			Kind      domain.OutcomeKind        `json:"outcome"`
			RunID     string                    `json:"run_id"`
			Pending   int                       `json:"pending"`
			Version   int                       `json:"version,omitempty"`
			Candidate *domain.EvaluationMetrics `json:"candidate,omitempty"`
			Incumbent *domain.EvaluationMetrics `json:"incumbent,omitempty"`
			Reason    string                    `json:"reason,omitempty"`
			NotifyErr string                    `json:"notify_error,omitempty"`
		}
		v := view{
			Kind:    outcome.Kind,
			RunID:   outcome.RunID,
			Pending: outcome.Pending,
			Version: outcome.Version,
			Reason:  outcome.Reason,
		}
		if outcome.Kind == domain.OutcomePromoted || outcome.Kind == domain.OutcomeRejected {
			v.Candidate, v.Incumbent = &outcome.Candidate, &outcome.Incumbent
		}
		if outcome.NotifyErr != nil {
			v.NotifyErr = outcome.NotifyErr.Error()
		}
		return writeJSON(w, v)
	}

	_, err := fmt.Fprintln(w, outcome.Summary())
	if err == nil && outcome.NotifyErr != nil {
		_, err = fmt.Fprintf(w, "warning: outcome was not published: %v\n", outcome.NotifyErr)
	}
	return err
}

func printStatus(w io.Writer, report app.StatusReport) {
	ds := report.Dataset
	fmt.Fprintf(w, "pending:   %d/%d (%.1f%%)\n", ds.Pending, report.Threshold, 100*float64(ds.Pending)/float64(report.Threshold))
	fmt.Fprintf(w, "total:     %d\n", ds.Total)
	if ds.LastTrained != nil {
		fmt.Fprintf(w, "trained:   %s\n", ds.LastTrained.Format(time.RFC3339))
	}
	if report.Production == nil {
		fmt.Fprintln(w, "model:     none (run `seed` first)")
	} else {
		fmt.Fprintf(w, "model:     v%d r2 %.4f\n", report.Production.Version, report.Production.Metrics.R2)
	}
	if ds.Pending >= report.Threshold {
		fmt.Fprintln(w, "ready for retraining")
	} else {
		fmt.Fprintf(w, "need %d more records\n", report.Threshold-ds.Pending)
	}
}

func printHistory(w io.Writer, entries []domain.RegistryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no versions registered")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "v%-4d r2 %.4f  mse %.4f  trained on %d  %s\n",
			e.Version, e.Metrics.R2, e.Metrics.MSE, e.Artifact.TrainedOn, e.CreatedAt.Format(time.RFC3339))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
