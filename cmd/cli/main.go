package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"medstat/adapters/excel"
	"medstat/adapters/postgres"
	"medstat/app"
	"medstat/domain/run"
	"medstat/internal/batch"
	"medstat/internal/config"
	"medstat/internal/ingest"
	"medstat/internal/logging"
	"medstat/internal/migration"
	"medstat/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "medstat-cli",
		Short: "Run MedStat analyses and data checks from the command line",
	}

	rootCmd.AddCommand(
		newListCmd(),
		newRunCmd(),
		newDescribeCmd(),
		newRunsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	return cfg, nil
}

func newRegistry(cfg *config.Config) *app.Registry {
	return app.NewRegistry(app.Options{
		LogisticMaxIter:   cfg.Analysis.LogisticMaxIter,
		LogisticTolerance: cfg.Analysis.LogisticTolerance,
		ROCMaxPoints:      cfg.Analysis.ROCMaxPoints,
	})
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the available analyses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tROUTE\tSUMMARY")
			for _, d := range newRegistry(cfg).Definitions() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.Route, d.Summary)
			}
			return w.Flush()
		},
	}
}

func newRunCmd() *cobra.Command {
	var inputFile string
	var record bool

	cmd := &cobra.Command{
		Use:   "run [analysis]",
		Short: "Run one analysis on a JSON input",
		Long: `Run one analysis on a JSON request body read from --file, or stdin when
the flag is omitted or "-". The input has the same shape as the HTTP body.

Example: medstat-cli run ttest --file groups.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd.InOrStdin(), inputFile)
			if err != nil {
				return err
			}
			return runAnalysis(cmd.Context(), cmd.OutOrStdout(), args[0], raw, record)
		},
	}

	cmd.Flags().StringVarP(&inputFile, "file", "f", "-", "JSON input file")
	cmd.Flags().BoolVar(&record, "record", false, "Record the run in the ledger (requires DATABASE_URL)")
	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return data, nil
}

func runAnalysis(ctx context.Context, out io.Writer, analysis string, raw []byte, record bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	registry := newRegistry(cfg)

	var ledger ports.RunLedger
	if record {
		db, err := connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		ledger = postgres.NewRunRepository(db)
	}

	executor := batch.NewExecutor(cfg.Batch.MaxConcurrency, cfg.Batch.MaxItems, registry.Cost, nil)
	service := app.NewAnalysisService(registry, executor, ledger, nil, nil)
	result, err := service.Run(ctx, app.SourceCLI, analysis, raw)
	if err != nil {
		return err
	}
	return printJSON(out, result)
}

func newDescribeCmd() *cobra.Command {
	var showData bool

	cmd := &cobra.Command{
		Use:   "describe [data-file]",
		Short: "Profile the columns of a CSV or Excel file",
		Long: `Read a CSV, .xlsx or .xlsm file and print its column summary: inferred
type, missing count, unique count and sample values.

Example: medstat-cli describe cohort.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open data file: %w", err)
			}
			defer f.Close()

			data := app.NewDataService(
				excel.NewDataReader(nil),
				nil,
				ingest.NewDescriber(cfg.Ingest.CategoricalThreshold, cfg.Ingest.PreviewRows),
				nil,
				nil,
			)
			summary, err := data.Upload(cmd.Context(), f.Name(), f)
			if err != nil {
				return err
			}
			if showData {
				return printJSON(cmd.OutOrStdout(), summary)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "%d rows, %d columns\n\n", summary.NRows, summary.NCols)
			fmt.Fprintln(w, "COLUMN\tDTYPE\tTYPE\tMISSING\tUNIQUE")
			for _, c := range summary.Columns {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", c.Name, c.DType, c.ColType, c.NMissing, c.NUnique)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&showData, "json", false, "Print the full summary as JSON, rows included")
	return cmd
}

func newRunsCmd() *cobra.Command {
	var analysis, status string
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent runs from the ledger",
		Long: `Show the most recent analysis runs recorded in the ledger. Requires
DATABASE_URL; the schema is created on first use.

Example: medstat-cli runs --analysis logistic --status failed --limit 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := postgres.NewRunRepository(db).Recent(cmd.Context(), ports.RunFilter{
				Analysis: analysis,
				Status:   run.Status(status),
				Limit:    limit,
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CREATED\tANALYSIS\tSOURCE\tSTATUS\tMS\tERROR")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					r.CreatedAt.Format("2006-01-02 15:04:05"), r.Analysis, r.Source, r.Status, r.DurationMS, r.ErrorCode)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&analysis, "analysis", "", "Only runs of this analysis")
	cmd.Flags().StringVar(&status, "status", "", "Only runs with this status: succeeded|rejected|failed")
	cmd.Flags().IntVar(&limit, "limit", postgres.DefaultRecentLimit, "Maximum runs to show")
	return cmd
}

func connect(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	if !cfg.LedgerEnabled() {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := migration.NewRunner().Run(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
