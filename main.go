package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"licence-trends/config"
	"licence-trends/metrics"
	"licence-trends/utils"
)

var (
	verbose bool
	envFile string

	// Set by PersistentPreRunE for every subcommand.
	app *App
)

var rootCmd = &cobra.Command{
	Use:   "licences",
	Short: "Business licence crisis analysis",
	Long: `Fetches the City business-licence extracts, reconciles their schemas and
issue dates into one canonical table, and estimates how licence issuance
responds to macroeconomic crisis windows.

Typical flow:
  licences fetch     download the raw extracts into RAW_DIR
  licences run       clean + analyze, writing every artifact to CLEANED_DIR`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(envFile)
		if err != nil {
			return err
		}
		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		logger, err := utils.NewLogger(level, cfg.LogDevelopment)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		app = NewApp(cfg, logger, metrics.New())
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if app == nil {
			return nil
		}
		defer app.logger.Sync()
		return app.WriteMetrics()
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the raw licence extracts from the open-data API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Fetch(cmd.Context())
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Normalize the raw extracts and write the merged licence table",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, err := app.Clean(cmd.Context())
		return err
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Aggregate, estimate crisis impacts and forecast from the merged table",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Analyze(cmd.Context())
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Clean and analyze in one pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Run(cmd.Context())
	},
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Print null counts, date coverage and year gaps without writing anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Diagnose(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file (default ./.env)")

	rootCmd.AddCommand(fetchCmd, cleanCmd, analyzeCmd, runCmd, diagnoseCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
