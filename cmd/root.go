// Package cmd contains all CLI commands for the orchestrator.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/alt-project/orchestrator/internal/config"
	"github.com/alt-project/orchestrator/internal/output"
)

var (
	cfgFile     string
	verbose     bool
	dryRun      bool
	quiet       bool
	colorFlag   string
	colorMode   output.ColorMode
	projectDir  string
	metricsAddr string
	cfg         *config.Config
	logger      *slog.Logger
	version     = "dev"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Multi-domain deployment orchestrator",
	Long: `orchestrator deploys and manages a portfolio of domains across a
serverless worker platform and its managed databases and secrets.

Each domain moves through a six-phase state machine (validation,
initialization, database, secrets, deployment, post-validation); the
portfolio deploys in dependency-respecting batches with bounded
parallelism and automatic rollback on failure.

Example usage:
  orchestrator deploy                  # Deploy the whole portfolio
  orchestrator deploy api.example.com  # Deploy a single domain
  orchestrator status                  # Show per-domain deployment status
  orchestrator list                    # List portfolio domains
  orchestrator rollback <run-id>       # Re-run a recorded rollback plan

Exit Codes:
  0  Success
  1  General error
  2  Usage error (invalid arguments)
  3  Invalid configuration
  4  Credential error
  5  Not found
  7  Timeout
  8  Validation error`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string for the CLI
func SetVersion(v string) {
	version = v
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .orchestrator.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "simulate every phase without side effects")
	rootCmd.PersistentFlags().StringVar(&projectDir, "project-dir", "", "project directory (default: auto-detect)")
	rootCmd.PersistentFlags().StringVar(&colorFlag, "color", "auto", "color output: always, auto, never")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address (e.g. :9090); disabled if empty")

	_ = viper.BindPFlag("run.dry_run", rootCmd.PersistentFlags().Lookup("dry-run"))
}

// initConfig reads in config file and ENV variables unless a
// configuration is already in place, then applies the persistent flags.
func initConfig() error {
	var err error

	if quiet && verbose {
		return fmt.Errorf("--quiet and --verbose are mutually exclusive")
	}

	colorMode, err = output.ParseColorMode(colorFlag)
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	if cfg == nil {
		cfg, err = config.Load(cfgFile, projectDir)
		if err != nil {
			return &output.CLIError{
				Summary:    "failed to load configuration",
				Detail:     err.Error(),
				Suggestion: "check .orchestrator.yaml syntax or use --config",
				ExitCode:   output.ExitInvalidConfig,
			}
		}
	}

	if dryRun {
		cfg.Run.DryRun = true
	}

	cfg.Output.Colors = output.ResolveColors(colorMode, cfg.Output.Colors)

	if cfg.Logging.Level == "debug" || verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	logger.Debug("configuration loaded",
		"environment", cfg.Run.Environment,
		"parallel_limit", cfg.Run.ParallelLimit,
		"portfolio_size", len(cfg.Portfolio),
	)

	return nil
}

// newPrinter creates a Printer using resolved color/quiet settings
func newPrinter() *output.Printer {
	return output.NewPrinterWithOptions(output.PrinterOptions{
		ColorMode:    colorMode,
		ConfigColors: cfg.Output.Colors,
		Quiet:        quiet,
	})
}
