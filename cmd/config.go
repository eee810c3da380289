package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/alt-project/orchestrator/internal/output"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	Long: `Display the current orchestrator configuration.

Examples:
  orchestrator config                # Show all config
  orchestrator config --path         # Show config file path
  orchestrator config --json         # Output as JSON`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.Flags().Bool("path", false, "show config file path")
	configCmd.Flags().Bool("json", false, "output as JSON")
}

func runConfig(cmd *cobra.Command, args []string) error {
	printer := output.NewPrinter(cfg.Output.Colors)

	showPath, _ := cmd.Flags().GetBool("path")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if showPath {
		configFile := viper.ConfigFileUsed()
		if configFile == "" {
			printer.Info("No config file found (using defaults)")
		} else {
			printer.Info("Config file: %s", configFile)
		}
		return nil
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}

	printer.Header("Current Configuration")

	table := output.NewTable([]string{"KEY", "VALUE"})
	table.AddRow([]string{"run.environment", cfg.Run.Environment})
	table.AddRow([]string{"run.parallel_limit", fmt.Sprintf("%d", cfg.Run.ParallelLimit)})
	table.AddRow([]string{"run.batch_pause", cfg.Run.BatchPause.String()})
	table.AddRow([]string{"run.dry_run", fmt.Sprintf("%v", cfg.Run.DryRun)})
	table.AddRow([]string{"run.skip_tests", fmt.Sprintf("%v", cfg.Run.SkipTests)})
	table.AddRow([]string{"run.enable_auto_rollback", fmt.Sprintf("%v", cfg.Run.EnableAutoRollback)})
	table.AddRow([]string{"run.enable_shared_resources", fmt.Sprintf("%v", cfg.Run.EnableSharedResources)})
	table.AddRow([]string{"run.state_dir", cfg.Run.StateDir})
	table.AddRow([]string{"platform.wrangler_bin", cfg.Platform.WranglerBin})
	table.AddRow([]string{"platform.api_base_url", cfg.Platform.APIBaseURL})
	table.AddRow([]string{"platform.account_id configured", fmt.Sprintf("%v", cfg.Platform.AccountID != "")})
	table.AddRow([]string{"platform.api_token configured", fmt.Sprintf("%v", cfg.Platform.APIToken != "")})
	table.AddRow([]string{"backup.dir", cfg.Backup.Dir})
	table.AddRow([]string{"logging.level", cfg.Logging.Level})
	table.AddRow([]string{"logging.format", cfg.Logging.Format})
	table.AddRow([]string{"output.colors", fmt.Sprintf("%v", cfg.Output.Colors)})
	table.Render()

	if len(cfg.Portfolio) > 0 {
		fmt.Println()
		printer.Header("Portfolio Overrides")
		names := make([]string, 0, len(cfg.Portfolio))
		for name := range cfg.Portfolio {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			o := cfg.Portfolio[name]
			printer.Info("%s:", printer.Bold(name))
			if o.WorkerName != "" {
				printer.Print("    worker_name: %s", o.WorkerName)
			}
			if o.DatabaseName != "" {
				printer.Print("    database_name: %s", o.DatabaseName)
			}
			if len(o.Dependencies) > 0 {
				printer.Print("    dependencies: %v", o.Dependencies)
			}
		}
	}

	if cfg.RateLimitWarning() {
		fmt.Println()
		printer.Warning("parallel_limit %d exceeds the recommended rate-limit threshold", cfg.Run.ParallelLimit)
	}

	printer.PrintHints("config")
	return nil
}
