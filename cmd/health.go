package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/alt-project/orchestrator/internal/coordinator"
	"github.com/alt-project/orchestrator/internal/output"
	"github.com/alt-project/orchestrator/internal/platform"
	"github.com/alt-project/orchestrator/internal/store"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the health of every deployed domain",
	Long: `Health fans out a /health check to every domain recorded in the
most recent deployment run and reports per-domain status.

Examples:
  orchestrator health`,
	RunE: runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().Duration("timeout", 15*time.Second, "per-domain health-check timeout")
}

func runHealth(cmd *cobra.Command, args []string) error {
	printer := newPrinter()

	summary, err := store.LoadLatest(cfg.Run.StateDir)
	if err != nil {
		return &output.CLIError{
			Summary:    "no deployment run found",
			Detail:     err.Error(),
			Suggestion: "run 'orchestrator deploy' first",
			ExitCode:   output.ExitNotFound,
		}
	}

	urls := make(map[string]string)
	for name, ds := range summary.DomainStates {
		if ds.WorkerURL != "" {
			urls[name] = ds.WorkerURL
		}
	}
	if len(urls) == 0 {
		printer.Warning("no domains with a recorded worker URL")
		return nil
	}

	exec := platform.NewShellExecutor(cfg.Platform.WranglerBin, logger, cfg.Run.DryRun)
	adapter := platform.NewCloudflareAdapter(exec, platform.CloudflareAdapterConfig{
		BaseURL:   cfg.Platform.APIBaseURL,
		AccountID: cfg.Platform.AccountID,
		APIToken:  cfg.Platform.APIToken,
		Logger:    logger,
	})

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(context.Background(), timeout+5*time.Second)
	defer cancel()

	results := coordinator.MonitorPortfolioHealth(ctx, adapter, urls, timeout, time.Now)
	sort.Slice(results, func(i, j int) bool { return results[i].Domain < results[j].Domain })

	table := output.NewTable([]string{"DOMAIN", "STATUS", "DETAIL"})
	var unhealthy int
	for _, r := range results {
		badge := "running"
		if r.Status != coordinator.HealthHealthy {
			badge = "exited"
			unhealthy++
		}
		table.AddRow([]string{r.Domain, printer.StatusBadge(badge) + " " + string(r.Status), r.Details})
	}
	table.Render()
	printer.PrintHints("health")

	if unhealthy > 0 {
		return &output.CLIError{
			Summary:  fmt.Sprintf("%d of %d domains unhealthy", unhealthy, len(results)),
			ExitCode: output.ExitGeneral,
		}
	}
	return nil
}
