package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alt-project/orchestrator/internal/output"
	"github.com/alt-project/orchestrator/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status [orchestration-id]",
	Short: "Show the status of the most recent (or a named) deployment run",
	Long: `Display per-domain deployment status from the persisted run state.

Examples:
  orchestrator status                  # Show the latest run
  orchestrator status run-a1b2c3       # Show a specific run by ID
  orchestrator status --json           # Output as JSON`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("json", false, "output as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	var summary store.RunSummary
	var err error
	if len(args) == 1 {
		summary, err = store.Load(cfg.Run.StateDir, args[0])
	} else {
		summary, err = store.LoadLatest(cfg.Run.StateDir)
	}
	if err != nil {
		return &output.CLIError{
			Summary:    "no deployment run found",
			Detail:     err.Error(),
			Suggestion: "run 'orchestrator deploy' first",
			ExitCode:   output.ExitNotFound,
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	return printStatusTable(summary)
}

func printStatusTable(summary store.RunSummary) error {
	printer := output.NewPrinter(cfg.Output.Colors)

	printer.Header(fmt.Sprintf("Run %s (%s)", summary.OrchestrationID, summary.Environment))

	table := output.NewTable([]string{"DOMAIN", "STATUS", "PHASE", "WORKER URL"})
	for name, ds := range summary.DomainStates {
		badge := printer.StatusBadge(statusBadgeKey(string(ds.Status)))
		table.AddRow([]string{name, badge + " " + string(ds.Status), ds.Phase, ds.WorkerURL})
	}
	table.Render()

	printer.Info("total: %d  completed: %d  failed: %d",
		summary.Summary.Total, summary.Summary.Completed, summary.Summary.Failed)
	printer.PrintHints("status")

	if summary.Summary.Failed > 0 {
		return &output.CLIError{
			Summary:  fmt.Sprintf("%d domain(s) failed in run %s", summary.Summary.Failed, summary.OrchestrationID),
			ExitCode: output.ExitGeneral,
		}
	}
	return nil
}

func statusBadgeKey(status string) string {
	switch status {
	case "completed":
		return "running"
	case "completed_with_warnings":
		return "restarting"
	case "failed":
		return "exited"
	default:
		return "starting"
	}
}
