package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alt-project/orchestrator/internal/output"
	"github.com/alt-project/orchestrator/internal/platform"
	"github.com/alt-project/orchestrator/internal/rollback"
	"github.com/alt-project/orchestrator/internal/store"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <orchestration-id>",
	Short: "Re-execute the rollback plan recorded for a past run",
	Long: `Rollback replays every domain's recorded rollback actions for a
previously persisted orchestration run, highest priority first
(delete-worker, then delete-secret, then delete-database, then
restore-file, ties broken last-in-first-out).

Examples:
  orchestrator rollback run-a1b2c3`,
	Args: cobra.ExactArgs(1),
	RunE: runRollback,
}

func init() {
	rootCmd.AddCommand(rollbackCmd)
	rollbackCmd.Flags().Duration("timeout", 10*time.Minute, "overall rollback timeout")

	rollbackCmd.AddCommand(rollbackListCmd)
	rollbackListCmd.Flags().StringP("path", "p", "", "backup directory (default: backup.dir from config)")

	rollbackCmd.AddCommand(rollbackVerifyCmd)
	rollbackVerifyCmd.Flags().StringP("path", "p", "", "backup directory (default: backup.dir from config)")
}

var rollbackListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available state backups",
	Long: `List every state backup captured by create_state_backup, most
recent first, with file count and total size.

Examples:
  orchestrator rollback list`,
	RunE: runRollbackList,
}

func runRollbackList(cmd *cobra.Command, args []string) error {
	printer := newPrinter()
	backupDir := backupDirFlag(cmd)

	backups, err := rollback.ListBackups(backupDir)
	if err != nil {
		return &output.CLIError{
			Summary:  "failed listing backups",
			Detail:   err.Error(),
			ExitCode: output.ExitGeneral,
		}
	}
	if len(backups) == 0 {
		printer.Warning("no backups found in %s", backupDir)
		return nil
	}

	table := output.NewTable([]string{"RUN ID", "CREATED", "FILES", "SIZE"})
	for _, b := range backups {
		table.AddRow([]string{
			b.RunID,
			b.CreatedAt.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d", b.FileCount),
			rollback.FormatSize(b.TotalSize),
		})
	}
	table.Render()
	return nil
}

var rollbackVerifyCmd = &cobra.Command{
	Use:   "verify <run-id>",
	Short: "Verify a state backup's file checksums",
	Long: `Verify recomputes the checksum of every file a state backup
captured and confirms it still matches the recorded manifest.

Examples:
  orchestrator rollback verify run-a1b2c3`,
	Args: cobra.ExactArgs(1),
	RunE: runRollbackVerify,
}

func runRollbackVerify(cmd *cobra.Command, args []string) error {
	printer := newPrinter()
	runID := args[0]
	backupDir := backupDirFlag(cmd)

	manifestPath := fmt.Sprintf("%s/configs/%s/%s", backupDir, runID, rollback.ManifestFilename)
	manifest, err := rollback.LoadManifest(manifestPath)
	if err != nil {
		return &output.CLIError{
			Summary:  fmt.Sprintf("backup %q not found", runID),
			Detail:   err.Error(),
			ExitCode: output.ExitNotFound,
		}
	}

	if err := manifest.Verify(); err != nil {
		return &output.CLIError{
			Summary:  fmt.Sprintf("backup %q failed verification", runID),
			Detail:   err.Error(),
			ExitCode: output.ExitGeneral,
		}
	}

	printer.Success("backup %s verified: %d file(s) match their recorded checksums", runID, len(manifest.Files))
	return nil
}

func backupDirFlag(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("path"); p != "" {
		return p
	}
	return cfg.Backup.Dir
}

func runRollback(cmd *cobra.Command, args []string) error {
	printer := newPrinter()
	orchestrationID := args[0]

	summary, err := store.Load(cfg.Run.StateDir, orchestrationID)
	if err != nil {
		return &output.CLIError{
			Summary:  fmt.Sprintf("run %q not found", orchestrationID),
			Detail:   err.Error(),
			ExitCode: output.ExitNotFound,
		}
	}

	plan := rollback.NewPlan()
	for _, ds := range summary.DomainStates {
		for _, a := range ds.RollbackActions {
			plan.Add(a)
		}
	}

	exec := platform.NewShellExecutor(cfg.Platform.WranglerBin, logger, cfg.Run.DryRun)
	adapter := platform.NewCloudflareAdapter(exec, platform.CloudflareAdapterConfig{
		BaseURL:   cfg.Platform.APIBaseURL,
		AccountID: cfg.Platform.AccountID,
		APIToken:  cfg.Platform.APIToken,
		Logger:    logger,
	})

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	printer.Header(fmt.Sprintf("Rolling Back %s", orchestrationID))
	report := rollback.Execute(ctx, orchestrationID+"-manual", plan, adapter, cfg.Run.DryRun)

	for _, o := range report.Successful {
		printer.Success("%s: %s", o.Action.Type, o.Action.Description)
	}
	for _, o := range report.Failed {
		printer.Error("%s: %s (%s)", o.Action.Type, o.Action.Description, o.Error)
	}
	for _, o := range report.Skipped {
		printer.Warning("skipped %s: %s", o.Action.Type, o.Action.Description)
	}

	printer.Info(report.Summary)
	printer.PrintHints("rollback")
	if len(report.Failed) > 0 {
		return &output.CLIError{
			Summary:  fmt.Sprintf("%d rollback action(s) failed", len(report.Failed)),
			ExitCode: output.ExitGeneral,
		}
	}
	return nil
}
