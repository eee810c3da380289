package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alt-project/orchestrator/internal/config"
	"github.com/alt-project/orchestrator/internal/rollback"
)

func setupRollbackTest(t *testing.T, backupDir string) {
	t.Helper()
	cfg = &config.Config{
		Output:  config.OutputConfig{Colors: false},
		Logging: config.LoggingConfig{Level: "info", Format: "text"},
		Run:     config.RunConfig{Environment: "production"},
		Backup:  config.BackupConfig{Dir: backupDir},
	}
	dryRun = false
	quiet = false
	rollbackListCmd.Flags().Set("path", "")
	rollbackVerifyCmd.Flags().Set("path", "")
}

func TestRollbackList_NoBackups(t *testing.T) {
	setupRollbackTest(t, t.TempDir())

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"rollback", "list"})

	require.NoError(t, rootCmd.Execute())
}

func TestRollbackList_ShowsSeededBackup(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "wrangler.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("name = \"demo\"\n"), 0o644))

	backupDir := filepath.Join(dir, "backups")
	_, _, err := rollback.CreateStateBackup(backupDir, "run-a1b2c3", []string{cfgPath}, nil, rollback.BackupOptions{}, time.Now())
	require.NoError(t, err)

	setupRollbackTest(t, backupDir)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"rollback", "list"})

	require.NoError(t, rootCmd.Execute())
}

func TestRollbackVerify_SucceedsOnIntactBackup(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "wrangler.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("name = \"demo\"\n"), 0o644))

	backupDir := filepath.Join(dir, "backups")
	_, _, err := rollback.CreateStateBackup(backupDir, "run-a1b2c3", []string{cfgPath}, nil, rollback.BackupOptions{}, time.Now())
	require.NoError(t, err)

	setupRollbackTest(t, backupDir)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"rollback", "verify", "run-a1b2c3"})

	require.NoError(t, rootCmd.Execute())
}

func TestRollbackVerify_FailsOnUnknownRun(t *testing.T) {
	setupRollbackTest(t, t.TempDir())

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"rollback", "verify", "no-such-run"})

	require.Error(t, rootCmd.Execute())
}
