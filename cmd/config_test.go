package cmd

import (
	"bytes"
	"testing"

	"github.com/alt-project/orchestrator/internal/config"
)

func setupConfigTest(t *testing.T) {
	t.Helper()
	cfg = &config.Config{
		Output:  config.OutputConfig{Colors: false},
		Logging: config.LoggingConfig{Level: "info", Format: "text"},
		Run:     config.RunConfig{Environment: "production", ParallelLimit: 3, StateDir: t.TempDir()},
		Portfolio: config.PortfolioConfig{
			"api.example.com": {WorkerName: "api-worker", Dependencies: []string{"shared-db.example.com"}},
		},
	}
	dryRun = false
	quiet = false
}

func TestConfig_Default(t *testing.T) {
	setupConfigTest(t)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"config"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("config command failed: %v", err)
	}
}

func TestConfig_JSON(t *testing.T) {
	setupConfigTest(t)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"config", "--json"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("config --json failed: %v", err)
	}
}

func TestConfig_Path(t *testing.T) {
	setupConfigTest(t)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"config", "--path"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("config --path failed: %v", err)
	}
}
