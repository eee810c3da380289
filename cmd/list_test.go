package cmd

import (
	"bytes"
	"testing"

	"github.com/alt-project/orchestrator/internal/config"
)

func setupListTest(t *testing.T) {
	t.Helper()
	cfg = &config.Config{
		Output:  config.OutputConfig{Colors: false},
		Logging: config.LoggingConfig{Level: "info", Format: "text"},
		Run:     config.RunConfig{Environment: "production"},
		Portfolio: config.PortfolioConfig{
			"shared-db.example.com": {},
			"api.example.com":       {Dependencies: []string{"shared-db.example.com"}},
			"admin.example.com":     {Dependencies: []string{"shared-db.example.com"}},
		},
	}
	dryRun = false
	quiet = false
	listCmd.Flags().Set("deps", "false")
	listCmd.Flags().Set("json", "false")
}

func TestList_Default(t *testing.T) {
	setupListTest(t)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"list"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("list command failed: %v", err)
	}
}

func TestList_Deps(t *testing.T) {
	setupListTest(t)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"list", "--deps"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("list --deps failed: %v", err)
	}
}

func TestList_JSON(t *testing.T) {
	setupListTest(t)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"list", "--json"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("list --json failed: %v", err)
	}
}
