package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alt-project/orchestrator/internal/domain"
)

func TestManager_AddDatabaseBindingWritesActiveConfig(t *testing.T) {
	dir := t.TempDir()
	activePath := filepath.Join(dir, "wrangler.toml")
	mgr := NewManager(activePath, filepath.Join(dir, "customers"))
	mgr.SetAccountID("acct-123")
	mgr.EnsureEnvironment("production")

	if err := mgr.AddDatabaseBinding(context.Background(), "production", "DB", "api-example-com-production-db", "db-uuid-1"); err != nil {
		t.Fatalf("AddDatabaseBinding failed: %v", err)
	}

	data, err := os.ReadFile(activePath)
	if err != nil {
		t.Fatalf("expected active config to exist: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "api-example-com-production-db") {
		t.Errorf("active config missing database_name, got:\n%s", content)
	}
	if !strings.Contains(content, "db-uuid-1") {
		t.Errorf("active config missing database_id, got:\n%s", content)
	}
}

func TestManager_AddDatabaseBindingReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	activePath := filepath.Join(dir, "wrangler.toml")
	mgr := NewManager(activePath, filepath.Join(dir, "customers"))

	if err := mgr.AddDatabaseBinding(context.Background(), "production", "DB", "old-db", "old-id"); err != nil {
		t.Fatalf("AddDatabaseBinding failed: %v", err)
	}
	if err := mgr.AddDatabaseBinding(context.Background(), "production", "DB", "new-db", "new-id"); err != nil {
		t.Fatalf("AddDatabaseBinding failed: %v", err)
	}

	data, err := os.ReadFile(activePath)
	if err != nil {
		t.Fatalf("reading active config: %v", err)
	}
	content := string(data)
	if strings.Contains(content, "old-db") {
		t.Errorf("expected replaced binding to drop old-db, got:\n%s", content)
	}
	if !strings.Contains(content, "new-db") {
		t.Errorf("expected replaced binding to include new-db, got:\n%s", content)
	}
}

func TestManager_WriteBacksUpExistingActiveFile(t *testing.T) {
	dir := t.TempDir()
	activePath := filepath.Join(dir, "wrangler.toml")
	if err := os.WriteFile(activePath, []byte("name = \"original\"\n"), 0o644); err != nil {
		t.Fatalf("seeding active config: %v", err)
	}

	mgr := NewManager(activePath, filepath.Join(dir, "customers"))
	if err := mgr.AddDatabaseBinding(context.Background(), "production", "DB", "db-name", "db-id"); err != nil {
		t.Fatalf("AddDatabaseBinding failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading dir: %v", err)
	}
	var backups int
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".bak") {
			backups++
		}
	}
	if backups != 1 {
		t.Fatalf("expected exactly 1 backup file, got %d", backups)
	}
}

func TestManager_GenerateCustomerConfigAndCopy(t *testing.T) {
	dir := t.TempDir()
	activePath := filepath.Join(dir, "wrangler.toml")
	customerDir := filepath.Join(dir, "customers")
	mgr := NewManager(activePath, customerDir)
	mgr.SetAccountID("acct-123")

	path, err := mgr.GenerateCustomerConfig("api.example.com", CustomerConfigOptions{
		Environment: "production",
		WorkerName:  "api-example-com-data-service",
	})
	if err != nil {
		t.Fatalf("GenerateCustomerConfig failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected customer config file to exist: %v", err)
	}

	if err := mgr.CopyCustomerConfig(path); err != nil {
		t.Fatalf("CopyCustomerConfig failed: %v", err)
	}
	data, err := os.ReadFile(activePath)
	if err != nil {
		t.Fatalf("expected active config to exist after copy: %v", err)
	}
	if !strings.Contains(string(data), "api-example-com-data-service") {
		t.Errorf("active config missing worker name after copy, got:\n%s", string(data))
	}
}

func TestManager_PrepareCustomerConfigReturnsWorkingDir(t *testing.T) {
	dir := t.TempDir()
	activePath := filepath.Join(dir, "wrangler.toml")
	mgr := NewManager(activePath, filepath.Join(dir, "customers"))
	mgr.SetAccountID("acct-123")

	cfg := &domain.Config{Name: "api.example.com", WorkerName: "api-example-com-data-service"}
	workingDir, err := mgr.PrepareCustomerConfig(context.Background(), "api.example.com", "production", cfg)
	if err != nil {
		t.Fatalf("PrepareCustomerConfig failed: %v", err)
	}
	if workingDir != dir {
		t.Errorf("workingDir = %q, want %q", workingDir, dir)
	}
	if _, err := os.Stat(activePath); err != nil {
		t.Fatalf("expected active config to be written: %v", err)
	}
}
