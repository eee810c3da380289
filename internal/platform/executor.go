// Package platform implements the Platform Adapter: the boundary
// between the orchestrator core and the external systems it deploys
// against (the Workers CLI and the managed-database/secrets HTTP API).
package platform

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Executor runs the platform CLI binary (e.g. wrangler). Swappable so
// tests can substitute a fake without touching the real tool.
type Executor interface {
	Run(ctx context.Context, workDir string, args []string) (stdout, stderr string, err error)
}

// ShellExecutor shells out to a configured binary. Under dry-run it
// prints the command it would have run and returns immediately.
type ShellExecutor struct {
	binary string
	logger *slog.Logger
	dryRun bool
}

// NewShellExecutor constructs a ShellExecutor for the named binary.
func NewShellExecutor(binary string, logger *slog.Logger, dryRun bool) *ShellExecutor {
	return &ShellExecutor{binary: binary, logger: logger, dryRun: dryRun}
}

// Run executes the binary with args in workDir, capturing stdout/stderr.
func (e *ShellExecutor) Run(ctx context.Context, workDir string, args []string) (string, string, error) {
	e.logger.Debug("executing platform command",
		"binary", e.binary,
		"args", args,
		"workdir", workDir,
	)

	if e.dryRun {
		fmt.Printf("[dry-run] %s %s\n", e.binary, strings.Join(args, " "))
		return "", "", nil
	}

	cmd := exec.CommandContext(ctx, e.binary, args...)
	cmd.Dir = workDir
	cmd.Env = os.Environ()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		return stdout.String(), stderr.String(), fmt.Errorf("%s %s: %w: %s", e.binary, strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), stderr.String(), nil
}
