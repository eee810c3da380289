package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alt-project/orchestrator/internal/audit"
	"github.com/alt-project/orchestrator/internal/config"
	"github.com/alt-project/orchestrator/internal/coordinator"
	"github.com/alt-project/orchestrator/internal/domain"
	orcherrors "github.com/alt-project/orchestrator/internal/errors"
	"github.com/alt-project/orchestrator/internal/metrics"
	"github.com/alt-project/orchestrator/internal/output"
	"github.com/alt-project/orchestrator/internal/phase"
	"github.com/alt-project/orchestrator/internal/platform"
	"github.com/alt-project/orchestrator/internal/scheduler"
	"github.com/alt-project/orchestrator/internal/secrets"
	"github.com/alt-project/orchestrator/internal/state"
	"github.com/alt-project/orchestrator/internal/store"
)

var deployCmd = &cobra.Command{
	Use:   "deploy [domains...]",
	Short: "Deploy one or more domains",
	Long: `Deploy runs every named domain through its six-phase state machine
(validation, initialization, database, secrets, deployment,
post-validation), batching the portfolio by dependency order with
bounded parallelism.

If no domains are named, every domain declared in the portfolio
configuration is deployed.

Examples:
  orchestrator deploy                    # Deploy the whole portfolio
  orchestrator deploy api.example.com    # Deploy a single domain
  orchestrator deploy --skip-tests       # Skip the post-validation phase`,
	Args: cobra.ArbitraryArgs,
	RunE: runDeploy,
}

func init() {
	rootCmd.AddCommand(deployCmd)
	deployCmd.Flags().Bool("skip-tests", false, "skip the post-validation health-check phase")
	deployCmd.Flags().Int("parallel", 0, "override configured parallel_limit (1-10)")
	deployCmd.Flags().Duration("timeout", 30*time.Minute, "overall deployment timeout")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	printer := newPrinter()

	domainNames := args
	if len(domainNames) == 0 {
		for name := range cfg.Portfolio {
			domainNames = append(domainNames, name)
		}
	}
	if len(domainNames) == 0 {
		return &output.CLIError{
			Summary:    "no domains to deploy",
			Suggestion: "add domains to the portfolio config or pass them as arguments",
			ExitCode:   output.ExitUsageError,
		}
	}

	parallelLimit := cfg.Run.ParallelLimit
	if n, _ := cmd.Flags().GetInt("parallel"); n != 0 {
		parallelLimit = n
	}
	if err := scheduler.ValidateParallelLimit(parallelLimit); err != nil {
		return &output.CLIError{
			Summary:    "invalid --parallel value",
			Detail:     err.Error(),
			ExitCode:   output.ExitUsageError,
		}
	}
	if parallelLimit > scheduler.RateLimitWarningThreshold {
		printer.Warning("parallel_limit %d exceeds %d; the platform API may rate-limit concurrent requests", parallelLimit, scheduler.RateLimitWarningThreshold)
	}

	skipTests, _ := cmd.Flags().GetBool("skip-tests")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	resolver := domain.NewResolver(domain.WithCredentialChecker(&config.CredentialChecker{Cfg: cfg}))
	cfgs := make(map[string]*domain.Config, len(domainNames))
	for _, name := range domainNames {
		override := domain.Overrides{}
		if o, ok := cfg.Portfolio[name]; ok {
			override = domain.Overrides{
				WorkerName:   o.WorkerName,
				DatabaseName: o.DatabaseName,
				ZoneID:       o.ZoneID,
				Dependencies: o.Dependencies,
			}
		}
		resolved, err := resolver.Resolve(name, override)
		if err != nil {
			return &output.CLIError{
				Summary:    fmt.Sprintf("invalid domain %q", name),
				Detail:     err.Error(),
				ExitCode:   output.ExitValidationError,
			}
		}
		cfgs[name] = resolved
	}

	mgr := state.NewManager()
	orchestrationID, err := mgr.InitRun(cfg.Run.Environment, cfg.Run.DryRun, parallelLimit, cfg.Run.BatchPause)
	if err != nil {
		return err
	}
	if err := mgr.InitDomainStates(cfgs); err != nil {
		return err
	}

	exec := platform.NewShellExecutor(cfg.Platform.WranglerBin, logger, cfg.Run.DryRun)
	adapter := platform.NewCloudflareAdapter(exec, platform.CloudflareAdapterConfig{
		BaseURL:   cfg.Platform.APIBaseURL,
		AccountID: cfg.Platform.AccountID,
		APIToken:  cfg.Platform.APIToken,
		Logger:    logger,
	})

	configMgr := config.NewManager(cfg.Platform.ConfigPath, cfg.Platform.CustomerDir)
	configMgr.SetAccountID(cfg.Platform.AccountID)
	configMgr.EnsureEnvironment(cfg.Run.Environment)
	secretGen := secrets.NewGenerator(adapter)

	machine := &phase.Machine{
		Resolver:       resolver,
		Adapter:        adapter,
		State:          mgr,
		SecretGen:      secretGen,
		ConfigWriter:   configMgr,
		DatabaseBinder: configMgr,
		Environment:    cfg.Run.Environment,
		DryRun:         cfg.Run.DryRun,
		SkipTests:      skipTests || cfg.Run.SkipTests,
	}

	dependencies := make(map[string][]string, len(cfgs))
	for name, c := range cfgs {
		dependencies[name] = c.Dependencies
	}

	coord := &coordinator.Coordinator{
		Resolver:              resolver,
		State:                 mgr,
		Adapter:               adapter,
		RunDomain:             machine.Run,
		ParallelLimit:         parallelLimit,
		BatchPause:            cfg.Run.BatchPause,
		EnableSharedResources: cfg.Run.EnableSharedResources,
		EnableAutoRollback:    cfg.Run.EnableAutoRollback,
		DryRun:                cfg.Run.DryRun,
	}

	printer.Header("Deploying Portfolio")
	printer.Info("orchestration: %s  environment: %s  domains: %d", orchestrationID, cfg.Run.Environment, len(domainNames))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if metricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, metricsAddr); err != nil {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
		printer.Info("metrics: http://%s/metrics", metricsAddr)
	}

	origins := make(coordinator.CORSOrigins, len(cfgs))
	for name := range cfgs {
		if o, ok := cfg.Portfolio[name]; ok && len(o.CORSOrigins) > 0 {
			origins[name] = o.CORSOrigins
		}
	}

	report, err := coord.CoordinatedDeploy(ctx, domainNames, dependencies, cfgs, origins, cfg.Run.Environment, prepareSharedDatabase(adapter, mgr))
	if err != nil {
		return &output.CLIError{
			Summary:    "portfolio deployment aborted",
			Detail:     err.Error(),
			ExitCode:   output.ExitCodeForKind(orcherrors.KindOf(err)),
		}
	}

	if err := mgr.FinishRun(); err != nil {
		printer.Warning("failed to finalize run: %v", err)
	}
	if snap, err := mgr.Snapshot(); err == nil {
		summary := store.FromSnapshot(snap, cfg.Run.EnableAutoRollback)
		if err := store.Save(cfg.Run.StateDir, summary); err != nil {
			printer.Warning("failed to persist run state: %v", err)
		}
	}

	for _, d := range report.Successes {
		printer.Success("%s deployed", d)
	}
	for _, f := range report.Failures {
		printer.Error("%s failed: %v", f.Domain, f.Err)
	}
	for _, w := range report.Warnings {
		printer.Warning("%s", w)
	}
	if report.RollbackReport != nil {
		printer.Warning("rolled back: %s", report.RollbackReport.Summary)
	}

	if len(report.Failures) > 0 {
		return &output.CLIError{
			Summary:  fmt.Sprintf("%d of %d domains failed", len(report.Failures), len(domainNames)),
			ExitCode: output.ExitGeneral,
		}
	}

	printer.Success("portfolio deployment complete")
	printer.PrintHints("deploy")
	return nil
}

// prepareSharedDatabase returns a coordinator.PrepareSharedResources
// callback that idempotently ensures the database named in a
// "<database>@<environment>" resource key exists, regardless of how
// many domains share it. Creation is guarded upstream by the
// coordinator's per-resource once-guard, so this runs at most once per
// shared database per deploy.
func prepareSharedDatabase(adapter platform.Adapter, mgr *state.Manager) func(ctx context.Context, resourceKey string) error {
	return func(ctx context.Context, resourceKey string) error {
		dbName, _, found := strings.Cut(resourceKey, "@")
		if !found || dbName == "" {
			return orcherrors.New(orcherrors.KindValidation, "malformed shared resource key %q", resourceKey)
		}

		exists, err := adapter.DatabaseExists(ctx, dbName)
		if err != nil {
			return err
		}
		if exists {
			mgr.AppendAudit(audit.EventDatabaseFound, audit.DomainAll, map[string]string{"database": dbName})
			return nil
		}

		if _, err := adapter.CreateDatabase(ctx, dbName); err != nil {
			return err
		}
		mgr.AppendAudit(audit.EventDatabaseCreated, audit.DomainAll, map[string]string{"database": dbName})
		return nil
	}
}
