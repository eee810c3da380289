// Package phase implements the per-domain deployment phase state
// machine: the fixed six-phase sequence a single domain runs through,
// with critical/non-critical failure semantics and dry-run support.
package phase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alt-project/orchestrator/internal/audit"
	"github.com/alt-project/orchestrator/internal/domain"
	orcherrors "github.com/alt-project/orchestrator/internal/errors"
	"github.com/alt-project/orchestrator/internal/metrics"
	"github.com/alt-project/orchestrator/internal/platform"
	"github.com/alt-project/orchestrator/internal/rollback"
	"github.com/alt-project/orchestrator/internal/state"
)

// Name identifies one of the six fixed phases.
type Name string

const (
	Validation     Name = "validation"
	Initialization Name = "initialization"
	Database       Name = "database"
	Secrets        Name = "secrets"
	Deployment     Name = "deployment"
	PostValidation Name = "post-validation"
)

// Order is the fixed phase sequence. Extensible in principle, but the
// default and only sequence the core ships.
var Order = []Name{Validation, Initialization, Database, Secrets, Deployment, PostValidation}

var critical = map[Name]bool{
	Validation:     true,
	Initialization: true,
	Database:       false,
	Secrets:        false,
	Deployment:     true,
	PostValidation: false,
}

// IsCritical reports whether a phase failure aborts the domain's deployment.
func IsCritical(n Name) bool { return critical[n] }

const dryRunDelay = 100 * time.Millisecond

// Validator performs extra domain-specific validation beyond the
// Domain Resolver's format/prerequisite checks.
type Validator interface {
	Validate(ctx context.Context, domainName string) (valid bool, errs []string)
}

// ConfigValidator checks the project configuration for a domain before
// deployment, distinguishing warnings from fatal issues.
type ConfigValidator interface {
	ValidateConfig(ctx context.Context, domainName string) (warnings []string, fatal []string)
}

// SecretGenerator produces or reuses the secret set for a (domain,
// environment) pair. Values are never returned to the phase machine;
// only the generated key names are, for audit purposes.
type SecretGenerator interface {
	GenerateSecrets(ctx context.Context, domainName, environment string) (names []string, err error)
}

// ConfigWriter prepares the per-customer platform config file and
// returns the working directory DeployWorker should run from.
type ConfigWriter interface {
	PrepareCustomerConfig(ctx context.Context, domainName, environment string, cfg *domain.Config) (workingDir string, err error)
}

// DatabaseBinder writes a managed-database binding into the project's
// wrangler-style configuration for the given environment.
type DatabaseBinder interface {
	AddDatabaseBinding(ctx context.Context, environment, binding, databaseName, databaseID string) error
}

// Machine runs the fixed phase sequence for a single domain, threading
// state mutations through a state.Manager so that concurrent domains in
// the same batch never race on shared state.
type Machine struct {
	Resolver        *domain.Resolver
	Adapter         platform.Adapter
	State           *state.Manager
	Validator       Validator
	ConfigValidator ConfigValidator
	SecretGen       SecretGenerator
	ConfigWriter    ConfigWriter
	DatabaseBinder  DatabaseBinder

	Environment  string
	BindingName  string // default "DB"
	DryRun       bool
	SkipTests    bool
}

// Run executes all six phases for domainName in order. It returns a
// non-nil error only when a critical phase fails or the context is
// cancelled; non-critical failures are recorded on the DomainState and
// do not stop the sequence.
func (m *Machine) Run(ctx context.Context, domainName string) error {
	cfg, err := m.Resolver.Resolve(domainName, domain.Overrides{})
	if err != nil {
		return orcherrors.Wrap(orcherrors.KindValidation, err, "resolving domain config").WithDomain(domainName, "")
	}

	metrics.ActiveDeployments.Inc()
	defer metrics.ActiveDeployments.Dec()
	runStart := time.Now()

	started := false
	for _, p := range Order {
		if p == PostValidation && m.SkipTests {
			continue
		}

		select {
		case <-ctx.Done():
			metrics.PhasesCompleted.WithLabelValues(string(p), "cancelled").Inc()
			return m.recordDuration(domainName, runStart, m.abortCancelled(domainName, p))
		default:
		}

		if !started {
			if err := m.State.MarkStarted(domainName); err != nil {
				return m.recordDuration(domainName, runStart, err)
			}
			started = true
		}

		var warnings, errs []string
		var phaseErr error

		if m.DryRun {
			if !m.sleep(ctx, dryRunDelay) {
				metrics.PhasesCompleted.WithLabelValues(string(p), "cancelled").Inc()
				return m.recordDuration(domainName, runStart, m.abortCancelled(domainName, p))
			}
		} else {
			warnings, errs, phaseErr = m.runPhase(ctx, p, domainName, cfg)
		}

		success := phaseErr == nil && len(errs) == 0
		_ = m.State.RecordPhaseResult(domainName, string(p), state.PhaseResult{
			Success:  success,
			Errors:   errs,
			Warnings: warnings,
		})

		if phaseErr != nil && orcherrors.Cancelled(phaseErr) {
			metrics.PhasesCompleted.WithLabelValues(string(p), "cancelled").Inc()
			return m.recordDuration(domainName, runStart, m.abortCancelled(domainName, p))
		}

		if !success {
			metrics.PhasesCompleted.WithLabelValues(string(p), "failed").Inc()
			if IsCritical(p) {
				msg := phaseErrorMessage(phaseErr, errs)
				_ = m.State.UpdateDomain(domainName, state.DomainPatch{Phase: strPtr(string(p) + "-failed")})
				_ = m.State.MarkFailed(domainName, fmt.Errorf("%s", msg))
				return m.recordDuration(domainName, runStart, orcherrors.New(orcherrors.KindValidation, "%s", msg).WithDomain(domainName, string(p)))
			}
		} else {
			metrics.PhasesCompleted.WithLabelValues(string(p), "success").Inc()
		}

		_ = m.State.UpdateDomain(domainName, state.DomainPatch{Phase: strPtr(string(p) + "-complete")})
	}

	return m.recordDuration(domainName, runStart, m.finish(domainName))
}

// recordDuration observes the domain's total run time, labeling by
// whether Run is returning an error.
func (m *Machine) recordDuration(domainName string, start time.Time, err error) error {
	status := "success"
	if err != nil {
		status = "failed"
	}
	metrics.DomainDeployDuration.WithLabelValues(domainName, status).Observe(time.Since(start).Seconds())
	return err
}

func (m *Machine) finish(domainName string) error {
	snap, err := m.State.DomainSnapshot(domainName)
	if err != nil {
		return err
	}
	allOK := true
	for _, r := range snap.PhaseResults {
		if !r.Success {
			allOK = false
			break
		}
	}
	if allOK {
		return m.State.MarkCompleted(domainName)
	}
	return m.State.MarkCompletedWithWarnings(domainName)
}

func (m *Machine) abortCancelled(domainName string, p Name) error {
	cancelErr := orcherrors.New(orcherrors.KindCancelled, "cancelled during phase %s", p).WithDomain(domainName, string(p))
	_ = m.State.MarkFailed(domainName, fmt.Errorf("cancelled"))
	return cancelErr
}

func (m *Machine) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func phaseErrorMessage(phaseErr error, errs []string) string {
	if phaseErr != nil {
		return phaseErr.Error()
	}
	return strings.Join(errs, "; ")
}

func strPtr(s string) *string { return &s }

// runPhase dispatches to the concrete handler for p. Returns warnings,
// non-critical per-attempt errors, and a hard error for critical failures.
func (m *Machine) runPhase(ctx context.Context, p Name, domainName string, cfg *domain.Config) (warnings, errs []string, err error) {
	switch p {
	case Validation:
		return m.runValidation(ctx, domainName)
	case Initialization:
		return m.runInitialization(ctx, domainName)
	case Database:
		return m.runDatabase(ctx, domainName, cfg)
	case Secrets:
		return m.runSecrets(ctx, domainName)
	case Deployment:
		return m.runDeployment(ctx, domainName, cfg)
	case PostValidation:
		return m.runPostValidation(ctx, domainName)
	default:
		return nil, nil, orcherrors.New(orcherrors.KindValidation, "unknown phase %q", p)
	}
}

// runValidation runs the Domain Resolver's prerequisites check plus an
// optional user-supplied validator. Any invalid result is critical.
func (m *Machine) runValidation(ctx context.Context, domainName string) ([]string, []string, error) {
	result := m.Resolver.ValidatePrerequisites(domainName)
	if !result.Valid {
		return result.Warnings, result.Issues, orcherrors.New(orcherrors.KindValidation, "%s", strings.Join(result.Issues, "; "))
	}

	if m.Validator != nil {
		valid, errs := m.Validator.Validate(ctx, domainName)
		if !valid {
			return result.Warnings, errs, orcherrors.New(orcherrors.KindValidation, "%s", strings.Join(errs, "; "))
		}
	}
	return result.Warnings, nil, nil
}

// runInitialization runs the config validator; warnings are logged and
// audited but do not fail the phase, fatal issues do.
func (m *Machine) runInitialization(ctx context.Context, domainName string) ([]string, []string, error) {
	if m.ConfigValidator == nil {
		return nil, nil, nil
	}
	warnings, fatal := m.ConfigValidator.ValidateConfig(ctx, domainName)
	if len(warnings) > 0 {
		m.State.AppendAudit(audit.EventValidationWarnings, domainName, map[string]interface{}{"warnings": warnings})
	}
	if len(fatal) > 0 {
		return warnings, fatal, orcherrors.New(orcherrors.KindValidation, "%s", strings.Join(fatal, "; "))
	}
	return warnings, nil, nil
}

// runDatabase resolves the deterministic database name, ensures it
// exists, binds it, and applies migrations. Migration failure fails the
// phase non-critically and is also recorded as a warning.
func (m *Machine) runDatabase(ctx context.Context, domainName string, cfg *domain.Config) ([]string, []string, error) {
	dbName := cfg.DatabaseName
	if dbName == "" {
		dbName = fmt.Sprintf("%s-%s-db", cfg.CleanName, m.Environment)
	}

	exists, err := m.Adapter.DatabaseExists(ctx, dbName)
	if err != nil {
		if orcherrors.Cancelled(err) {
			return nil, nil, err
		}
		return nil, []string{err.Error()}, nil
	}

	var dbID string
	if !exists {
		dbID, err = m.Adapter.CreateDatabase(ctx, dbName)
		if err != nil {
			return nil, []string{err.Error()}, nil
		}
		m.State.AppendAudit(audit.EventDatabaseCreated, domainName, map[string]string{"database": dbName})
		m.addRollback(domainName, rollback.NewDeleteDatabaseAction(rollbackID(domainName, "db"), dbName))
	} else {
		dbID, err = m.Adapter.GetDatabaseID(ctx, dbName)
		if err != nil {
			return nil, []string{err.Error()}, nil
		}
		m.State.AppendAudit(audit.EventDatabaseFound, domainName, map[string]string{"database": dbName})
	}

	binding := m.BindingName
	if binding == "" {
		binding = "DB"
	}

	_ = m.State.UpdateDomain(domainName, state.DomainPatch{DatabaseName: &dbName, DatabaseID: &dbID})

	var warnings []string
	if m.DatabaseBinder != nil {
		if err := m.DatabaseBinder.AddDatabaseBinding(ctx, m.Environment, binding, dbName, dbID); err != nil {
			warnings = append(warnings, fmt.Sprintf("writing database binding: %v", err))
		}
	}
	if err := m.Adapter.ApplyMigrations(ctx, dbName, binding, m.Environment, true); err != nil {
		msg := fmt.Sprintf("migration failed: %v", err)
		return append(warnings, msg), []string{msg}, nil
	}
	return warnings, nil, nil
}

// runSecrets generates or reuses the domain's secret set. Failures are
// non-critical.
func (m *Machine) runSecrets(ctx context.Context, domainName string) ([]string, []string, error) {
	if m.SecretGen == nil {
		return nil, nil, nil
	}
	names, err := m.SecretGen.GenerateSecrets(ctx, domainName, m.Environment)
	if err != nil {
		if orcherrors.Cancelled(err) {
			return nil, nil, err
		}
		return nil, []string{err.Error()}, nil
	}
	m.State.AppendAudit(audit.EventSecretsGenerated, domainName, map[string]interface{}{"count": len(names), "names": names})
	for _, n := range names {
		m.addRollback(domainName, rollback.NewDeleteSecretAction(rollbackID(domainName, "secret-"+n), n, m.Environment))
	}
	return nil, nil, nil
}

// runDeployment prepares the per-customer config, deploys the worker,
// and parses the resulting URL.
func (m *Machine) runDeployment(ctx context.Context, domainName string, cfg *domain.Config) ([]string, []string, error) {
	workingDir := ""
	if m.ConfigWriter != nil {
		var err error
		workingDir, err = m.ConfigWriter.PrepareCustomerConfig(ctx, domainName, m.Environment, cfg)
		if err != nil {
			return nil, []string{err.Error()}, nil
		}
	}

	result, err := m.Adapter.DeployWorker(ctx, m.Environment, workingDir)
	if err != nil {
		if orcherrors.Cancelled(err) {
			return nil, nil, err
		}
		return nil, []string{err.Error()}, nil
	}

	m.addRollback(domainName, rollback.NewDeleteWorkerAction(rollbackID(domainName, "worker"), cfg.WorkerName, m.Environment))

	var warnings []string
	url := platform.ExtractWorkerURL(result.Stdout)
	if url == "" {
		warnings = append(warnings, "could not parse worker URL from deploy output")
	}
	customURL := environmentURL(cfg, m.Environment)

	_ = m.State.UpdateDomain(domainName, state.DomainPatch{WorkerURL: &url, CustomURL: &customURL})
	return warnings, nil, nil
}

// runPostValidation GETs worker_url + "/health", preferring the worker
// URL over the custom domain since the latter may not yet be routable.
func (m *Machine) runPostValidation(ctx context.Context, domainName string) ([]string, []string, error) {
	snap, err := m.State.DomainSnapshot(domainName)
	if err != nil {
		return nil, []string{err.Error()}, nil
	}
	if snap.WorkerURL == "" {
		return []string{"no worker URL available for health check"}, nil, nil
	}

	healthURL := strings.TrimRight(snap.WorkerURL, "/") + "/health"

	const attempts = 3
	const interAttemptDelay = 5 * time.Second
	const perAttemptTimeout = 15 * time.Second

	var lastErr error
	for i := 0; i < attempts; i++ {
		result, err := m.Adapter.HealthCheck(ctx, healthURL, perAttemptTimeout)
		if err == nil {
			switch {
			case result.StatusCode == 200:
				m.State.AppendAudit(audit.EventHealthCheckPassed, domainName, map[string]int{"status_code": result.StatusCode, "attempt": i + 1})
				return nil, nil, nil
			default:
				m.State.AppendAudit(audit.EventHealthCheckWarning, domainName, map[string]int{"status_code": result.StatusCode, "attempt": i + 1})
				return []string{fmt.Sprintf("health check returned status %d", result.StatusCode)}, nil, nil
			}
		}
		lastErr = err
		if orcherrors.Cancelled(err) {
			return nil, nil, err
		}
		if i < attempts-1 && !m.sleep(ctx, interAttemptDelay) {
			return nil, nil, orcherrors.New(orcherrors.KindCancelled, "cancelled during health check retry")
		}
	}

	m.State.AppendAudit(audit.EventHealthCheckFailed, domainName, map[string]string{"error": lastErr.Error()})
	return []string{fmt.Sprintf("health check failed after %d attempts: %v", attempts, lastErr)}, nil, nil
}

func (m *Machine) addRollback(domainName string, a rollback.Action) {
	if m.DryRun {
		return
	}
	_ = m.State.AddRollbackAction(domainName, a)
}

func environmentURL(cfg *domain.Config, environment string) string {
	switch environment {
	case "staging":
		return cfg.Environments.Staging
	case "development":
		return cfg.Environments.Development
	default:
		return cfg.Environments.Production
	}
}

func rollbackID(domainName, kind string) string {
	return fmt.Sprintf("%s-%s-%s", domainName, kind, uuid.NewString())
}
