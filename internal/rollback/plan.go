package rollback

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	orcherrors "github.com/alt-project/orchestrator/internal/errors"
	"github.com/alt-project/orchestrator/internal/metrics"
)

// Executor dispatches a rollback Action to the underlying platform. It is
// the narrow surface of the Platform Adapter that the rollback package
// needs; the coordinator supplies an implementation backed by the real
// adapter.
type Executor interface {
	DeleteSecret(ctx context.Context, key, environment string) error
	DeleteDatabase(ctx context.Context, name string) error
	DeleteWorker(ctx context.Context, name, environment string) error
	RunCustomCommand(ctx context.Context, command string, args []string) error
}

// Plan is the ordered, run-scoped set of rollback actions. Add is safe
// for concurrent use; actions accumulate across an entire portfolio
// deployment, one domain's phases at a time.
type Plan struct {
	mu      sync.Mutex
	actions []Action
}

// NewPlan returns an empty rollback plan.
func NewPlan() *Plan {
	return &Plan{}
}

// Add appends a to the plan.
func (p *Plan) Add(a Action) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions = append(p.actions, a)
}

// Actions returns the plan's actions ordered by descending priority,
// with ties broken by reverse insertion order (LIFO within equal
// priority).
func (p *Plan) Actions() []Action {
	p.mu.Lock()
	ordered := append([]Action(nil), p.actions...)
	p.mu.Unlock()

	// Reverse first so a stable sort turns equal-priority ties into LIFO order.
	for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})
	return ordered
}

// ActionOutcome records the per-action result of a rollback execution.
type ActionOutcome struct {
	Action Action
	Error  string
}

// Report is the result of executing a rollback plan, written to the
// backup directory as JSON.
type Report struct {
	RollbackID string          `json:"rollback_id"`
	Successful []ActionOutcome `json:"successful"`
	Failed     []ActionOutcome `json:"failed"`
	Skipped    []ActionOutcome `json:"skipped"`
	Summary    string          `json:"summary"`
}

// Execute runs every action in priority order against exec. Under
// dryRun, each action is logged as would-execute and marked successful
// without dispatching. A critical action that fails without
// continue_on_failure stops the sweep; remaining actions are recorded
// as skipped.
func Execute(ctx context.Context, rollbackID string, p *Plan, exec Executor, dryRun bool) Report {
	report := Report{RollbackID: rollbackID}
	actions := p.Actions()

	stopped := false
	for _, a := range actions {
		if stopped {
			report.Skipped = append(report.Skipped, ActionOutcome{Action: a})
			metrics.RollbackActionsExecuted.WithLabelValues(string(a.Type), "skipped").Inc()
			continue
		}

		if dryRun {
			report.Successful = append(report.Successful, ActionOutcome{Action: a})
			metrics.RollbackActionsExecuted.WithLabelValues(string(a.Type), "success").Inc()
			continue
		}

		err := executeWithRetry(ctx, exec, a)
		if err != nil {
			report.Failed = append(report.Failed, ActionOutcome{Action: a, Error: err.Error()})
			metrics.RollbackActionsExecuted.WithLabelValues(string(a.Type), "failed").Inc()
			if a.Critical && !a.ContinueOnFailure {
				stopped = true
			}
			continue
		}
		report.Successful = append(report.Successful, ActionOutcome{Action: a})
		metrics.RollbackActionsExecuted.WithLabelValues(string(a.Type), "success").Inc()
	}

	if stopped {
		report.Summary = fmt.Sprintf("partial: %d succeeded, %d failed, %d skipped",
			len(report.Successful), len(report.Failed), len(report.Skipped))
	} else {
		report.Summary = fmt.Sprintf("complete: %d succeeded, %d failed",
			len(report.Successful), len(report.Failed))
	}
	return report
}

// retryInterval is the per-action retry backoff. It is a var rather
// than a const so tests can shrink it; production callers leave it at
// the default 2 seconds.
var retryInterval = 2 * time.Second

// executeWithRetry dispatches a single action, retrying transient
// failures up to 3 attempts total with a fixed backoff.
func executeWithRetry(ctx context.Context, exec Executor, a Action) error {
	operation := func() error {
		return dispatch(ctx, exec, a)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(retryInterval), 2),
		ctx,
	)

	return backoff.Retry(operation, policy)
}

func dispatch(ctx context.Context, exec Executor, a Action) error {
	switch a.Type {
	case TypeRestoreFile:
		return restoreFile(a.BackupPath, a.OriginalPath)
	case TypeDeleteSecret:
		return exec.DeleteSecret(ctx, a.SecretKey, a.Environment)
	case TypeDeleteDatabase:
		return exec.DeleteDatabase(ctx, a.DatabaseName)
	case TypeDeleteWorker:
		return exec.DeleteWorker(ctx, a.WorkerName, a.Environment)
	case TypeCustomCommand:
		return exec.RunCustomCommand(ctx, a.Command, a.Args)
	default:
		return orcherrors.New(orcherrors.KindValidation, "unknown rollback action type %q", a.Type)
	}
}

// restoreFile copies backupPath back over originalPath. The backup must
// exist at execution time; absence is a terminal action error.
func restoreFile(backupPath, originalPath string) error {
	if _, err := os.Stat(backupPath); err != nil {
		return orcherrors.Wrap(orcherrors.KindNotFound, err, "backup %q does not exist", backupPath)
	}
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return orcherrors.Wrap(orcherrors.KindPersistence, err, "reading backup %q", backupPath)
	}
	if err := os.WriteFile(originalPath, data, 0o644); err != nil {
		return orcherrors.Wrap(orcherrors.KindPersistence, err, "restoring %q", originalPath)
	}
	return nil
}
