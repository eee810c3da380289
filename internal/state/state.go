// Package state is the single owner of per-orchestration run state: the
// OrchestrationRun record, every DomainState, the audit log, and the
// rollback plan. All mutation goes through the Manager's methods so that
// concurrent phase completions never race on the same domain.
package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/alt-project/orchestrator/internal/audit"
	"github.com/alt-project/orchestrator/internal/domain"
	orcherrors "github.com/alt-project/orchestrator/internal/errors"
	"github.com/alt-project/orchestrator/internal/ids"
	"github.com/alt-project/orchestrator/internal/rollback"
)

// Status is a DomainState's lifecycle status. Values are ordered by
// rank() and transitions must be monotonically non-decreasing.
type Status string

const (
	StatusPending                  Status = "pending"
	StatusDeploying                Status = "deploying"
	StatusCompleted                Status = "completed"
	StatusCompletedWithWarnings    Status = "completed_with_warnings"
	StatusFailed                   Status = "failed"
)

// rank orders statuses for the monotonic-transition invariant. Terminal
// statuses (completed, completed_with_warnings, failed) all share the
// highest rank: once terminal, a DomainState never moves again.
func rank(s Status) int {
	switch s {
	case StatusPending:
		return 0
	case StatusDeploying:
		return 1
	case StatusCompleted, StatusCompletedWithWarnings, StatusFailed:
		return 2
	default:
		return -1
	}
}

// IsTerminal reports whether s is a terminal status.
func (s Status) IsTerminal() bool { return rank(s) == 2 }

// PhaseResult records the outcome of a single phase invocation for a domain.
type PhaseResult struct {
	Success  bool
	Errors   []string
	Warnings []string
}

// DomainState is the mutable record for a single domain within a run.
// Mutation is exclusively through Manager methods; callers never write
// to its fields directly.
type DomainState struct {
	Domain          string
	DeploymentID    string
	Phase           string
	Status          Status
	StartTime       *time.Time
	EndTime         *time.Time
	Error           string
	Config          *domain.Config
	RollbackActions []rollback.Action
	PhaseResults    map[string]PhaseResult
	WorkerURL       string
	CustomURL       string
	DatabaseName    string
	DatabaseID      string
	LastUpdated     time.Time
}

// snapshotCopy returns a deep-enough copy for safe external consumption.
func (d DomainState) snapshotCopy() DomainState {
	cp := d
	if d.StartTime != nil {
		t := *d.StartTime
		cp.StartTime = &t
	}
	if d.EndTime != nil {
		t := *d.EndTime
		cp.EndTime = &t
	}
	cp.RollbackActions = append([]rollback.Action(nil), d.RollbackActions...)
	cp.PhaseResults = make(map[string]PhaseResult, len(d.PhaseResults))
	for k, v := range d.PhaseResults {
		cp.PhaseResults[k] = v
	}
	return cp
}

// OrchestrationRun is the top-level, mostly-immutable record for one
// orchestration. Only EndTime mutates, and only once.
type OrchestrationRun struct {
	OrchestrationID string
	Environment     string
	StartTime       time.Time
	EndTime         *time.Time
	DryRun          bool
	ParallelLimit   int
	BatchPause      time.Duration
}

// DomainPatch describes a partial update to apply to a DomainState via
// UpdateDomain. Zero-valued fields are left untouched; use the pointer
// fields to distinguish "no change" from "set to zero value" where needed.
type DomainPatch struct {
	Phase        *string
	Status       *Status
	Error        *string
	WorkerURL    *string
	CustomURL    *string
	DatabaseName *string
	DatabaseID   *string
}

// Manager owns all state for a single orchestration run.
type Manager struct {
	mu      sync.Mutex
	run     *OrchestrationRun
	domains map[string]*DomainState
	audit   *audit.Log
	plan    *rollback.Plan
	now     func() time.Time
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager constructs a Manager. Use InitRun to start the run it owns.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		domains: make(map[string]*DomainState),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InitRun creates and persists an initial empty snapshot, returning the
// generated orchestration_id.
func (m *Manager) InitRun(environment string, dryRun bool, parallelLimit int, batchPause time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.run != nil {
		return "", orcherrors.New(orcherrors.KindValidation, "run already initialized")
	}

	now := m.now()
	id, err := ids.NewOrchestrationID(now)
	if err != nil {
		return "", orcherrors.Wrap(orcherrors.KindPersistence, err, "generating orchestration_id")
	}

	m.run = &OrchestrationRun{
		OrchestrationID: id,
		Environment:     environment,
		StartTime:       now,
		DryRun:          dryRun,
		ParallelLimit:   parallelLimit,
		BatchPause:      batchPause,
	}
	m.audit = audit.NewLog(id)
	m.plan = rollback.NewPlan()

	m.audit.Append(now, audit.EventOrchestratorInitialized, audit.DomainAll, map[string]interface{}{
		"environment":    environment,
		"dry_run":        dryRun,
		"parallel_limit": parallelLimit,
	})

	return id, nil
}

// AddAuditSink registers a persistence sink on the run's audit log.
func (m *Manager) AddAuditSink(s audit.Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.audit != nil {
		m.audit.AddSink(s)
	}
}

// InitDomainStates seeds a DomainState (status=pending) for every domain.
func (m *Manager) InitDomainStates(cfgs map[string]*domain.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.run == nil {
		return orcherrors.New(orcherrors.KindValidation, "run not initialized")
	}

	now := m.now()
	for name, cfg := range cfgs {
		depID, err := ids.NewDeploymentID(name, now)
		if err != nil {
			return orcherrors.Wrap(orcherrors.KindPersistence, err, "generating deployment_id for %s", name)
		}
		m.domains[name] = &DomainState{
			Domain:       name,
			DeploymentID: depID,
			Status:       StatusPending,
			Config:       cfg,
			PhaseResults: make(map[string]PhaseResult),
			LastUpdated:  now,
		}
	}
	m.audit.Append(now, audit.EventPortfolioInitialized, audit.DomainAll, map[string]int{"domain_count": len(cfgs)})
	return nil
}

// UpdateDomain merges patch into the named domain's state. Reverse status
// transitions (terminal -> deploying, or any decrease in rank) are rejected.
func (m *Manager) UpdateDomain(name string, patch DomainPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ds, ok := m.domains[name]
	if !ok {
		return orcherrors.New(orcherrors.KindNotFound, "unknown domain %q", name)
	}

	if patch.Status != nil {
		if rank(*patch.Status) < rank(ds.Status) {
			return orcherrors.New(orcherrors.KindValidation,
				"illegal status transition for %s: %s -> %s", name, ds.Status, *patch.Status).
				WithDomain(name, ds.Phase)
		}
		ds.Status = *patch.Status
	}
	if patch.Phase != nil {
		ds.Phase = *patch.Phase
	}
	if patch.Error != nil {
		ds.Error = *patch.Error
	}
	if patch.WorkerURL != nil {
		ds.WorkerURL = *patch.WorkerURL
	}
	if patch.CustomURL != nil {
		ds.CustomURL = *patch.CustomURL
	}
	if patch.DatabaseName != nil {
		ds.DatabaseName = *patch.DatabaseName
	}
	if patch.DatabaseID != nil {
		ds.DatabaseID = *patch.DatabaseID
	}
	ds.LastUpdated = m.now()
	return nil
}

// RecordPhaseResult stores the outcome of a completed phase for a domain.
func (m *Manager) RecordPhaseResult(name, phase string, result PhaseResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ds, ok := m.domains[name]
	if !ok {
		return orcherrors.New(orcherrors.KindNotFound, "unknown domain %q", name)
	}
	ds.PhaseResults[phase] = result
	ds.LastUpdated = m.now()
	return nil
}

// MarkStarted transitions a domain from pending to deploying and records
// its start time. It is a no-op error if called on a terminal domain.
func (m *Manager) MarkStarted(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ds, ok := m.domains[name]
	if !ok {
		return orcherrors.New(orcherrors.KindNotFound, "unknown domain %q", name)
	}
	if rank(StatusDeploying) < rank(ds.Status) {
		return orcherrors.New(orcherrors.KindValidation, "cannot start terminal domain %s", name)
	}
	now := m.now()
	ds.Status = StatusDeploying
	ds.StartTime = &now
	ds.LastUpdated = now
	m.audit.Append(now, audit.EventDeploymentStart, name, nil)
	return nil
}

// MarkCompleted marks a domain as fully successful.
func (m *Manager) MarkCompleted(name string) error {
	return m.markTerminal(name, StatusCompleted, "", audit.EventDeploymentSuccess)
}

// MarkCompletedWithWarnings marks a domain as successful but with
// non-critical phase failures recorded.
func (m *Manager) MarkCompletedWithWarnings(name string) error {
	return m.markTerminal(name, StatusCompletedWithWarnings, "", audit.EventDeploymentSuccess)
}

// MarkFailed marks a domain as failed with the given error message.
func (m *Manager) MarkFailed(name string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return m.markTerminal(name, StatusFailed, msg, audit.EventDeploymentFailed)
}

func (m *Manager) markTerminal(name string, status Status, errMsg string, event audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ds, ok := m.domains[name]
	if !ok {
		return orcherrors.New(orcherrors.KindNotFound, "unknown domain %q", name)
	}
	if rank(status) < rank(ds.Status) {
		return orcherrors.New(orcherrors.KindValidation,
			"illegal status transition for %s: %s -> %s", name, ds.Status, status)
	}
	now := m.now()
	ds.Status = status
	ds.Error = errMsg
	ds.EndTime = &now
	ds.LastUpdated = now
	m.audit.Append(now, event, name, map[string]string{"status": string(status), "error": errMsg})
	return nil
}

// AppendAudit records an audit event under the run's sequence counter.
func (m *Manager) AppendAudit(event audit.Event, domainName string, details interface{}) {
	m.mu.Lock()
	log := m.audit
	now := m.now()
	m.mu.Unlock()
	if log != nil {
		log.Append(now, event, domainName, details)
	}
}

// AddRollbackAction appends a to both the domain's and the portfolio's
// rollback plan.
func (m *Manager) AddRollbackAction(name string, a rollback.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ds, ok := m.domains[name]
	if !ok {
		return orcherrors.New(orcherrors.KindNotFound, "unknown domain %q", name)
	}
	ds.RollbackActions = append(ds.RollbackActions, a)
	m.plan.Add(a)
	return nil
}

// Plan returns the portfolio-wide rollback plan.
func (m *Manager) Plan() *rollback.Plan {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.plan
}

// DomainSnapshot returns a defensive copy of one domain's current state.
func (m *Manager) DomainSnapshot(name string) (DomainState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ds, ok := m.domains[name]
	if !ok {
		return DomainState{}, orcherrors.New(orcherrors.KindNotFound, "unknown domain %q", name)
	}
	return ds.snapshotCopy(), nil
}

// RunSnapshot is the serializable view of an orchestration run produced
// by Snapshot, used for persistence and reporting.
type RunSnapshot struct {
	Run     OrchestrationRun
	Domains map[string]DomainState
	Audit   []audit.Entry
}

// Snapshot returns a serializable view of the full run state.
func (m *Manager) Snapshot() (RunSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.run == nil {
		return RunSnapshot{}, orcherrors.New(orcherrors.KindValidation, "run not initialized")
	}

	domains := make(map[string]DomainState, len(m.domains))
	for name, ds := range m.domains {
		domains[name] = ds.snapshotCopy()
	}

	return RunSnapshot{
		Run:     *m.run,
		Domains: domains,
		Audit:   m.audit.Entries(),
	}, nil
}

// FinishRun marks the orchestration run itself terminal, setting EndTime
// once. Calling it twice is an error.
func (m *Manager) FinishRun() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.run == nil {
		return orcherrors.New(orcherrors.KindValidation, "run not initialized")
	}
	if m.run.EndTime != nil {
		return orcherrors.New(orcherrors.KindValidation, "run already finished")
	}
	now := m.now()
	m.run.EndTime = &now
	return nil
}

// String renders a short human-readable summary, useful for log lines.
func (d DomainState) String() string {
	return fmt.Sprintf("%s[%s/%s]", d.Domain, d.Status, d.Phase)
}
