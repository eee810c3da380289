package rollback

import (
	"context"
	"errors"
	"testing"
	"time"
)

func init() {
	retryInterval = time.Millisecond
}

func TestPlan_ActionsOrderedByPriorityThenLIFO(t *testing.T) {
	p := NewPlan()
	p.Add(Action{ID: "a", Priority: 10})
	p.Add(Action{ID: "b", Priority: 30})
	p.Add(Action{ID: "c", Priority: 30})
	p.Add(Action{ID: "d", Priority: 20})

	ordered := p.Actions()
	ids := make([]string, len(ordered))
	for i, a := range ordered {
		ids[i] = a.ID
	}

	// priority desc: 30,30,20,10; ties (b,c) broken LIFO -> c before b.
	want := []string{"c", "b", "d", "a"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ordering mismatch: got %v, want %v", ids, want)
		}
	}
}

type fakeExecutor struct {
	failKeys map[string]bool
}

func (f *fakeExecutor) DeleteSecret(ctx context.Context, key, environment string) error {
	if f.failKeys[key] {
		return errors.New("delete secret failed")
	}
	return nil
}
func (f *fakeExecutor) DeleteDatabase(ctx context.Context, name string) error { return nil }
func (f *fakeExecutor) DeleteWorker(ctx context.Context, name, environment string) error {
	return nil
}
func (f *fakeExecutor) RunCustomCommand(ctx context.Context, command string, args []string) error {
	return nil
}

func TestExecute_DryRunMarksEverythingSuccessful(t *testing.T) {
	p := NewPlan()
	p.Add(NewDeleteWorkerAction("w1", "worker", "production"))
	p.Add(NewDeleteDatabaseAction("d1", "db"))

	report := Execute(context.Background(), "rollback-1", p, &fakeExecutor{}, true)
	if len(report.Successful) != 2 || len(report.Failed) != 0 {
		t.Fatalf("expected all actions to succeed under dry-run, got %+v", report)
	}
}

func TestExecute_CriticalFailureStopsAndSkipsRemainder(t *testing.T) {
	p := NewPlan()
	p.Add(NewDeleteWorkerAction("w1", "worker", "production"))     // priority 40, runs first
	p.Add(NewDeleteSecretAction("s1", "API_KEY", "production"))    // priority 30, fails
	p.Add(NewDeleteDatabaseAction("d1", "db"))                     // priority 20, should be skipped

	exec := &fakeExecutor{failKeys: map[string]bool{"API_KEY": true}}
	report := Execute(context.Background(), "rollback-1", p, exec, false)

	if len(report.Successful) != 1 {
		t.Errorf("expected 1 successful action (worker delete), got %d", len(report.Successful))
	}
	if len(report.Failed) != 1 {
		t.Errorf("expected 1 failed action, got %d", len(report.Failed))
	}
	if len(report.Skipped) != 1 {
		t.Errorf("expected 1 skipped action, got %d", len(report.Skipped))
	}
}

func TestExecute_NonCriticalFailureContinues(t *testing.T) {
	p := NewPlan()
	a := NewDeleteSecretAction("s1", "API_KEY", "production")
	a.Critical = false
	p.Add(a)
	p.Add(NewDeleteDatabaseAction("d1", "db"))

	exec := &fakeExecutor{failKeys: map[string]bool{"API_KEY": true}}
	report := Execute(context.Background(), "rollback-1", p, exec, false)

	if len(report.Failed) != 1 || len(report.Successful) != 1 || len(report.Skipped) != 0 {
		t.Fatalf("expected non-critical failure to not block remaining actions, got %+v", report)
	}
}
