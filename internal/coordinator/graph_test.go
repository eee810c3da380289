package coordinator

import (
	"testing"

	orcherrors "github.com/alt-project/orchestrator/internal/errors"
)

func TestDetectCycle_NoCycle(t *testing.T) {
	g := NewGraph([]string{"a", "b", "c"}, map[string][]string{
		"b": {"a"},
		"c": {"b"},
	})
	if _, err := g.DetectCycle(); err != nil {
		t.Errorf("expected no cycle, got %v", err)
	}
}

func TestDetectCycle_FindsCycle(t *testing.T) {
	g := NewGraph([]string{"a", "b", "c"}, map[string][]string{
		"a": {"c"},
		"b": {"a"},
		"c": {"b"},
	})
	_, err := g.DetectCycle()
	if err == nil {
		t.Fatal("expected a cycle to be detected")
	}
	if orcherrors.KindOf(err) != orcherrors.KindCircularDependency {
		t.Errorf("expected CircularDependency, got %v", orcherrors.KindOf(err))
	}
}

func TestTopoOrder_PrerequisitesBeforeDependents(t *testing.T) {
	g := NewGraph([]string{"api", "admin", "shared-db"}, map[string][]string{
		"api":   {"shared-db"},
		"admin": {"shared-db"},
	})
	order, err := g.TopoOrder()
	if err != nil {
		t.Fatalf("TopoOrder failed: %v", err)
	}

	pos := make(map[string]int, len(order))
	for i, n := range order {
		pos[n] = i
	}
	if pos["shared-db"] > pos["api"] || pos["shared-db"] > pos["admin"] {
		t.Errorf("expected shared-db before its dependents, got order %v", order)
	}
}

func TestTopoOrder_TiesBreakByInputOrder(t *testing.T) {
	g := NewGraph([]string{"c", "b", "a"}, nil)
	order, err := g.TopoOrder()
	if err != nil {
		t.Fatalf("TopoOrder failed: %v", err)
	}
	want := []string{"c", "b", "a"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected input-order tie-break %v, got %v", want, order)
		}
	}
}

func TestBatchWithDependencies_KeepsPrerequisiteInEarlierBatch(t *testing.T) {
	g := NewGraph([]string{"api", "admin", "shared-db"}, map[string][]string{
		"api":   {"shared-db"},
		"admin": {"shared-db"},
	})
	order, err := g.TopoOrder()
	if err != nil {
		t.Fatalf("TopoOrder failed: %v", err)
	}

	batches := g.BatchWithDependencies(order, 3)

	batchOf := make(map[string]int)
	for i, b := range batches {
		for _, n := range b {
			batchOf[n] = i
		}
	}
	if batchOf["shared-db"] >= batchOf["api"] {
		t.Errorf("expected shared-db in an earlier batch than api, got batches %v", batches)
	}
	if batchOf["shared-db"] >= batchOf["admin"] {
		t.Errorf("expected shared-db in an earlier batch than admin, got batches %v", batches)
	}
}

func TestBatchWithDependencies_RespectsSizeLimit(t *testing.T) {
	g := NewGraph([]string{"a", "b", "c", "d", "e"}, nil)
	order, _ := g.TopoOrder()
	batches := g.BatchWithDependencies(order, 2)
	for _, b := range batches {
		if len(b) > 2 {
			t.Errorf("expected batch size <= 2, got %v", b)
		}
	}
}
