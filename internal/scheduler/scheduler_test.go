package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBatches_SplitsContiguously(t *testing.T) {
	domains := []string{"a", "b", "c", "d", "e", "f", "g"}
	batches := Batches(domains, 3)
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	if len(batches[0]) != 3 || len(batches[2]) != 1 {
		t.Errorf("unexpected batch sizes: %v", batches)
	}
}

func TestValidateParallelLimit(t *testing.T) {
	if err := ValidateParallelLimit(0); err == nil {
		t.Error("expected error for 0")
	}
	if err := ValidateParallelLimit(11); err == nil {
		t.Error("expected error for 11")
	}
	if err := ValidateParallelLimit(3); err != nil {
		t.Errorf("expected no error for 3, got %v", err)
	}
}

func TestRunAll_IsolatesFailuresWithinABatch(t *testing.T) {
	s := &Scheduler{
		Run: func(ctx context.Context, domain string) error {
			if domain == "bad.example.com" {
				return errors.New("deploy failed")
			}
			return nil
		},
	}

	report := s.RunAll(context.Background(), Batches([]string{"a.example.com", "bad.example.com", "c.example.com"}, 3))
	if len(report.Successes) != 2 {
		t.Errorf("expected 2 successes, got %d: %v", len(report.Successes), report.Successes)
	}
	if len(report.Failures) != 1 {
		t.Errorf("expected 1 failure, got %d", len(report.Failures))
	}
}

func TestRunAll_PreservesBatchOrderAcrossBatches(t *testing.T) {
	var mu sync.Mutex
	var order []string

	s := &Scheduler{
		Run: func(ctx context.Context, domain string) error {
			mu.Lock()
			order = append(order, domain)
			mu.Unlock()
			return nil
		},
	}

	batches := Batches([]string{"a", "b", "c", "d"}, 2)
	s.RunAll(context.Background(), batches)

	// First batch members (a, b) must both appear before either of the
	// second batch members (c, d) in completion order, even though
	// within-batch order is unconstrained.
	firstBatchDone := map[string]bool{"a": false, "b": false}
	for _, d := range order[:2] {
		firstBatchDone[d] = true
	}
	if !firstBatchDone["a"] || !firstBatchDone["b"] {
		t.Errorf("expected both first-batch domains to complete before the second batch, got order %v", order)
	}
}

func TestRunAll_InterBatchPause(t *testing.T) {
	s := &Scheduler{
		BatchPause: 20 * time.Millisecond,
		Run:        func(ctx context.Context, domain string) error { return nil },
	}

	start := time.Now()
	s.RunAll(context.Background(), Batches([]string{"a", "b", "c"}, 1))
	elapsed := time.Since(start)

	// 3 batches of size 1 => 2 inter-batch pauses of 20ms each.
	if elapsed < 40*time.Millisecond {
		t.Errorf("expected at least 2 inter-batch pauses (~40ms), took %s", elapsed)
	}
}

func TestRunAll_CancellationSkipsRemainingBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ran int32

	s := &Scheduler{
		Run: func(ctx context.Context, domain string) error {
			atomic.AddInt32(&ran, 1)
			if domain == "a" {
				cancel()
			}
			return nil
		},
	}

	report := s.RunAll(ctx, Batches([]string{"a", "b", "c"}, 1))
	if report.BatchesSkipped == 0 {
		t.Error("expected at least one batch to be skipped after cancellation")
	}
	if atomic.LoadInt32(&ran) >= 3 {
		t.Error("expected cancellation to prevent all batches from running")
	}
}
