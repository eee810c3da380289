// Package scheduler implements the batched parallel scheduler:
// domains run concurrently within a batch, sequentially across
// batches, with an inter-batch pause to soften rate limits.
package scheduler

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	orcherrors "github.com/alt-project/orchestrator/internal/errors"
	"github.com/alt-project/orchestrator/internal/metrics"
)

// MinParallelLimit and MaxParallelLimit bound the validated range for
// parallel_limit. RateLimitWarningThreshold is the point past which a
// caller should surface a rate-limiting warning (not an error).
const (
	MinParallelLimit          = 1
	MaxParallelLimit          = 10
	RateLimitWarningThreshold = 5
)

// RunFunc executes one domain's deployment and reports success/failure.
type RunFunc func(ctx context.Context, domainName string) error

// Outcome is the per-domain result of one scheduler pass.
type Outcome struct {
	Domain string
	Err    error
}

// Report summarizes a full scheduler run across every batch.
type Report struct {
	Successes      []string
	Failures       []Outcome
	Cancelled      []string
	BatchesRun     int
	BatchesSkipped int
}

// ValidateParallelLimit checks the 1-10 bound on parallel_limit.
func ValidateParallelLimit(n int) error {
	if n < MinParallelLimit || n > MaxParallelLimit {
		return orcherrors.New(orcherrors.KindValidation, "parallel_limit must be between %d and %d, got %d", MinParallelLimit, MaxParallelLimit, n)
	}
	return nil
}

// Batches splits domains into contiguous batches of at most size.
// Callers needing dependency-respecting batches should use the
// Cross-Domain Coordinator's topological batching instead; this is the
// no-dependencies fallback ("otherwise input order").
func Batches(domains []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var batches [][]string
	for i := 0; i < len(domains); i += size {
		end := i + size
		if end > len(domains) {
			end = len(domains)
		}
		batches = append(batches, domains[i:end])
	}
	return batches
}

// Scheduler runs a RunFunc across pre-computed batches with bounded
// intra-batch concurrency and a pause between batches.
type Scheduler struct {
	BatchPause time.Duration
	Run        RunFunc
}

// RunAll executes every batch in order. Cancelling ctx aborts in-flight
// domains at their next suspension point (observed inside Run) and
// causes RunAll to skip all remaining batches once the current one
// settles; siblings within an already-started batch always run to
// completion; one domain's failure never aborts its batch siblings.
func (s *Scheduler) RunAll(ctx context.Context, batches [][]string) Report {
	var report Report

	for batchIdx, batch := range batches {
		if ctx.Err() != nil {
			report.BatchesSkipped += len(batches) - batchIdx
			for _, skippedBatch := range batches[batchIdx:] {
				report.Cancelled = append(report.Cancelled, skippedBatch...)
			}
			break
		}

		outcomes := s.runBatch(ctx, batch)
		report.BatchesRun++
		metrics.BatchesRun.Inc()

		for _, o := range outcomes {
			switch {
			case o.Err == nil:
				report.Successes = append(report.Successes, o.Domain)
			case orcherrors.Cancelled(o.Err):
				report.Cancelled = append(report.Cancelled, o.Domain)
			default:
				report.Failures = append(report.Failures, o)
			}
		}

		isFinalBatch := batchIdx == len(batches)-1
		if !isFinalBatch && ctx.Err() == nil {
			select {
			case <-time.After(s.BatchPause):
			case <-ctx.Done():
			}
		}
	}

	return report
}

// runBatch launches every domain in batch concurrently and waits for
// all to settle, both success and failure. Intentionally does not use errgroup's
// context-cancel-on-first-error behavior: one domain's failure must
// never cancel its siblings.
func (s *Scheduler) runBatch(ctx context.Context, batch []string) []Outcome {
	outcomes := make([]Outcome, len(batch))

	var g errgroup.Group
	for i, domainName := range batch {
		i, domainName := i, domainName
		g.Go(func() error {
			outcomes[i] = Outcome{Domain: domainName, Err: s.Run(ctx, domainName)}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}
