// Package store persists an orchestration run's summary and audit log
// to disk, per the deployments/<orchestration_id>.json layout.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/alt-project/orchestrator/internal/audit"
	"github.com/alt-project/orchestrator/internal/state"
)

// RunSummary is the on-disk schema for one orchestration run.
type RunSummary struct {
	OrchestrationID string                         `json:"orchestration_id"`
	Environment     string                          `json:"environment"`
	StartTime       time.Time                       `json:"start_time"`
	EndTime         *time.Time                      `json:"end_time"`
	Summary         RunCounts                       `json:"summary"`
	DomainStates    map[string]state.DomainState     `json:"domain_states"`
	AuditLog        []audit.Entry                   `json:"audit_log"`
	Metadata        RunMetadata                     `json:"metadata"`
}

// RunCounts tallies domain outcomes for the summary block.
type RunCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// RunMetadata records the run's operating flags.
type RunMetadata struct {
	DryRun             bool `json:"dry_run"`
	PersistenceEnabled bool `json:"persistence_enabled"`
	RollbackEnabled    bool `json:"rollback_enabled"`
}

// FromSnapshot converts a state.RunSnapshot into the on-disk RunSummary
// schema.
func FromSnapshot(snap state.RunSnapshot, rollbackEnabled bool) RunSummary {
	counts := RunCounts{Total: len(snap.Domains)}
	for _, d := range snap.Domains {
		switch d.Status {
		case state.StatusCompleted, state.StatusCompletedWithWarnings:
			counts.Completed++
		case state.StatusFailed:
			counts.Failed++
		}
	}

	return RunSummary{
		OrchestrationID: snap.Run.OrchestrationID,
		Environment:     snap.Run.Environment,
		StartTime:       snap.Run.StartTime,
		EndTime:         snap.Run.EndTime,
		Summary:         counts,
		DomainStates:    snap.Domains,
		AuditLog:        snap.Audit,
		Metadata: RunMetadata{
			DryRun:             snap.Run.DryRun,
			PersistenceEnabled: true,
			RollbackEnabled:    rollbackEnabled,
		},
	}
}

// Save writes summary to <dir>/<orchestration_id>.json atomically
// (write-to-temp-then-rename), backing up any existing file with a
// timestamp suffix first.
func Save(dir string, summary RunSummary) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating deployments dir: %w", err)
	}

	dest := filepath.Join(dir, summary.OrchestrationID+".json")
	if _, err := os.Stat(dest); err == nil {
		backup := dest + "." + time.Now().UTC().Format("20060102T150405Z") + ".bak"
		if copyErr := copyFile(dest, backup); copyErr != nil {
			return fmt.Errorf("backing up existing run file: %w", copyErr)
		}
	}

	raw, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling run summary: %w", err)
	}

	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("writing temp run file: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("renaming run file into place: %w", err)
	}
	return nil
}

// Load reads a single run summary by orchestration ID.
func Load(dir, orchestrationID string) (RunSummary, error) {
	raw, err := os.ReadFile(filepath.Join(dir, orchestrationID+".json"))
	if err != nil {
		return RunSummary{}, err
	}
	var summary RunSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return RunSummary{}, fmt.Errorf("parsing run file: %w", err)
	}
	return summary, nil
}

// LoadLatest returns the most recently started run recorded under dir.
func LoadLatest(dir string) (RunSummary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return RunSummary{}, err
	}

	var summaries []RunSummary
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		var s RunSummary
		if json.Unmarshal(raw, &s) != nil {
			continue
		}
		summaries = append(summaries, s)
	}
	if len(summaries) == 0 {
		return RunSummary{}, fmt.Errorf("no runs found under %s", dir)
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].StartTime.After(summaries[j].StartTime) })
	return summaries[0], nil
}

func copyFile(src, dst string) error {
	raw, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, raw, 0o644)
}
