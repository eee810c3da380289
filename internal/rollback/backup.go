package rollback

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	orcherrors "github.com/alt-project/orchestrator/internal/errors"
)

// ManifestVersion is the current backup manifest format version.
const ManifestVersion = "1.0"

// ManifestFilename is the standard manifest filename within a run's
// backup directory.
const ManifestFilename = "backup-manifest.json"

// FileBackup records one configuration file copied aside before a run.
type FileBackup struct {
	OriginalPath string    `json:"original_path"`
	BackupPath   string    `json:"backup_path"`
	Checksum     string    `json:"checksum"`
	Timestamp    time.Time `json:"timestamp"`
}

// Manifest describes everything captured by create_state_backup for a
// single orchestration run.
type Manifest struct {
	Version       string       `json:"version"`
	RunID         string       `json:"run_id"`
	CreatedAt     time.Time    `json:"created_at"`
	Files         []FileBackup `json:"files"`
	PlatformState string       `json:"platform_state"`
	DatabaseState string       `json:"database_state"`
}

// PlatformLister is the narrow slice of the Platform Adapter the backup
// subsystem needs for textual listings. Values are never captured.
type PlatformLister interface {
	ListWorkers() (string, error)
	ListSecrets() (string, error)
}

// BackupOptions controls what create_state_backup captures.
type BackupOptions struct {
	IncludePlatform bool
	IncludeDatabase string // textual listing of managed databases, captured verbatim if non-empty
}

// CreateStateBackup copies the fixed list of configuration files into
// backupDir/configs/<runID>/, captures textual platform listings when
// requested, and writes a manifest. It returns the manifest plus one
// restore-file rollback action per backed-up file.
func CreateStateBackup(backupDir, runID string, configFiles []string, lister PlatformLister, opts BackupOptions, now time.Time) (*Manifest, []Action, error) {
	destDir := filepath.Join(backupDir, "configs", runID)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, nil, orcherrors.Wrap(orcherrors.KindPersistence, err, "creating backup directory %q", destDir)
	}

	m := &Manifest{
		Version:   ManifestVersion,
		RunID:     runID,
		CreatedAt: now,
	}
	var actions []Action

	for _, original := range configFiles {
		if _, err := os.Stat(original); os.IsNotExist(err) {
			// Not every deployment has every config file; skipping is not fatal.
			continue
		}

		backupPath := filepath.Join(destDir, filepath.Base(original))
		checksum, err := copyWithChecksum(original, backupPath)
		if err != nil {
			return nil, nil, orcherrors.Wrap(orcherrors.KindPersistence, err, "backing up %q", original)
		}

		fb := FileBackup{
			OriginalPath: original,
			BackupPath:   backupPath,
			Checksum:     checksum,
			Timestamp:    now,
		}
		m.Files = append(m.Files, fb)

		actions = append(actions, NewRestoreFileAction(
			fmt.Sprintf("restore-%s", filepath.Base(original)),
			backupPath,
			original,
		))
	}

	if opts.IncludePlatform && lister != nil {
		workers, err := lister.ListWorkers()
		if err != nil {
			workers = fmt.Sprintf("<listing failed: %v>", err)
		}
		secrets, err := lister.ListSecrets()
		if err != nil {
			secrets = fmt.Sprintf("<listing failed: %v>", err)
		}
		m.PlatformState = workers + "\n---\n" + secrets
	}
	if opts.IncludeDatabase != "" {
		m.DatabaseState = opts.IncludeDatabase
	}

	if err := m.Save(filepath.Join(destDir, ManifestFilename)); err != nil {
		return nil, nil, err
	}

	return m, actions, nil
}

// Save writes the manifest as indented JSON.
func (m *Manifest) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return orcherrors.Wrap(orcherrors.KindPersistence, err, "marshaling backup manifest")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return orcherrors.Wrap(orcherrors.KindPersistence, err, "writing backup manifest %q", path)
	}
	return nil
}

// LoadManifest reads a manifest previously written by Save.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, orcherrors.Wrap(orcherrors.KindPersistence, err, "reading backup manifest %q", path)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, orcherrors.Wrap(orcherrors.KindPersistence, err, "parsing backup manifest %q", path)
	}
	return &m, nil
}

// BackupSummary is the per-run information ListBackups surfaces without
// loading every file's contents.
type BackupSummary struct {
	RunID     string
	CreatedAt time.Time
	FileCount int
	TotalSize int64
}

// ListBackups scans backupDir/configs/*/backup-manifest.json and
// returns one summary per run, most recent first.
func ListBackups(backupDir string) ([]BackupSummary, error) {
	configsDir := filepath.Join(backupDir, "configs")
	entries, err := os.ReadDir(configsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, orcherrors.Wrap(orcherrors.KindPersistence, err, "reading backup directory %q", configsDir)
	}

	var summaries []BackupSummary
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		manifestPath := filepath.Join(configsDir, e.Name(), ManifestFilename)
		m, err := LoadManifest(manifestPath)
		if err != nil {
			continue
		}
		var total int64
		for _, f := range m.Files {
			if info, err := os.Stat(f.BackupPath); err == nil {
				total += info.Size()
			}
		}
		summaries = append(summaries, BackupSummary{
			RunID:     m.RunID,
			CreatedAt: m.CreatedAt,
			FileCount: len(m.Files),
			TotalSize: total,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// FormatSize renders a byte count in the largest whole unit that keeps
// the integer part under 1024.
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// Verify checks that every backed-up file still exists with a matching checksum.
func (m *Manifest) Verify() error {
	for _, f := range m.Files {
		checksum, err := fileChecksum(f.BackupPath)
		if err != nil {
			return orcherrors.Wrap(orcherrors.KindNotFound, err, "verifying backup of %q", f.OriginalPath)
		}
		if checksum != f.Checksum {
			return orcherrors.New(orcherrors.KindValidation, "checksum mismatch for %q", f.OriginalPath)
		}
	}
	return nil
}

func copyWithChecksum(src, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, h), in); err != nil {
		return "", err
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}
