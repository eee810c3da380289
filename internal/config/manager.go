package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/alt-project/orchestrator/internal/domain"
	orcherrors "github.com/alt-project/orchestrator/internal/errors"
)

// WranglerConfig mirrors the subset of wrangler.toml the orchestrator
// needs to read and rewrite: worker identity plus one [env.<name>]
// table per environment carrying its D1 database bindings.
type WranglerConfig struct {
	Name              string               `toml:"name"`
	AccountID         string               `toml:"account_id,omitempty"`
	Main              string               `toml:"main,omitempty"`
	CompatibilityDate string               `toml:"compatibility_date,omitempty"`
	Env               map[string]EnvConfig `toml:"env,omitempty"`
}

// EnvConfig is one [env.<name>] table.
type EnvConfig struct {
	Name        string      `toml:"name,omitempty"`
	D1Databases []D1Binding `toml:"d1_databases,omitempty"`
}

// D1Binding is a single managed-database binding within an environment.
type D1Binding struct {
	Binding      string `toml:"binding"`
	DatabaseName string `toml:"database_name"`
	DatabaseID   string `toml:"database_id"`
}

// CustomerConfigOptions parameterizes GenerateCustomerConfig.
type CustomerConfigOptions struct {
	AccountID   string
	Environment string
	WorkerName  string
}

// Manager implements the Configuration Manager: it owns the active
// per-project wrangler.toml-style file, renders persistent per-customer
// variants, and performs atomic, backed-up writes. The active config
// file is treated as run-exclusive; callers must not interleave runs
// against the same working directory.
type Manager struct {
	mu          sync.Mutex
	activePath  string
	customerDir string
	now         func() time.Time

	cfg WranglerConfig
}

// NewManager constructs a Manager. activePath is the working-root
// config file DeployWorker reads from; customerDir is where persistent,
// versioned per-customer configs are rendered.
func NewManager(activePath, customerDir string) *Manager {
	return &Manager{
		activePath:  activePath,
		customerDir: customerDir,
		now:         time.Now,
		cfg:         WranglerConfig{Env: map[string]EnvConfig{}},
	}
}

// SetAccountID records the managed-platform account ID future
// generated/written configs should carry.
func (m *Manager) SetAccountID(accountID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.AccountID = accountID
}

// EnsureEnvironment guarantees an [env.<environment>] table exists,
// creating an empty one if absent.
func (m *Manager) EnsureEnvironment(environment string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureEnvironmentLocked(environment)
}

func (m *Manager) ensureEnvironmentLocked(environment string) EnvConfig {
	if m.cfg.Env == nil {
		m.cfg.Env = map[string]EnvConfig{}
	}
	env, ok := m.cfg.Env[environment]
	if !ok {
		env = EnvConfig{Name: environment}
		m.cfg.Env[environment] = env
	}
	return env
}

// AddDatabaseBinding binds a managed database under binding for
// environment in the active config, replacing any existing binding of
// the same name, and atomically rewrites the active file. ctx is
// accepted for symmetry with the other suspension points this method
// sits between; the write itself is local disk I/O.
func (m *Manager) AddDatabaseBinding(ctx context.Context, environment, binding, databaseName, databaseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	env := m.ensureEnvironmentLocked(environment)
	replaced := false
	for i, d := range env.D1Databases {
		if d.Binding == binding {
			env.D1Databases[i] = D1Binding{Binding: binding, DatabaseName: databaseName, DatabaseID: databaseID}
			replaced = true
			break
		}
	}
	if !replaced {
		env.D1Databases = append(env.D1Databases, D1Binding{Binding: binding, DatabaseName: databaseName, DatabaseID: databaseID})
	}
	m.cfg.Env[environment] = env

	return m.writeActiveLocked()
}

// GenerateCustomerConfig renders a per-customer config variant derived
// from zoneName and opts, and writes it to
// customerDir/<zoneName>-<environment>.toml, returning its path.
// Per-customer configs are persistent and versioned; CopyCustomerConfig
// is what replaces the active working copy.
func (m *Manager) GenerateCustomerConfig(zoneName string, opts CustomerConfigOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	accountID := opts.AccountID
	if accountID == "" {
		accountID = m.cfg.AccountID
	}

	cfg := WranglerConfig{
		Name:      opts.WorkerName,
		AccountID: accountID,
		Env:       map[string]EnvConfig{},
	}
	for name, env := range m.cfg.Env {
		cfg.Env[name] = env
	}
	env := cfg.Env[opts.Environment]
	env.Name = opts.WorkerName
	cfg.Env[opts.Environment] = env

	if err := os.MkdirAll(m.customerDir, 0o755); err != nil {
		return "", orcherrors.Wrap(orcherrors.KindPersistence, err, "creating customer config dir %q", m.customerDir)
	}

	path := filepath.Join(m.customerDir, fmt.Sprintf("%s-%s.toml", zoneName, opts.Environment))
	data, err := toml.Marshal(cfg)
	if err != nil {
		return "", orcherrors.Wrap(orcherrors.KindPersistence, err, "marshaling customer config for %q", zoneName)
	}
	if err := atomicWrite(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// CopyCustomerConfig atomically replaces the active config with the
// contents of path, backing up the existing active file first if one
// exists.
func (m *Manager) CopyCustomerConfig(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return orcherrors.Wrap(orcherrors.KindPersistence, err, "reading customer config %q", path)
	}
	if err := m.backupActiveLocked(); err != nil {
		return err
	}
	return atomicWrite(m.activePath, data)
}

// PrepareCustomerConfig implements phase.ConfigWriter: it renders the
// per-customer config for domainName's zone, copies it over the active
// working-root config, and returns the working directory DeployWorker
// should run from.
func (m *Manager) PrepareCustomerConfig(ctx context.Context, domainName, environment string, cfg *domain.Config) (string, error) {
	zoneName := cfg.Name
	path, err := m.GenerateCustomerConfig(zoneName, CustomerConfigOptions{
		Environment: environment,
		WorkerName:  cfg.WorkerName,
	})
	if err != nil {
		return "", err
	}
	if err := m.CopyCustomerConfig(path); err != nil {
		return "", err
	}
	return filepath.Dir(m.activePath), nil
}

func (m *Manager) writeActiveLocked() error {
	data, err := toml.Marshal(m.cfg)
	if err != nil {
		return orcherrors.Wrap(orcherrors.KindPersistence, err, "marshaling active config")
	}
	if err := m.backupActiveLocked(); err != nil {
		return err
	}
	return atomicWrite(m.activePath, data)
}

// backupActiveLocked copies the existing active file aside with a
// timestamp suffix before it is overwritten. A missing active file is
// not an error: the very first write has nothing to back up.
func (m *Manager) backupActiveLocked() error {
	data, err := os.ReadFile(m.activePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return orcherrors.Wrap(orcherrors.KindPersistence, err, "reading active config %q for backup", m.activePath)
	}
	backupPath := fmt.Sprintf("%s.%s.bak", m.activePath, m.now().UTC().Format("20060102T150405"))
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return orcherrors.Wrap(orcherrors.KindPersistence, err, "writing config backup %q", backupPath)
	}
	return nil
}

// atomicWrite writes data to a temp file beside path then renames it
// over path, so a crash mid-write never leaves a partially-written
// active config behind.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return orcherrors.Wrap(orcherrors.KindPersistence, err, "creating config dir %q", dir)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-config-*")
	if err != nil {
		return orcherrors.Wrap(orcherrors.KindPersistence, err, "creating temp file in %q", dir)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return orcherrors.Wrap(orcherrors.KindPersistence, err, "writing temp file %q", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return orcherrors.Wrap(orcherrors.KindPersistence, err, "closing temp file %q", tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return orcherrors.Wrap(orcherrors.KindPersistence, err, "renaming %q to %q", tmpPath, path)
	}
	return nil
}
