// Package config provides Viper-based configuration management for the orchestrator.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the complete orchestrator run configuration.
type Config struct {
	Run        RunConfig        `mapstructure:"run"`
	Platform   PlatformConfig   `mapstructure:"platform"`
	Portfolio  PortfolioConfig  `mapstructure:"portfolio"`
	Backup     BackupConfig     `mapstructure:"backup"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Output     OutputConfig     `mapstructure:"output"`
}

// RunConfig holds per-orchestration-run behavior flags.
type RunConfig struct {
	Environment           string        `mapstructure:"environment"`
	ParallelLimit         int           `mapstructure:"parallel_limit"`
	BatchPause            time.Duration `mapstructure:"batch_pause"`
	DryRun                bool          `mapstructure:"dry_run"`
	SkipTests             bool          `mapstructure:"skip_tests"`
	EnableAutoRollback    bool          `mapstructure:"enable_auto_rollback"`
	EnableSharedResources bool          `mapstructure:"enable_shared_resources"`
	StateDir              string        `mapstructure:"state_dir"`
}

// PlatformConfig holds the credentials and endpoints the Platform
// Adapter needs. Values are sourced from environment variables via
// Viper's automatic env binding (CLOUDFLARE_API_TOKEN, etc.) rather
// than committed to a config file.
type PlatformConfig struct {
	APIToken     string `mapstructure:"api_token"`
	AccountID    string `mapstructure:"account_id"`
	ZoneID       string `mapstructure:"zone_id"`
	WranglerBin  string `mapstructure:"wrangler_bin"`
	APIBaseURL   string `mapstructure:"api_base_url"`
	ConfigPath   string `mapstructure:"config_path"`
	CustomerDir  string `mapstructure:"customer_config_dir"`
}

// PortfolioConfig is a map of domain-name overrides applied by the
// Domain Resolver (worker_name, database_name, zone_id, dependencies).
type PortfolioConfig map[string]DomainOverride

// DomainOverride mirrors domain.Overrides for config-file declaration,
// plus the per-environment CORS allow-list the Cross-Domain
// Coordinator's compatibility check consumes.
type DomainOverride struct {
	WorkerName   string              `mapstructure:"worker_name" yaml:"worker_name"`
	DatabaseName string              `mapstructure:"database_name" yaml:"database_name"`
	ZoneID       string              `mapstructure:"zone_id" yaml:"zone_id"`
	Dependencies []string            `mapstructure:"dependencies" yaml:"dependencies"`
	CORSOrigins  map[string][]string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// BackupConfig controls the create_state_backup subsystem.
type BackupConfig struct {
	Dir             string   `mapstructure:"dir"`
	IncludePlatform bool     `mapstructure:"include_platform"`
	ConfigFiles     []string `mapstructure:"config_files"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Colors   bool `mapstructure:"colors"`
	Progress bool `mapstructure:"progress"`
}

// Load reads configuration from file and environment variables.
func Load(cfgFile, projectDir string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".orchestrator")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/orchestrator")
		if projectDir != "" {
			v.AddConfigPath(projectDir)
		}
	}

	v.SetEnvPrefix("") // platform credentials use unprefixed, well-known names
	v.AutomaticEnv()
	bindPlatformEnvVars(v)

	setDefaults(v)

	if projectDir != "" {
		v.Set("run.state_dir", filepath.Join(projectDir, ".orchestrator-state"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if v.GetString("run.state_dir") == "" {
		root := detectProjectRoot()
		v.Set("run.state_dir", filepath.Join(root, ".orchestrator-state"))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	manifestDir := projectDir
	if manifestDir == "" {
		manifestDir = detectProjectRoot()
	}
	manifest, err := loadPortfolioManifest(filepath.Join(manifestDir, "domains.yaml"))
	if err != nil {
		return nil, fmt.Errorf("reading domains.yaml: %w", err)
	}
	mergePortfolio(&cfg, manifest)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// loadPortfolioManifest reads a standalone domains.yaml portfolio
// manifest, returning an empty PortfolioConfig if the file is absent.
// This is the authoring format for a portfolio too large to inline in
// .orchestrator.yaml.
func loadPortfolioManifest(path string) (PortfolioConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var manifest PortfolioConfig
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return manifest, nil
}

// mergePortfolio adds every domains.yaml entry not already declared in
// cfg.Portfolio (the .orchestrator.yaml `portfolio:` key always wins).
func mergePortfolio(cfg *Config, manifest PortfolioConfig) {
	if len(manifest) == 0 {
		return
	}
	if cfg.Portfolio == nil {
		cfg.Portfolio = make(PortfolioConfig, len(manifest))
	}
	for name, override := range manifest {
		if _, exists := cfg.Portfolio[name]; !exists {
			cfg.Portfolio[name] = override
		}
	}
}

// bindPlatformEnvVars wires the well-known Cloudflare-style credential
// env vars into their config keys explicitly, since AutomaticEnv alone
// only binds keys that have already been accessed once.
func bindPlatformEnvVars(v *viper.Viper) {
	v.BindEnv("platform.api_token", "CLOUDFLARE_API_TOKEN")
	v.BindEnv("platform.account_id", "CLOUDFLARE_ACCOUNT_ID")
	v.BindEnv("platform.zone_id", "CLOUDFLARE_ZONE_ID")
	v.BindEnv("run.environment", "ENVIRONMENT")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("run.environment", "production")
	v.SetDefault("run.parallel_limit", 3)
	v.SetDefault("run.batch_pause", 2*time.Second)
	v.SetDefault("run.dry_run", false)
	v.SetDefault("run.skip_tests", false)
	v.SetDefault("run.enable_auto_rollback", true)
	v.SetDefault("run.enable_shared_resources", true)

	v.SetDefault("platform.wrangler_bin", "wrangler")
	v.SetDefault("platform.api_base_url", "https://api.cloudflare.com/client/v4")
	v.SetDefault("platform.config_path", "wrangler.toml")
	v.SetDefault("platform.customer_config_dir", "configs/customers")

	v.SetDefault("backup.dir", "backups")
	v.SetDefault("backup.include_platform", true)
	v.SetDefault("backup.config_files", []string{"wrangler.toml", "package.json", ".env"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("output.colors", true)
	v.SetDefault("output.progress", true)
}

// detectProjectRoot walks up from the working directory looking for
// project markers.
func detectProjectRoot() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}

	dir := cwd
	for {
		if _, err := os.Stat(filepath.Join(dir, "wrangler.toml")); err == nil {
			return dir
		}
		if _, err := os.Stat(filepath.Join(dir, ".orchestrator.yaml")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return cwd
		}
		dir = parent
	}
}

// validate checks the configuration for internal consistency.
func validate(cfg *Config) error {
	validEnvironments := map[string]bool{"production": true, "staging": true, "development": true}
	if !validEnvironments[cfg.Run.Environment] {
		return fmt.Errorf("invalid run.environment: %s (must be production, staging, or development)", cfg.Run.Environment)
	}

	if cfg.Run.ParallelLimit < 1 || cfg.Run.ParallelLimit > 10 {
		return fmt.Errorf("invalid run.parallel_limit: %d (must be between 1 and 10)", cfg.Run.ParallelLimit)
	}

	if cfg.Run.BatchPause < 0 {
		return fmt.Errorf("invalid run.batch_pause: %s (must be >= 0)", cfg.Run.BatchPause)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", cfg.Logging.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s (must be text or json)", cfg.Logging.Format)
	}

	return nil
}

// RateLimitWarning reports whether parallel_limit exceeds the threshold
// at which concurrent platform API calls risk rate-limiting.
func (c *Config) RateLimitWarning() bool {
	return c.Run.ParallelLimit > 5
}

// CredentialChecker implements domain.CredentialChecker so the
// Domain Resolver can warn about missing platform credentials without
// importing the config package.
type CredentialChecker struct{ Cfg *Config }

func (c CredentialChecker) HasAPIToken() bool  { return c.Cfg.Platform.APIToken != "" }
func (c CredentialChecker) HasAccountID() bool { return c.Cfg.Platform.AccountID != "" }
func (c CredentialChecker) HasZoneID() bool    { return c.Cfg.Platform.ZoneID != "" }
