// Package domain provides pure, deterministic derivation of a
// DomainConfig from a domain name plus format validation and caching.
package domain

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// domainPattern enforces the expected domain-name format. It rejects
// internationalized domain names (non-ASCII labels) by construction:
// the character class only admits [a-z0-9-].
var domainPattern = regexp.MustCompile(
	`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)+$`,
)

var cleanNamePattern = regexp.MustCompile(`[^a-z0-9-]+`)

var nameCharPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// loopbackLiterals produce a validation warning, not a failure.
var loopbackLiterals = map[string]bool{
	"localhost": true,
}

// Config is the resolved, immutable configuration for a single domain.
type Config struct {
	Name         string
	CleanName    string
	WorkerName   string
	DatabaseName string
	Environments EnvironmentURLs
	ZoneID       string
	Dependencies []string
}

// EnvironmentURLs holds the per-environment subdomain URLs derived from
// a domain name.
type EnvironmentURLs struct {
	Production  string
	Staging     string
	Development string
}

// Overrides lets a caller customize the derived names before they are
// cached. Zero-valued fields fall back to the deterministic default.
type Overrides struct {
	WorkerName   string
	DatabaseName string
	ZoneID       string
	Dependencies []string
}

// ValidationResult is returned by ValidatePrerequisites.
type ValidationResult struct {
	Valid    bool
	Issues   []string
	Warnings []string
}

// CredentialChecker reports which well-known platform credentials are
// currently configured. A missing credential is a pre-deployment
// warning, never a hard failure.
type CredentialChecker interface {
	HasAPIToken() bool
	HasAccountID() bool
	HasZoneID() bool
}

// Resolver derives and caches DomainConfig values.
type Resolver struct {
	mu                    sync.Mutex
	cache                 map[string]*Config
	publicSuffixes        map[string]bool
	skipSubdomainPatterns []string
	credentials           CredentialChecker
}

// Option configures a Resolver at construction time.
type Option func(*Resolver)

// WithPublicSuffixList supplies a suffix list for resolving multi-label
// TLDs precisely. Absent a list, the resolver falls back to a
// last-two-labels heuristic and reports rather than guesses.
func WithPublicSuffixList(suffixes []string) Option {
	return func(r *Resolver) {
		for _, s := range suffixes {
			r.publicSuffixes[strings.ToLower(s)] = true
		}
	}
}

// WithSkipSubdomainPatterns supplies glob-style patterns (e.g.
// "*.workers.dev") identifying synthetic subdomains to flag. The core
// never hardcodes a specific provider string.
func WithSkipSubdomainPatterns(patterns []string) Option {
	return func(r *Resolver) { r.skipSubdomainPatterns = patterns }
}

// WithCredentialChecker supplies the credential-presence check used by
// ValidatePrerequisites.
func WithCredentialChecker(c CredentialChecker) Option {
	return func(r *Resolver) { r.credentials = c }
}

// NewResolver creates a Resolver with the given options applied.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		cache:          make(map[string]*Config),
		publicSuffixes: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve derives a Config for domain, applying overrides and caching
// the result by domain name. Resolve is idempotent and side-effect-free.
func (r *Resolver) Resolve(domain string, overrides Overrides) (*Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cfg, ok := r.cache[domain]; ok {
		return cfg, nil
	}

	if !domainPattern.MatchString(domain) {
		return nil, fmt.Errorf("malformed domain: %q", domain)
	}

	clean := cleanName(domain)

	workerName := overrides.WorkerName
	if workerName == "" {
		workerName = clean + "-data-service"
	} else if !nameCharPattern.MatchString(workerName) {
		return nil, fmt.Errorf("worker_name override %q must match [a-z0-9-]+", workerName)
	}

	databaseName := overrides.DatabaseName
	if databaseName != "" && !nameCharPattern.MatchString(databaseName) {
		return nil, fmt.Errorf("database_name override %q must match [a-z0-9-]+", databaseName)
	}

	cfg := &Config{
		Name:         domain,
		CleanName:    clean,
		WorkerName:   workerName,
		DatabaseName: databaseName,
		Environments: deriveEnvironmentURLs(domain),
		ZoneID:       overrides.ZoneID,
		Dependencies: append([]string(nil), overrides.Dependencies...),
	}

	r.cache[domain] = cfg
	return cfg, nil
}

// ResolveMany resolves every domain in domains, stopping at the first error.
func (r *Resolver) ResolveMany(domains []string, overrides map[string]Overrides) (map[string]*Config, error) {
	result := make(map[string]*Config, len(domains))
	for _, d := range domains {
		cfg, err := r.Resolve(d, overrides[d])
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", d, err)
		}
		result[d] = cfg
	}
	return result, nil
}

// ValidatePrerequisites checks domain format plus pre-deployment
// warnings (missing credentials, loopback literals). It never mutates
// the cache and never fails solely on a missing credential.
func (r *Resolver) ValidatePrerequisites(domain string) ValidationResult {
	var result ValidationResult
	result.Valid = true

	isLoopback := loopbackLiterals[strings.ToLower(domain)]
	if !isLoopback && !domainPattern.MatchString(domain) {
		result.Valid = false
		result.Issues = append(result.Issues, fmt.Sprintf("malformed domain: %q", domain))
	}

	if isLoopback {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%q is a loopback literal", domain))
	}

	if matched, pattern := r.matchesSkipPattern(domain); matched {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%q matches skip pattern %q", domain, pattern))
	}

	if r.credentials != nil {
		if !r.credentials.HasAPIToken() {
			result.Warnings = append(result.Warnings, "missing platform API token")
		}
		if !r.credentials.HasAccountID() {
			result.Warnings = append(result.Warnings, "missing platform account ID")
		}
		if !r.credentials.HasZoneID() {
			result.Warnings = append(result.Warnings, "missing zone ID")
		}
	}

	if _, ambiguous := r.rootLabels(domain); ambiguous {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%q has an ambiguous root under the configured suffix rules", domain))
	}

	return result
}

func (r *Resolver) matchesSkipPattern(domain string) (bool, string) {
	for _, pattern := range r.skipSubdomainPatterns {
		if ok, _ := matchGlob(pattern, domain); ok {
			return true, pattern
		}
	}
	return false, ""
}

// rootLabels reports the registrable root domain and whether the
// result is ambiguous because no configured public suffix matched and
// the domain has more than two labels under what might be a
// multi-segment TLD (e.g. a two-label country-code second-level
// domain).
func (r *Resolver) rootLabels(domain string) (root string, ambiguous bool) {
	labels := strings.Split(domain, ".")
	if len(r.publicSuffixes) > 0 {
		for i := range labels {
			candidate := strings.Join(labels[i:], ".")
			if r.publicSuffixes[candidate] {
				if i == 0 {
					return domain, false
				}
				return strings.Join(labels[i-1:], "."), false
			}
		}
	}
	if len(labels) <= 2 {
		return domain, false
	}
	// More than two labels and no suffix list resolved it: behavior is
	// ambiguous, so report rather than guess.
	return strings.Join(labels[len(labels)-2:], "."), true
}

func cleanName(domain string) string {
	lower := strings.ToLower(domain)
	return cleanNamePattern.ReplaceAllString(lower, "-")
}

func deriveEnvironmentURLs(domain string) EnvironmentURLs {
	return EnvironmentURLs{
		Production:  "https://" + domain,
		Staging:     "https://staging." + domain,
		Development: "https://dev." + domain,
	}
}

// matchGlob implements the small subset of glob syntax ("*" only)
// needed for skip-pattern matching, avoiding a dependency for a single
// wildcard character.
func matchGlob(pattern, s string) (bool, error) {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == s, nil
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false, nil
	}
	rest := s[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(rest, part)
		if idx < 0 {
			return false, nil
		}
		rest = rest[idx+len(part):]
	}
	return strings.HasSuffix(rest, parts[len(parts)-1]), nil
}
