package domain

import (
	"strings"
	"testing"
)

func TestResolve_Defaults(t *testing.T) {
	r := NewResolver()

	cfg, err := r.Resolve("api.example.com", Overrides{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if cfg.CleanName != "api-example-com" {
		t.Errorf("expected clean_name 'api-example-com', got %q", cfg.CleanName)
	}
	if cfg.WorkerName != "api-example-com-data-service" {
		t.Errorf("expected default worker_name, got %q", cfg.WorkerName)
	}
	if cfg.Environments.Production != "https://api.example.com" {
		t.Errorf("unexpected production URL: %q", cfg.Environments.Production)
	}
}

func TestResolve_IsCached(t *testing.T) {
	r := NewResolver()

	first, err := r.Resolve("api.example.com", Overrides{WorkerName: "custom-worker"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// Second call with different overrides must return the cached value,
	// proving Resolve is cached by domain name.
	second, err := r.Resolve("api.example.com", Overrides{WorkerName: "other-worker"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if first != second {
		t.Fatalf("expected cached pointer identity")
	}
	if second.WorkerName != "custom-worker" {
		t.Errorf("expected cached worker_name 'custom-worker', got %q", second.WorkerName)
	}
}

func TestResolve_MalformedDomain(t *testing.T) {
	r := NewResolver()

	cases := []string{
		"",
		"-leading-hyphen.com",
		"no_underscores_allowed.com",
		"UPPERCASE.COM",
		"single-label",
		"münchen.de", // internationalized domain names are not accepted
	}

	for _, domain := range cases {
		if _, err := r.Resolve(domain, Overrides{}); err == nil {
			t.Errorf("expected Resolve(%q) to fail", domain)
		}
	}
}

func TestResolve_InvalidOverrideChars(t *testing.T) {
	r := NewResolver()
	if _, err := r.Resolve("api.example.com", Overrides{WorkerName: "Has_Underscore"}); err == nil {
		t.Error("expected error for worker_name override with invalid characters")
	}
}

func TestValidatePrerequisites_MalformedIsIssue(t *testing.T) {
	r := NewResolver()
	result := r.ValidatePrerequisites("not a domain")
	if result.Valid {
		t.Fatal("expected invalid result for malformed domain")
	}
	if len(result.Issues) == 0 {
		t.Error("expected at least one issue")
	}
}

func TestValidatePrerequisites_LoopbackIsWarningNotIssue(t *testing.T) {
	r := NewResolver()
	result := r.ValidatePrerequisites("localhost")
	if !result.Valid {
		t.Error("loopback literal must not fail validation")
	}
	if len(result.Warnings) == 0 {
		t.Error("expected a warning for loopback literal")
	}
}

type fakeCredentials struct {
	token, account, zone bool
}

func (f fakeCredentials) HasAPIToken() bool  { return f.token }
func (f fakeCredentials) HasAccountID() bool { return f.account }
func (f fakeCredentials) HasZoneID() bool    { return f.zone }

func TestValidatePrerequisites_MissingCredentialsAreWarnings(t *testing.T) {
	r := NewResolver(WithCredentialChecker(fakeCredentials{}))
	result := r.ValidatePrerequisites("api.example.com")
	if !result.Valid {
		t.Error("missing credentials must not fail validation")
	}
	// Three credential warnings, plus the ambiguous-root warning every
	// domain of more than two labels gets when no suffix list is set.
	if len(result.Warnings) != 4 {
		t.Errorf("expected 3 credential warnings and 1 ambiguous-root warning, got %d: %v", len(result.Warnings), result.Warnings)
	}
}

func TestValidatePrerequisites_SkipPattern(t *testing.T) {
	r := NewResolver(WithSkipSubdomainPatterns([]string{"*.workers.dev"}))
	result := r.ValidatePrerequisites("myworker.workers.dev")
	if !result.Valid {
		t.Error("skip pattern match must not fail validation")
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "matches skip pattern") {
			found = true
		}
	}
	if !found || len(result.Warnings) == 0 {
		t.Error("expected a skip-pattern warning")
	}
}

func TestRootLabels_AmbiguousWithoutSuffixList(t *testing.T) {
	r := NewResolver()
	result := r.ValidatePrerequisites("shop.example.co.uk")
	foundAmbiguous := false
	for _, w := range result.Warnings {
		if w == `"shop.example.co.uk" has an ambiguous root under the configured suffix rules` {
			foundAmbiguous = true
		}
	}
	if !foundAmbiguous {
		t.Error("expected ambiguous-root warning without a public suffix list")
	}
}

func TestRootLabels_ResolvedWithSuffixList(t *testing.T) {
	r := NewResolver(WithPublicSuffixList([]string{"co.uk"}))
	result := r.ValidatePrerequisites("shop.example.co.uk")
	for _, w := range result.Warnings {
		if w == `"shop.example.co.uk" has an ambiguous root under the configured suffix rules` {
			t.Error("suffix list should have resolved the ambiguity")
		}
	}
}

func TestResolveMany(t *testing.T) {
	r := NewResolver()
	resolved, err := r.ResolveMany([]string{"a.example.com", "b.example.com"}, nil)
	if err != nil {
		t.Fatalf("ResolveMany failed: %v", err)
	}
	if len(resolved) != 2 {
		t.Fatalf("expected 2 resolved domains, got %d", len(resolved))
	}
}
