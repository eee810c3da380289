package secrets

import (
	"context"
	"errors"
	"testing"
)

type fakePutter struct {
	puts    []put
	failAt  string
}

type put struct {
	scope, key, value, environment string
}

func (f *fakePutter) PutSecret(ctx context.Context, scope, key, value, environment string) error {
	if key == f.failAt {
		return errors.New("rate limited")
	}
	f.puts = append(f.puts, put{scope, key, value, environment})
	return nil
}

func TestGenerateSecretsUploadsEveryKey(t *testing.T) {
	fake := &fakePutter{}
	g := NewGenerator(fake, "A", "B", "C")

	names, err := g.GenerateSecrets(context.Background(), "api.example.com", "production")
	if err != nil {
		t.Fatalf("GenerateSecrets failed: %v", err)
	}
	if len(names) != 3 {
		t.Fatalf("expected 3 names, got %d: %v", len(names), names)
	}
	if len(fake.puts) != 3 {
		t.Fatalf("expected 3 PutSecret calls, got %d", len(fake.puts))
	}
	for _, p := range fake.puts {
		if p.scope != "api.example.com" || p.environment != "production" {
			t.Errorf("unexpected put %+v", p)
		}
		if p.value == "" {
			t.Error("expected a non-empty generated value")
		}
	}
}

func TestGenerateSecretsValuesAreDistinct(t *testing.T) {
	fake := &fakePutter{}
	g := NewGenerator(fake, "A", "B")

	if _, err := g.GenerateSecrets(context.Background(), "d", "production"); err != nil {
		t.Fatalf("GenerateSecrets failed: %v", err)
	}
	if fake.puts[0].value == fake.puts[1].value {
		t.Error("expected distinct random values per key")
	}
}

func TestGenerateSecretsStopsOnFirstFailure(t *testing.T) {
	fake := &fakePutter{failAt: "B"}
	g := NewGenerator(fake, "A", "B", "C")

	names, err := g.GenerateSecrets(context.Background(), "d", "production")
	if err == nil {
		t.Fatal("expected an error when PutSecret fails")
	}
	if len(names) != 1 || names[0] != "A" {
		t.Fatalf("expected partial names [A], got %v", names)
	}
}

func TestNewGeneratorDefaultsToDefaultKeys(t *testing.T) {
	fake := &fakePutter{}
	g := NewGenerator(fake)
	if len(g.Keys) != len(DefaultKeys) {
		t.Fatalf("expected %d default keys, got %d", len(DefaultKeys), len(g.Keys))
	}
}
