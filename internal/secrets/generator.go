// Package secrets implements the Secret Manager: generating the
// per-(domain, environment) secret set the deployment phase's secrets
// step needs and distributing it via the Platform Adapter. Generated
// values are never returned to callers, only the key names, matching
// the redaction requirement that secret values never appear in
// persisted state, audit entries, or log output.
package secrets

import (
	"context"
	"crypto/rand"
	"encoding/base64"

	orcherrors "github.com/alt-project/orchestrator/internal/errors"
)

// DefaultKeys is the fixed set of secret names generated for every
// domain absent an override.
var DefaultKeys = []string{"API_SECRET", "JWT_SECRET", "SESSION_SECRET"}

// valueLength is the byte length of each generated secret before
// base64 encoding.
const valueLength = 32

// Putter is the narrow slice of the Platform Adapter the Secret Manager
// needs to upload a generated value.
type Putter interface {
	PutSecret(ctx context.Context, scope, key, value, environment string) error
}

// Generator implements phase.SecretGenerator: it produces a fresh
// cryptographically random value per key and uploads each via Putter.
type Generator struct {
	Adapter Putter
	Keys    []string
}

// NewGenerator constructs a Generator. When keys is empty, DefaultKeys
// is used.
func NewGenerator(adapter Putter, keys ...string) *Generator {
	if len(keys) == 0 {
		keys = DefaultKeys
	}
	return &Generator{Adapter: adapter, Keys: keys}
}

// GenerateSecrets produces and uploads one value per configured key for
// (domainName, environment), returning the key names that were
// successfully uploaded. On failure it returns the names uploaded so
// far alongside the error so the caller can still record partial
// rollback actions for what did get created.
func (g *Generator) GenerateSecrets(ctx context.Context, domainName, environment string) ([]string, error) {
	names := make([]string, 0, len(g.Keys))
	for _, key := range g.Keys {
		value, err := randomValue(valueLength)
		if err != nil {
			return names, orcherrors.Wrap(orcherrors.KindPersistence, err, "generating secret %s", key)
		}
		if err := g.Adapter.PutSecret(ctx, domainName, key, value, environment); err != nil {
			return names, err
		}
		names = append(names, key)
	}
	return names, nil
}

// randomValue returns a URL-safe base64 string encoding n
// cryptographically random bytes.
func randomValue(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
