// Package ids generates the deterministic, parseable identifiers used
// throughout an orchestration run: orchestration_id and deployment_id.
package ids

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// timestampToken renders t as an ISO8601-like string with ':', '.' and
// '+' replaced by '-' so it is safe to embed in a filename or identifier.
func timestampToken(t time.Time) string {
	s := t.UTC().Format(time.RFC3339Nano)
	s = strings.NewReplacer(":", "-", ".", "-", "+", "-").Replace(s)
	return s
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating random suffix: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// NewOrchestrationID returns an identifier of the form
// "orchestration-<timestamp>-<12 hex>".
func NewOrchestrationID(now time.Time) (string, error) {
	suffix, err := randomHex(6) // 6 bytes = 12 hex chars
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("orchestration-%s-%s", timestampToken(now), suffix), nil
}

// NewDeploymentID returns an identifier of the form
// "deploy-<domain>-<timestamp>-<8 hex>".
func NewDeploymentID(domain string, now time.Time) (string, error) {
	suffix, err := randomHex(4) // 4 bytes = 8 hex chars
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("deploy-%s-%s-%s", domain, timestampToken(now), suffix), nil
}

// timestampTokenPattern matches the shape produced by timestampToken:
// an RFC3339Nano timestamp with ':', '.', '+' replaced by '-'.
const timestampTokenPattern = `\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}(?:-\d+)?Z`

var (
	orchestrationIDPattern = regexp.MustCompile(`^orchestration-(` + timestampTokenPattern + `)-([0-9a-f]{12})$`)
	deploymentIDPattern    = regexp.MustCompile(`^deploy-(.+)-(` + timestampTokenPattern + `)-([0-9a-f]{8})$`)
)

// ParsedOrchestrationID holds the structural components of an orchestration_id.
type ParsedOrchestrationID struct {
	Timestamp string
	Random    string
}

// ParseOrchestrationID parses an orchestration_id back into its components.
func ParseOrchestrationID(id string) (ParsedOrchestrationID, error) {
	m := orchestrationIDPattern.FindStringSubmatch(id)
	if m == nil {
		return ParsedOrchestrationID{}, fmt.Errorf("malformed orchestration_id: %q", id)
	}
	return ParsedOrchestrationID{Timestamp: m[1], Random: m[2]}, nil
}

// ParsedDeploymentID holds the structural components of a deployment_id.
type ParsedDeploymentID struct {
	Domain    string
	Timestamp string
	Random    string
}

// ParseDeploymentID parses a deployment_id back into its components.
func ParseDeploymentID(id string) (ParsedDeploymentID, error) {
	m := deploymentIDPattern.FindStringSubmatch(id)
	if m == nil {
		return ParsedDeploymentID{}, fmt.Errorf("malformed deployment_id: %q", id)
	}
	return ParsedDeploymentID{Domain: m[1], Timestamp: m[2], Random: m[3]}, nil
}
