package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"regexp"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	orcherrors "github.com/alt-project/orchestrator/internal/errors"
)

// DeployResult is the outcome of a DeployWorker invocation, mirroring
// the {stdout, stderr, exit_code} shape every adapter call returns.
type DeployResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// HealthResult is the outcome of a single HealthCheck call.
type HealthResult struct {
	StatusCode      int
	ResponseTimeMS  int64
}

// Adapter is the capability set the orchestrator core consumes,
// to reach the managed platform. Every method is a suspension point and returns a
// classified *errors.Error on failure.
type Adapter interface {
	DatabaseExists(ctx context.Context, name string) (bool, error)
	CreateDatabase(ctx context.Context, name string) (string, error)
	GetDatabaseID(ctx context.Context, name string) (string, error)
	ApplyMigrations(ctx context.Context, databaseName, binding, environment string, remote bool) error
	PutSecret(ctx context.Context, scope, key, value, environment string) error
	DeleteSecret(ctx context.Context, key, environment string) error
	DeployWorker(ctx context.Context, environment, workingDir string) (DeployResult, error)
	DeleteWorker(ctx context.Context, name, environment string) error
	DeleteDatabase(ctx context.Context, name string) error
	ListWorkers(ctx context.Context) (string, error)
	ListSecrets(ctx context.Context) (string, error)
	HealthCheck(ctx context.Context, url string, timeout time.Duration) (HealthResult, error)
}

// workerURLPattern extracts the first https:// token from deploy
// output.
var workerURLPattern = regexp.MustCompile(`https://[^\s"']+`)

// ExtractWorkerURL returns the first URL-shaped token in output, or ""
// if none is present.
func ExtractWorkerURL(output string) string {
	return workerURLPattern.FindString(output)
}

// CloudflareAdapter implements Adapter against the Workers CLI for
// deploy/secret/migration operations and the managed-database HTTP API
// for database lifecycle operations. It is the one concrete Adapter the
// core ships; callers needing a different platform implement Adapter
// directly.
type CloudflareAdapter struct {
	exec       Executor
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	accountID  string
	apiToken   string
	logger     *slog.Logger
}

// CloudflareAdapterConfig configures a CloudflareAdapter.
type CloudflareAdapterConfig struct {
	BaseURL           string
	AccountID         string
	APIToken          string
	RequestsPerSecond float64
	Logger            *slog.Logger
}

// NewCloudflareAdapter constructs a CloudflareAdapter. exec runs the
// Workers CLI binary; the HTTP client talks to the managed-database API
// directly, rate-limited to avoid tripping the platform's own limits.
func NewCloudflareAdapter(exec Executor, cfg CloudflareAdapterConfig) *CloudflareAdapter {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	return &CloudflareAdapter{
		exec:       exec,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		baseURL:    cfg.BaseURL,
		accountID:  cfg.AccountID,
		apiToken:   cfg.APIToken,
		logger:     cfg.Logger,
	}
}

type dbListResponse struct {
	Result []struct {
		UUID string `json:"uuid"`
		Name string `json:"name"`
	} `json:"result"`
	Success bool `json:"success"`
}

type dbCreateResponse struct {
	Result struct {
		UUID string `json:"uuid"`
	} `json:"result"`
	Success bool `json:"success"`
}

// apiRequest performs one rate-limited HTTP round trip against the
// managed-database API and returns the raw body or a classified error.
func (a *CloudflareAdapter) apiRequest(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, orcherrors.Wrap(orcherrors.KindCancelled, err, "rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, orcherrors.Wrap(orcherrors.KindTransport, err, "building request")
	}
	req.Header.Set("Authorization", "Bearer "+a.apiToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, orcherrors.Wrap(orcherrors.KindTransport, err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, orcherrors.Wrap(orcherrors.KindTransport, err, "reading response body")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, orcherrors.New(orcherrors.KindNotFound, "%s %s: not found", method, path)
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return nil, orcherrors.New(orcherrors.KindCredential, "%s %s: %d", method, path, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, orcherrors.New(orcherrors.KindRateLimited, "%s %s: rate limited", method, path)
	case resp.StatusCode >= 500:
		return nil, orcherrors.New(orcherrors.KindTransport, "%s %s: server error %d", method, path, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, orcherrors.New(orcherrors.KindValidation, "%s %s: %d: %s", method, path, resp.StatusCode, string(data))
	}

	return data, nil
}

func (a *CloudflareAdapter) databasesPath() string {
	return fmt.Sprintf("/accounts/%s/d1/database", a.accountID)
}

// DatabaseExists reports whether a managed database with name exists.
func (a *CloudflareAdapter) DatabaseExists(ctx context.Context, name string) (bool, error) {
	_, err := a.GetDatabaseID(ctx, name)
	if err != nil {
		if orcherrors.Is(err, orcherrors.KindNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetDatabaseID looks up the database ID for a managed database by name.
func (a *CloudflareAdapter) GetDatabaseID(ctx context.Context, name string) (string, error) {
	data, err := a.apiRequest(ctx, http.MethodGet, a.databasesPath()+"?name="+name, nil)
	if err != nil {
		return "", err
	}
	var resp dbListResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", orcherrors.Wrap(orcherrors.KindTransport, err, "parsing database list response")
	}
	for _, db := range resp.Result {
		if db.Name == name {
			return db.UUID, nil
		}
	}
	return "", orcherrors.New(orcherrors.KindNotFound, "database %q not found", name)
}

// CreateDatabase provisions a new managed database.
func (a *CloudflareAdapter) CreateDatabase(ctx context.Context, name string) (string, error) {
	payload, _ := json.Marshal(map[string]string{"name": name})
	data, err := a.apiRequest(ctx, http.MethodPost, a.databasesPath(), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	var resp dbCreateResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", orcherrors.Wrap(orcherrors.KindTransport, err, "parsing database create response")
	}
	return resp.Result.UUID, nil
}

// DeleteDatabase removes a managed database by name.
func (a *CloudflareAdapter) DeleteDatabase(ctx context.Context, name string) error {
	id, err := a.GetDatabaseID(ctx, name)
	if err != nil {
		return err
	}
	_, err = a.apiRequest(ctx, http.MethodDelete, a.databasesPath()+"/"+id, nil)
	return err
}

// ApplyMigrations shells out to the Workers CLI to apply pending
// migrations for the given binding and environment.
func (a *CloudflareAdapter) ApplyMigrations(ctx context.Context, databaseName, binding, environment string, remote bool) error {
	args := []string{"d1", "migrations", "apply", databaseName, "--env", environment}
	if remote {
		args = append(args, "--remote")
	}
	_, _, err := a.exec.Run(ctx, "", args)
	if err != nil {
		return orcherrors.Wrap(orcherrors.KindTransport, err, "applying migrations for binding %s", binding)
	}
	return nil
}

// PutSecret uploads a secret value via the Workers CLI. scope names the
// logical secret group for audit purposes; only key/value are sent.
func (a *CloudflareAdapter) PutSecret(ctx context.Context, scope, key, value, environment string) error {
	args := []string{"secret", "put", key, "--env", environment}
	_, _, err := a.exec.Run(ctx, "", args)
	if err != nil {
		return orcherrors.Wrap(orcherrors.KindTransport, err, "putting secret %s (scope %s)", key, scope)
	}
	return nil
}

// DeleteSecret removes a secret via the Workers CLI.
func (a *CloudflareAdapter) DeleteSecret(ctx context.Context, key, environment string) error {
	_, _, err := a.exec.Run(ctx, "", []string{"secret", "delete", key, "--env", environment})
	if err != nil {
		return orcherrors.Wrap(orcherrors.KindTransport, err, "deleting secret %s", key)
	}
	return nil
}

// RunCustomCommand shells out to an operator-supplied rollback hook.
// Unlike the other Adapter methods, which all target the Workers CLI
// binary, a custom-command rollback action names its own executable, so
// this bypasses Executor and calls os/exec directly.
func (a *CloudflareAdapter) RunCustomCommand(ctx context.Context, command string, args []string) error {
	cmd := exec.CommandContext(ctx, command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return orcherrors.Wrap(orcherrors.KindTransport, err, "running custom rollback command %s: %s", command, stderr.String())
	}
	return nil
}

// DeployWorker shells out to the Workers CLI deploy command.
func (a *CloudflareAdapter) DeployWorker(ctx context.Context, environment, workingDir string) (DeployResult, error) {
	stdout, stderr, err := a.exec.Run(ctx, workingDir, []string{"deploy", "--env", environment})
	if err != nil {
		return DeployResult{Stdout: stdout, Stderr: stderr, ExitCode: 1}, orcherrors.Wrap(orcherrors.KindTransport, err, "deploying worker")
	}
	return DeployResult{Stdout: stdout, Stderr: stderr, ExitCode: 0}, nil
}

// DeleteWorker removes a deployed worker via the Workers CLI.
func (a *CloudflareAdapter) DeleteWorker(ctx context.Context, name, environment string) error {
	_, _, err := a.exec.Run(ctx, "", []string{"delete", "--name", name, "--env", environment})
	if err != nil {
		return orcherrors.Wrap(orcherrors.KindTransport, err, "deleting worker %s", name)
	}
	return nil
}

// ListWorkers returns a textual listing of deployed workers.
func (a *CloudflareAdapter) ListWorkers(ctx context.Context) (string, error) {
	stdout, _, err := a.exec.Run(ctx, "", []string{"deployments", "list"})
	if err != nil {
		return "", orcherrors.Wrap(orcherrors.KindTransport, err, "listing workers")
	}
	return stdout, nil
}

// ListSecrets returns a textual listing of configured secrets. Values
// are never captured, only keys.
func (a *CloudflareAdapter) ListSecrets(ctx context.Context) (string, error) {
	stdout, _, err := a.exec.Run(ctx, "", []string{"secret", "list"})
	if err != nil {
		return "", orcherrors.Wrap(orcherrors.KindTransport, err, "listing secrets")
	}
	return stdout, nil
}

// HealthCheck performs a single GET against url with the given timeout.
func (a *CloudflareAdapter) HealthCheck(ctx context.Context, url string, timeout time.Duration) (HealthResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return HealthResult{}, orcherrors.Wrap(orcherrors.KindTransport, err, "building health check request")
	}

	resp, err := a.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return HealthResult{}, orcherrors.Wrap(orcherrors.KindTimeout, err, "health check timed out after %s", timeout)
		}
		return HealthResult{}, orcherrors.Wrap(orcherrors.KindTransport, err, "health check request failed")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return HealthResult{StatusCode: resp.StatusCode, ResponseTimeMS: elapsed.Milliseconds()}, nil
}
