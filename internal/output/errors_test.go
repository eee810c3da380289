package output

import (
	"bytes"
	"strings"
	"testing"

	orcherrors "github.com/alt-project/orchestrator/internal/errors"
)

func TestCLIError_Error(t *testing.T) {
	err := &CLIError{
		Summary:    "something failed",
		Detail:     "because of reasons",
		Suggestion: "try again",
		ExitCode:   ExitGeneral,
	}

	if err.Error() != "something failed" {
		t.Errorf("Error() = %q, want %q", err.Error(), "something failed")
	}
}

func TestFormatError_AllFields(t *testing.T) {
	var stderr bytes.Buffer
	p := NewPrinterWithOptions(PrinterOptions{
		ColorMode:    ColorNever,
		ConfigColors: false,
	})
	p.err = &stderr

	cliErr := &CLIError{
		Summary:    "unknown domain: foo.example.com",
		Detail:     "domain 'foo.example.com' is not in the portfolio",
		Suggestion: "Run 'orchestrator list' to see available domains",
		ExitCode:   ExitUsageError,
	}

	p.FormatError(cliErr)

	out := stderr.String()
	if !strings.Contains(out, "unknown domain: foo.example.com") {
		t.Errorf("missing summary in output: %q", out)
	}
	if !strings.Contains(out, "domain 'foo.example.com' is not in the portfolio") {
		t.Errorf("missing detail in output: %q", out)
	}
	if !strings.Contains(out, "Run 'orchestrator list' to see available domains") {
		t.Errorf("missing suggestion in output: %q", out)
	}
}

func TestFormatError_NoDetail(t *testing.T) {
	var stderr bytes.Buffer
	p := NewPrinterWithOptions(PrinterOptions{
		ColorMode:    ColorNever,
		ConfigColors: false,
	})
	p.err = &stderr

	cliErr := &CLIError{
		Summary:    "config file not found",
		Suggestion: "Check .orchestrator.yaml syntax or use --config flag",
		ExitCode:   ExitInvalidConfig,
	}

	p.FormatError(cliErr)

	out := stderr.String()
	if !strings.Contains(out, "config file not found") {
		t.Errorf("missing summary in output: %q", out)
	}
	if strings.Contains(out, "Cause:") {
		t.Errorf("should not contain Cause line when Detail is empty: %q", out)
	}
	if !strings.Contains(out, "Check .orchestrator.yaml syntax or use --config flag") {
		t.Errorf("missing suggestion in output: %q", out)
	}
}

func TestExitCodes(t *testing.T) {
	// Verify exit code constants match the orchestrator's exit surface.
	cases := map[string]int{
		"ExitSuccess": ExitSuccess, "ExitGeneral": ExitGeneral, "ExitUsageError": ExitUsageError,
		"ExitInvalidConfig": ExitInvalidConfig, "ExitCredentialError": ExitCredentialError,
		"ExitNotFound": ExitNotFound, "ExitTimeout": ExitTimeout, "ExitValidationError": ExitValidationError,
	}
	want := map[string]int{
		"ExitSuccess": 0, "ExitGeneral": 1, "ExitUsageError": 2, "ExitInvalidConfig": 3,
		"ExitCredentialError": 4, "ExitNotFound": 5, "ExitTimeout": 7, "ExitValidationError": 8,
	}
	for name, got := range cases {
		if got != want[name] {
			t.Errorf("%s = %d, want %d", name, got, want[name])
		}
	}
}

func TestExitCodeForKind(t *testing.T) {
	cases := []struct {
		kind orcherrors.Kind
		want int
	}{
		{orcherrors.KindValidation, ExitValidationError},
		{orcherrors.KindCredential, ExitCredentialError},
		{orcherrors.KindNotFound, ExitNotFound},
		{orcherrors.KindTimeout, ExitTimeout},
		{orcherrors.KindTransport, ExitGeneral},
	}
	for _, c := range cases {
		if got := ExitCodeForKind(c.kind); got != c.want {
			t.Errorf("ExitCodeForKind(%s) = %d, want %d", c.kind, got, c.want)
		}
	}
}
