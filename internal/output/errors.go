package output

import (
	"fmt"

	"github.com/fatih/color"

	orcherrors "github.com/alt-project/orchestrator/internal/errors"
)

// Exit code constants, per the orchestrator's exit surface.
const (
	ExitSuccess         = 0
	ExitGeneral         = 1
	ExitUsageError      = 2
	ExitInvalidConfig   = 3
	ExitCredentialError = 4
	ExitNotFound        = 5
	ExitTimeout         = 7
	ExitValidationError = 8
)

// ExitCodeForKind maps an error taxonomy Kind to the program's exit
// surface. Kinds with no direct exit code (e.g. RateLimited,
// CircularDependency) fall back to ExitGeneral.
func ExitCodeForKind(kind orcherrors.Kind) int {
	switch kind {
	case orcherrors.KindValidation:
		return ExitValidationError
	case orcherrors.KindCredential:
		return ExitCredentialError
	case orcherrors.KindNotFound:
		return ExitNotFound
	case orcherrors.KindTimeout:
		return ExitTimeout
	default:
		return ExitGeneral
	}
}

// CLIError is a structured error with user-facing context
type CLIError struct {
	Summary    string
	Detail     string
	Suggestion string
	ExitCode   int
}

// Error implements the error interface, returning the summary
func (e *CLIError) Error() string {
	return e.Summary
}

// FormatError prints a structured error message to stderr
func (p *Printer) FormatError(e *CLIError) {
	if p.useColors {
		color.New(color.FgRed, color.Bold).Fprintf(p.err, "Error: %s\n", e.Summary)
		if e.Detail != "" {
			fmt.Fprintf(p.err, "  Cause: %s\n", e.Detail)
		}
		if e.Suggestion != "" {
			color.New(color.FgCyan).Fprintf(p.err, "  Suggestion: %s\n", e.Suggestion)
		}
	} else {
		fmt.Fprintf(p.err, "[ERROR] %s\n", e.Summary)
		if e.Detail != "" {
			fmt.Fprintf(p.err, "  Cause: %s\n", e.Detail)
		}
		if e.Suggestion != "" {
			fmt.Fprintf(p.err, "  Suggestion: %s\n", e.Suggestion)
		}
	}
}
