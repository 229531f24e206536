package exitcode

import (
	"os"
	"strings"

	"github.com/felixgeelhaar/phaseflow/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// PersistenceFailure indicates a missing, corrupt or stale state file
	PersistenceFailure = 3

	// DependencyViolation indicates a phase started out of order or a cyclic task graph
	DependencyViolation = 4

	// Escalated indicates a phase exhausted its retries and needs a decision
	Escalated = 5

	// Aborted indicates the run was aborted
	Aborted = 6

	// Interrupted indicates the user cancelled the command
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	Exit(DetermineExitCode(err))
}

// DetermineExitCode maps an error to an exit code, preferring the code of a
// PhaseflowError in the chain and falling back to message inspection for
// cobra usage errors.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	switch code := errors.CodeOf(err); {
	case code == "":
	case code.Category() == "PERSIST":
		return PersistenceFailure
	case code.Category() == "DEPEND", code.Category() == "ROUTING":
		return DependencyViolation
	case code == errors.ErrCodeRunAborted:
		return Aborted
	case code.Category() == "VALIDATION", code.Category() == "QUALITY":
		return Escalated
	case code.Category() == "SETUP":
		return UsageError
	default:
		return GeneralError
	}

	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "unknown command") || strings.Contains(errMsg, "unknown flag") ||
		strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "accepts") {
		return UsageError
	}

	return GeneralError
}

// Description returns a human-readable description of an exit code
func Description(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags, arguments or task input)"
	case PersistenceFailure:
		return "Workflow state missing, corrupt or stale"
	case DependencyViolation:
		return "Dependency violation"
	case Escalated:
		return "Phase escalated after exhausting retries"
	case Aborted:
		return "Run aborted"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
