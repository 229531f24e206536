package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Setup errors (SETUP-001 to SETUP-099)
	ErrCodeSetupNoTasks     ErrorCode = "SETUP-001"
	ErrCodeSetupInvalidTask ErrorCode = "SETUP-002"
	ErrCodeSetupExists      ErrorCode = "SETUP-003"

	// Recoverable worker response failures (VALIDATION / QUALITY)
	ErrCodeValidationFailure ErrorCode = "VALIDATION-001"
	ErrCodeQualityFailure    ErrorCode = "QUALITY-001"

	// Persistence errors (PERSIST-001 to PERSIST-099)
	ErrCodeStateMissing     ErrorCode = "PERSIST-001"
	ErrCodeStateCorrupt     ErrorCode = "PERSIST-002"
	ErrCodeStateStale       ErrorCode = "PERSIST-003"
	ErrCodeVersionConflict  ErrorCode = "PERSIST-004"
	ErrCodeLeaseHeld        ErrorCode = "PERSIST-005"
	ErrCodeStateWriteFailed ErrorCode = "PERSIST-006"

	// Dependency errors (DEPEND-001 to DEPEND-099)
	ErrCodePrerequisites   ErrorCode = "DEPEND-001"
	ErrCodeDependencyCycle ErrorCode = "DEPEND-002"
	ErrCodeUnknownPhase    ErrorCode = "DEPEND-003"
	ErrCodeIllegalStatus   ErrorCode = "DEPEND-004"

	// Routing errors (ROUTING-001 to ROUTING-099)
	ErrCodeRoutingViolation ErrorCode = "ROUTING-001"

	// Worker errors (WORKER-001 to WORKER-099)
	ErrCodeWorkerInvoke  ErrorCode = "WORKER-001"
	ErrCodeWorkerMissing ErrorCode = "WORKER-002"

	// Run errors (RUN-001 to RUN-099)
	ErrCodeRunAborted   ErrorCode = "RUN-001"
	ErrCodeRunFinished  ErrorCode = "RUN-002"
	ErrCodeNoEscalation ErrorCode = "RUN-003"
)

// Category returns the category prefix of the code (e.g. "PERSIST")
func (c ErrorCode) Category() string {
	s := string(c)
	if i := strings.IndexByte(s, '-'); i > 0 {
		return s[:i]
	}
	return s
}

// PhaseflowError represents an error with code, suggestions, and a cause
type PhaseflowError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	Cause       error
}

// Error implements the error interface
func (e *PhaseflowError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *PhaseflowError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a PhaseflowError with the same code
func (e *PhaseflowError) Is(target error) bool {
	t, ok := target.(*PhaseflowError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Recoverable reports whether the engine may retry after this error
func (e *PhaseflowError) Recoverable() bool {
	switch e.Code.Category() {
	case "VALIDATION", "QUALITY", "WORKER":
		return true
	}
	return false
}

// New creates a new PhaseflowError
func New(code ErrorCode, message string) *PhaseflowError {
	return &PhaseflowError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new PhaseflowError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *PhaseflowError {
	return &PhaseflowError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *PhaseflowError) WithSuggestion(suggestion string) *PhaseflowError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *PhaseflowError) WithSuggestions(suggestions ...string) *PhaseflowError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// CodeOf returns the code of the first PhaseflowError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var pe *PhaseflowError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// HasCategory reports whether err carries a code in the given category.
func HasCategory(err error, category string) bool {
	code := CodeOf(err)
	return code != "" && code.Category() == category
}

// IsPersistenceFailure reports whether err is a PersistenceFailure
func IsPersistenceFailure(err error) bool {
	return HasCategory(err, "PERSIST")
}

// IsDependencyViolation reports whether err is a DependencyViolation
func IsDependencyViolation(err error) bool {
	return HasCategory(err, "DEPEND")
}

// Common error constructors

// NewNoTasksError is returned by setup when no tasks are supplied
func NewNoTasksError() *PhaseflowError {
	return New(ErrCodeSetupNoTasks, "no tasks supplied").
		WithSuggestion("Pass a task file: phaseflow setup --tasks tasks.yaml").
		WithSuggestion("Add at least one task with an id, title and type")
}

// NewInvalidTaskError is returned when a task fails validation
func NewInvalidTaskError(taskID string, cause error) *PhaseflowError {
	return Wrap(ErrCodeSetupInvalidTask, fmt.Sprintf("invalid task %q", taskID), cause).
		WithSuggestion("Fix the task definition and re-run phaseflow setup")
}

// NewStateExistsError is returned when setup would overwrite a live workflow
func NewStateExistsError(changeID string) *PhaseflowError {
	return New(ErrCodeSetupExists, fmt.Sprintf("workflow state already exists for change %q", changeID)).
		WithSuggestion(fmt.Sprintf("Continue it: phaseflow advance %s", changeID)).
		WithSuggestion("Pass --force to discard the existing state")
}

// NewStateMissingError is a PersistenceFailure for a missing state file
func NewStateMissingError(changeID string) *PhaseflowError {
	return New(ErrCodeStateMissing, fmt.Sprintf("workflow state file missing for change %q", changeID)).
		WithSuggestion(fmt.Sprintf("Re-run setup: phaseflow setup --change-id %s --tasks <file>", changeID)).
		WithSuggestion("Check state.dir / state.backend in .phaseflow/config.yaml")
}

// NewStateCorruptError is a PersistenceFailure for a state file that fails validation
func NewStateCorruptError(changeID string, cause error) *PhaseflowError {
	return Wrap(ErrCodeStateCorrupt, fmt.Sprintf("workflow state for change %q failed validation", changeID), cause).
		WithSuggestion("Repair the state file so it matches the WorkflowState schema").
		WithSuggestion(fmt.Sprintf("Or re-run setup: phaseflow setup --change-id %s --force", changeID))
}

// NewStateStaleError is a PersistenceFailure raised when the freshness gate cannot be satisfied
func NewStateStaleError(changeID, phase string, cause error) *PhaseflowError {
	return Wrap(ErrCodeStateStale, fmt.Sprintf("progress entry for phase %q of change %q is stale", phase, changeID), cause).
		WithSuggestion("Repair the state file: the store could not be rewritten").
		WithSuggestion("Check that the state backend is writable")
}

// NewVersionConflictError is returned when another writer changed the state
func NewVersionConflictError(changeID string, expected, actual int64) *PhaseflowError {
	return New(ErrCodeVersionConflict, fmt.Sprintf("state for change %q changed concurrently (expected version %d, found %d)", changeID, expected, actual)).
		WithSuggestion("Make sure only one driver advances this change")
}

// NewLeaseHeldError is returned when another driver owns the workflow
func NewLeaseHeldError(changeID, holder string) *PhaseflowError {
	return New(ErrCodeLeaseHeld, fmt.Sprintf("change %q is being driven by run %s", changeID, holder)).
		WithSuggestion("Wait for the other driver to finish").
		WithSuggestion(fmt.Sprintf("If it crashed, abort it: phaseflow abort %s", changeID))
}

// NewPrerequisiteError is a DependencyViolation for a phase whose prior phases are not terminal
func NewPrerequisiteError(phase string, pending []string) *PhaseflowError {
	return New(ErrCodePrerequisites, fmt.Sprintf("phase %q cannot start: prerequisites not terminal: %s", phase, strings.Join(pending, ", "))).
		WithSuggestion("Advance the workflow in template order: phaseflow advance <change-id>")
}

// NewCycleError is a DependencyViolation for a cyclic task graph
func NewCycleError(cycle []string) *PhaseflowError {
	return New(ErrCodeDependencyCycle, fmt.Sprintf("dependency cycle detected: %s", strings.Join(cycle, " -> "))).
		WithSuggestion("Reword or retype one of the tasks in the cycle so the rules no longer link them both ways").
		WithSuggestion("Then re-run phaseflow setup")
}

// NewUnknownPhaseError is a DependencyViolation for a phase missing from the template
func NewUnknownPhaseError(phase, template string) *PhaseflowError {
	return New(ErrCodeUnknownPhase, fmt.Sprintf("phase %q does not exist in template %q", phase, template)).
		WithSuggestion("Run phaseflow status <change-id> to see the phase list")
}

// NewIllegalTransitionError is a DependencyViolation for a status edge outside the state machine
func NewIllegalTransitionError(phase, from, to string) *PhaseflowError {
	return New(ErrCodeIllegalStatus, fmt.Sprintf("phase %q cannot move from %s to %s", phase, from, to)).
		WithSuggestion("Use phaseflow resolve <change-id> --decision retry to reset a failed phase")
}

// NewRoutingViolationError is returned by the routing gate
func NewRoutingViolationError(phase, reason string) *PhaseflowError {
	return New(ErrCodeRoutingViolation, fmt.Sprintf("phase %q must be delegated to a worker: %s", phase, reason)).
		WithSuggestion("Configure a worker for the phase role in .phaseflow/config.yaml")
}

// NewWorkerMissingError is returned when no worker is registered for a role
func NewWorkerMissingError(role string) *PhaseflowError {
	return New(ErrCodeWorkerMissing, fmt.Sprintf("no worker registered for role %q", role)).
		WithSuggestion(fmt.Sprintf("Add workers.%s.command to .phaseflow/config.yaml", role))
}

// NewRunAbortedError is returned when advancing an aborted run
func NewRunAbortedError(changeID string) *PhaseflowError {
	return New(ErrCodeRunAborted, fmt.Sprintf("change %q was aborted", changeID)).
		WithSuggestion(fmt.Sprintf("Resume it: phaseflow resolve %s --decision retry", changeID))
}

// NewRunFinishedError is returned when advancing a run whose phases are all terminal
func NewRunFinishedError(changeID string) *PhaseflowError {
	return New(ErrCodeRunFinished, fmt.Sprintf("change %q has no phases left to run", changeID)).
		WithSuggestion(fmt.Sprintf("Inspect the result: phaseflow status %s", changeID))
}

// NewPhaseNotReadyError is a DependencyViolation for a phase that exists but cannot start
func NewPhaseNotReadyError(phase, reason string) *PhaseflowError {
	return New(ErrCodeUnknownPhase, fmt.Sprintf("phase %q cannot start: %s", phase, reason)).
		WithSuggestion("Run phaseflow status <change-id> to see the phase list")
}

// NewValidationFailure is a recoverable failure of the pre-work checks
func NewValidationFailure(phase string, missing []string) *PhaseflowError {
	return New(ErrCodeValidationFailure, fmt.Sprintf("response for phase %q is missing required markers: %s", phase, strings.Join(missing, "; ")))
}

// NewQualityFailure is a recoverable failure of the quality checks
func NewQualityFailure(phase string, failures []string) *PhaseflowError {
	return New(ErrCodeQualityFailure, fmt.Sprintf("response for phase %q failed quality checks: %s", phase, strings.Join(failures, "; ")))
}
