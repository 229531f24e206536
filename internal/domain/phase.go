package domain

import "fmt"

// PhaseStatus is the lifecycle state of one phase instance.
type PhaseStatus string

// Phase statuses
const (
	PhasePending    PhaseStatus = "pending"
	PhaseInProgress PhaseStatus = "in_progress"
	PhaseCompleted  PhaseStatus = "completed"
	PhaseSkipped    PhaseStatus = "skipped"
	PhaseFailed     PhaseStatus = "failed"
)

// Validate checks if the status is known
func (s PhaseStatus) Validate() error {
	switch s {
	case PhasePending, PhaseInProgress, PhaseCompleted, PhaseSkipped, PhaseFailed:
		return nil
	default:
		return fmt.Errorf("invalid phase status %q", string(s))
	}
}

// IsTerminal reports whether no further forward transition exists.
func (s PhaseStatus) IsTerminal() bool {
	return s == PhaseCompleted || s == PhaseSkipped || s == PhaseFailed
}

// CanTransitionTo reports whether s -> next is an edge of the phase
// state machine. failed -> pending is the explicit reset edge.
func (s PhaseStatus) CanTransitionTo(next PhaseStatus) bool {
	switch s {
	case PhasePending:
		return next == PhaseInProgress
	case PhaseInProgress:
		return next == PhaseCompleted || next == PhaseSkipped || next == PhaseFailed
	case PhaseFailed:
		return next == PhasePending
	default:
		return false
	}
}

// String returns the string representation
func (s PhaseStatus) String() string {
	return string(s)
}

// WorkerRole names an external worker capability.
type WorkerRole string

// Worker roles
const (
	RoleUIBuilder     WorkerRole = "ui-builder"
	RoleAPIBuilder    WorkerRole = "api-builder"
	RoleSchemaBuilder WorkerRole = "schema-builder"
	RoleScriptBuilder WorkerRole = "script-builder"
	RoleTester        WorkerRole = "tester"
	RoleIntegrator    WorkerRole = "integrator"
)

// WorkerRoles lists every role in a stable order.
var WorkerRoles = []WorkerRole{
	RoleUIBuilder, RoleAPIBuilder, RoleSchemaBuilder, RoleScriptBuilder, RoleTester, RoleIntegrator,
}

// ProducesContent reports whether the role creates or modifies files.
func (r WorkerRole) ProducesContent() bool {
	switch r {
	case RoleUIBuilder, RoleAPIBuilder, RoleSchemaBuilder, RoleScriptBuilder:
		return true
	}
	return false
}

// OwnsTaskType reports whether tasks of type t are carried out by the role.
func (r WorkerRole) OwnsTaskType(t TaskType) bool {
	switch r {
	case RoleUIBuilder:
		return t == TaskTypeUI
	case RoleAPIBuilder:
		return t == TaskTypeAPI
	case RoleSchemaBuilder:
		return t == TaskTypeDataSchema
	case RoleScriptBuilder:
		return t == TaskTypeScript
	case RoleTester:
		return t == TaskTypeTest
	case RoleIntegrator:
		return t == TaskTypeIntegration
	}
	return false
}

// Validate checks if the role is known
func (r WorkerRole) Validate() error {
	for _, known := range WorkerRoles {
		if r == known {
			return nil
		}
	}
	return fmt.Errorf("invalid worker role %q", string(r))
}

// String returns the string representation
func (r WorkerRole) String() string {
	return string(r)
}
