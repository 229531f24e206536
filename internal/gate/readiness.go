package gate

import (
	"fmt"

	"github.com/felixgeelhaar/phaseflow/internal/checkpoint"
	"github.com/felixgeelhaar/phaseflow/internal/errors"
)

// CheckReadiness is the pre-phase-start gate. The phase must exist, be
// non-terminal, have a worker role, and every phase of the groups before
// its own must be terminal.
func CheckReadiness(state *checkpoint.WorkflowState, phase string) Result {
	p, ok := state.Phase(phase)
	if !ok {
		return fail(Readiness, "unknown phase", errors.NewUnknownPhaseError(phase, state.SelectedTemplate))
	}
	if p.Status.IsTerminal() {
		reason := fmt.Sprintf("phase is already %s", p.Status)
		return fail(Readiness, reason, errors.NewPhaseNotReadyError(phase, reason))
	}
	if err := p.WorkerRole.Validate(); err != nil {
		reason := "no worker role assigned"
		return fail(Readiness, reason, errors.NewPhaseNotReadyError(phase, reason))
	}

	var pending []string
	for _, other := range state.OrderedPhases() {
		if other.Group >= p.Group {
			break
		}
		if !other.Status.IsTerminal() {
			pending = append(pending, other.Name)
		}
	}
	if len(pending) > 0 {
		return fail(Readiness, "prerequisites not terminal", errors.NewPrerequisiteError(phase, pending))
	}
	return pass(Readiness)
}
