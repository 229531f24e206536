package gate

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/phaseflow/internal/checkpoint"
	"github.com/felixgeelhaar/phaseflow/internal/domain"
	"github.com/felixgeelhaar/phaseflow/internal/errors"
)

// DefaultFreshnessWindow is how recently a finished phase must have been
// persisted before its outcome may be reported.
const DefaultFreshnessWindow = 60 * time.Second

// CheckFreshness is the pre-report gate. The persisted entry of phase must
// carry the expected status and have been written within window of now.
func CheckFreshness(state *checkpoint.WorkflowState, phase string, want domain.PhaseStatus, now time.Time, window time.Duration) Result {
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	p, ok := state.Phase(phase)
	if !ok {
		reason := "phase missing from persisted state"
		return fail(Freshness, reason, errors.NewStateStaleError(state.ChangeID, phase, fmt.Errorf("%s", reason)))
	}
	if p.Status != want {
		reason := fmt.Sprintf("persisted status is %s, expected %s", p.Status, want)
		return fail(Freshness, reason, errors.NewStateStaleError(state.ChangeID, phase, fmt.Errorf("%s", reason)))
	}
	if age := now.Sub(p.PersistedAt); age > window || age < -window {
		reason := fmt.Sprintf("last persisted %s ago, window is %s", age.Round(time.Second), window)
		return fail(Freshness, reason, errors.NewStateStaleError(state.ChangeID, phase, fmt.Errorf("%s", reason)))
	}
	return pass(Freshness)
}
