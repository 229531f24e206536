package engine

import (
	"time"

	"github.com/felixgeelhaar/phaseflow/internal/checkpoint"
	"github.com/felixgeelhaar/phaseflow/internal/domain"
	"github.com/felixgeelhaar/phaseflow/internal/gate"
)

// PhaseOutcome reports what happened to one phase during a run
type PhaseOutcome struct {
	Phase      string             `json:"phase"`
	Role       domain.WorkerRole  `json:"role"`
	Status     domain.PhaseStatus `json:"status"`
	Attempts   int                `json:"attempts"`
	Direct     bool               `json:"direct,omitempty"`
	Evidence   gate.Evidence      `json:"evidence,omitempty"`
	Failures   []string           `json:"failures,omitempty"`
	Escalation *Escalation        `json:"escalation,omitempty"`
	Decision   Decision           `json:"decision,omitempty"`
	Duration   time.Duration      `json:"duration"`
}

// Outcome is the result of driving a run. Escalation is set when a
// decision is owed and nothing resolved it.
type Outcome struct {
	ChangeID   string                    `json:"changeId"`
	RunID      string                    `json:"runId"`
	Phases     []PhaseOutcome            `json:"phases"`
	Escalation *Escalation               `json:"escalation,omitempty"`
	Aborted    bool                      `json:"aborted"`
	Completed  bool                      `json:"completed"`
	State      *checkpoint.WorkflowState `json:"-"`
}
