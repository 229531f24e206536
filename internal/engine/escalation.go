package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/phaseflow/internal/checkpoint"
	"github.com/felixgeelhaar/phaseflow/internal/domain"
)

// Decision is the answer to an escalation
type Decision string

// Decisions. Defer leaves the escalation pending in the persisted state.
const (
	DecisionRetry Decision = "retry"
	DecisionSkip  Decision = "skip"
	DecisionAbort Decision = "abort"
	DecisionDefer Decision = "defer"
)

// Options is the escalation menu
var Options = []Decision{DecisionRetry, DecisionSkip, DecisionAbort}

// ParseDecision parses one of the menu options
func ParseDecision(s string) (Decision, error) {
	d := Decision(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case DecisionRetry, DecisionSkip, DecisionAbort:
		return d, nil
	}
	return "", fmt.Errorf("invalid decision %q (expected retry, skip or abort)", s)
}

// Escalation is raised once per failure streak after retries run out
type Escalation struct {
	ChangeID string            `json:"changeId"`
	Phase    string            `json:"phase"`
	Role     domain.WorkerRole `json:"role"`
	RunID    string            `json:"runId"`
	Attempts int               `json:"attempts"`
	Feedback []string          `json:"feedback"`
	Options  []Decision        `json:"options"`
}

// Record converts the escalation to its persisted form
func (e Escalation) Record(now time.Time) *checkpoint.Escalation {
	return &checkpoint.Escalation{
		Phase:    e.Phase,
		RunID:    e.RunID,
		Attempts: e.Attempts,
		Feedback: append([]string(nil), e.Feedback...),
		RaisedAt: now,
	}
}

// PendingEscalation rebuilds the escalation owed by a persisted state, or
// nil when none is pending.
func PendingEscalation(state *checkpoint.WorkflowState) *Escalation {
	rec := state.PendingEscalation
	if rec == nil {
		return nil
	}
	p, _ := state.Phase(rec.Phase)
	return &Escalation{
		ChangeID: state.ChangeID,
		Phase:    rec.Phase,
		Role:     p.WorkerRole,
		RunID:    rec.RunID,
		Attempts: rec.Attempts,
		Feedback: append([]string(nil), rec.Feedback...),
		Options:  append([]Decision(nil), Options...),
	}
}

// Escalator answers escalations. Implementations may block on a human;
// the engine itself never does.
type Escalator interface {
	Decide(ctx context.Context, esc Escalation) (Decision, error)
}

// EscalatorFunc adapts a function to Escalator
type EscalatorFunc func(ctx context.Context, esc Escalation) (Decision, error)

// Decide calls f
func (f EscalatorFunc) Decide(ctx context.Context, esc Escalation) (Decision, error) {
	return f(ctx, esc)
}
