package engine

import (
	"context"

	"github.com/felixgeelhaar/phaseflow/internal/checkpoint"
	"github.com/felixgeelhaar/phaseflow/internal/domain"
	"github.com/felixgeelhaar/phaseflow/internal/errors"
)

// Resolve applies a decision to the escalation a run left pending.
//
// retry resets the phase to pending so the next run starts a new attempt
// streak. skip resets it and moves it through in_progress to skipped.
// abort marks the run aborted and keeps every completed phase.
//
// On an aborted run without a pending escalation, retry resets every
// failed phase and reactivates the run.
func (e *Engine) Resolve(ctx context.Context, changeID string, decision Decision) (*checkpoint.WorkflowState, error) {
	state, err := e.store.Load(ctx, changeID)
	if err != nil {
		return nil, err
	}
	logger := e.logger.ForChange(changeID)

	esc := state.PendingEscalation
	if esc == nil {
		if state.Status == checkpoint.RunAborted && decision == DecisionRetry {
			return e.reactivate(ctx, state)
		}
		return nil, errors.New(errors.ErrCodeNoEscalation, "no escalation is pending for "+changeID).
			WithSuggestion("run phaseflow status to see where the run stands")
	}

	switch decision {
	case DecisionRetry:
		if _, err := e.store.Reset(ctx, changeID, esc.Phase); err != nil {
			return nil, err
		}
	case DecisionSkip:
		if _, err := e.store.Reset(ctx, changeID, esc.Phase); err != nil {
			return nil, err
		}
		if _, err := e.store.MarkInProgress(ctx, changeID, esc.Phase); err != nil {
			return nil, err
		}
		if _, err := e.store.MarkSkipped(ctx, changeID, esc.Phase, "skipped after escalation"); err != nil {
			return nil, err
		}
	case DecisionAbort:
		if _, err := e.store.SetStatus(ctx, changeID, checkpoint.RunAborted); err != nil {
			return nil, err
		}
	default:
		_, err := ParseDecision(string(decision))
		return nil, err
	}

	e.metrics.RecordEscalation(string(decision))
	logger.Info("escalation resolved", "phase", esc.Phase, "decision", decision)
	return e.store.SetPendingEscalation(ctx, changeID, nil)
}

// reactivate resets the failed phases of an aborted run
func (e *Engine) reactivate(ctx context.Context, state *checkpoint.WorkflowState) (*checkpoint.WorkflowState, error) {
	for _, p := range state.OrderedPhases() {
		if p.Status != domain.PhaseFailed {
			continue
		}
		if _, err := e.store.Reset(ctx, state.ChangeID, p.Name); err != nil {
			return nil, err
		}
	}
	e.logger.ForChange(state.ChangeID).Info("aborted run reactivated")
	return e.store.SetStatus(ctx, state.ChangeID, checkpoint.RunActive)
}

// Abort stops a run from outside: in-progress phases fail, the run is
// marked aborted and any lease is released.
func (e *Engine) Abort(ctx context.Context, changeID string) (*checkpoint.WorkflowState, error) {
	state, err := e.store.Load(ctx, changeID)
	if err != nil {
		return nil, err
	}
	if state.Status == checkpoint.RunCompleted {
		return nil, errors.NewRunFinishedError(changeID)
	}
	if _, err := e.store.AbortRun(ctx, changeID, abortedNote); err != nil {
		return nil, err
	}
	if err := e.store.ReleaseLease(ctx, changeID, ""); err != nil {
		return nil, err
	}
	e.logger.ForChange(changeID).Info("run aborted")
	return e.store.Load(ctx, changeID)
}
