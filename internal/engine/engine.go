// Package engine drives a workflow run: it walks the parallel groups of the
// persisted state, dispatches each phase to its worker, validates the
// responses through the gates, retries with feedback and escalates once a
// failure streak exhausts its retries.
package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/phaseflow/internal/checkpoint"
	"github.com/felixgeelhaar/phaseflow/internal/classify"
	"github.com/felixgeelhaar/phaseflow/internal/domain"
	"github.com/felixgeelhaar/phaseflow/internal/errors"
	"github.com/felixgeelhaar/phaseflow/internal/gate"
	"github.com/felixgeelhaar/phaseflow/internal/log"
	"github.com/felixgeelhaar/phaseflow/internal/metrics"
	"github.com/felixgeelhaar/phaseflow/internal/phases"
	"github.com/felixgeelhaar/phaseflow/internal/telemetry"
	"github.com/felixgeelhaar/phaseflow/internal/worker"
)

const abortedNote = "aborted"

// errHalted cancels the siblings of a phase whose escalation aborted the run
var errHalted = stderrors.New("run aborted by escalation")

// Engine executes phases against a checkpoint store
type Engine struct {
	store     *checkpoint.Store
	workers   *worker.Registry
	config    Config
	escalator Escalator
	direct    worker.Worker
	logger    *log.Logger
	metrics   *metrics.Metrics
}

// Option configures an Engine
type Option func(*Engine)

// WithEscalator resolves escalations through esc instead of deferring them
func WithEscalator(esc Escalator) Option {
	return func(e *Engine) { e.escalator = esc }
}

// WithDirect lets the driver execute planning phases itself through w
func WithDirect(w worker.Worker) Option {
	return func(e *Engine) { e.direct = w }
}

// WithLogger sets the engine logger
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records engine metrics into m
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine
func New(store *checkpoint.Store, workers *worker.Registry, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		workers: workers,
		config:  cfg.withDefaults(),
		logger:  log.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunOptions bounds a single Run call
type RunOptions struct {
	// MaxGroups stops after that many parallel groups; 0 runs to the end
	MaxGroups int
}

// Run drives the change of rc until every phase is terminal, an
// escalation is owed, the run is aborted or opts.MaxGroups is reached.
func (e *Engine) Run(ctx context.Context, rc *RunContext, opts RunOptions) (*Outcome, error) {
	changeID := rc.ChangeID
	logger := e.logger.ForChange(changeID).With("run_id", rc.RunID)

	state, err := e.store.Load(ctx, changeID)
	if err != nil {
		return nil, err
	}

	out := &Outcome{ChangeID: changeID, RunID: rc.RunID, State: state}
	if esc := PendingEscalation(state); esc != nil {
		out.Escalation = esc
		return out, nil
	}
	switch state.Status {
	case checkpoint.RunAborted:
		return nil, errors.NewRunAbortedError(changeID)
	case checkpoint.RunCompleted:
		return nil, errors.NewRunFinishedError(changeID)
	}

	if _, err := e.store.AcquireLease(ctx, changeID, rc.RunID, e.config.LeaseTTL); err != nil {
		return nil, err
	}
	defer func() {
		if err := e.store.ReleaseLease(context.WithoutCancel(ctx), changeID, rc.RunID); err != nil {
			logger.WithError(err).Warn("failed to release lease")
		}
	}()

	logger.Info("run started", "template", state.SelectedTemplate, "current_phase", state.CurrentPhase)

	for groups := 0; opts.MaxGroups <= 0 || groups < opts.MaxGroups; groups++ {
		state, err = e.store.Load(ctx, changeID)
		if err != nil {
			return out, err
		}
		if state.Status != checkpoint.RunActive || state.PendingEscalation != nil {
			break
		}
		group := runnable(state.NextGroup())
		if len(group) == 0 {
			break
		}

		results, err := e.runGroup(ctx, rc, state, group)
		out.Phases = append(out.Phases, results...)
		if err != nil {
			return out, err
		}
		if err := e.ensureFresh(ctx, changeID, results); err != nil {
			return out, err
		}
		for _, r := range results {
			if r.Escalation != nil && r.Decision == DecisionDefer && out.Escalation == nil {
				out.Escalation = r.Escalation
			}
		}
	}

	final, err := e.store.Load(ctx, changeID)
	if err != nil {
		return out, err
	}
	out.State = final
	out.Aborted = final.Status == checkpoint.RunAborted
	out.Completed = final.Status == checkpoint.RunCompleted

	logger.Info("run stopped",
		"status", final.Status,
		"progress", final.Meta.ProgressPercentage,
		"current_phase", final.CurrentPhase,
		"escalated", out.Escalation != nil,
	)
	return out, nil
}

// runnable returns the phases of a group that still need work
func runnable(group []checkpoint.PhaseInstance) []checkpoint.PhaseInstance {
	var out []checkpoint.PhaseInstance
	for _, p := range group {
		if !p.Status.IsTerminal() {
			out = append(out, p)
		}
	}
	return out
}

// runGroup dispatches the phases of one parallel group concurrently and
// joins them. A cancelled context fails every in-progress phase and
// aborts the run. An escalation answered with abort halts the siblings.
func (e *Engine) runGroup(ctx context.Context, rc *RunContext, state *checkpoint.WorkflowState, group []checkpoint.PhaseInstance) ([]PhaseOutcome, error) {
	results := make([]PhaseOutcome, len(group))
	errs := make([]error, len(group))

	groupCtx, halt := context.WithCancelCause(ctx)
	defer halt(nil)

	wg := conc.NewWaitGroup()
	for i, p := range group {
		wg.Go(func() {
			results[i], errs[i] = e.runPhase(groupCtx, halt, rc, state, p)
		})
	}
	if r := wg.WaitAndRecover(); r != nil {
		errs = append(errs, fmt.Errorf("phase panicked: %w", r.AsError()))
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if _, err := e.store.AbortRun(context.WithoutCancel(ctx), state.ChangeID, abortedNote); err != nil {
			return results, stderrors.Join(ctxErr, err)
		}
		for i := range results {
			if !results[i].Status.IsTerminal() {
				results[i].Status = domain.PhaseFailed
			}
		}
		e.logger.ForChange(state.ChangeID).Warn("run cancelled, in-progress phases failed")
		return results, ctxErr
	}
	return results, stderrors.Join(errs...)
}

// runPhase takes one phase through readiness, routing, dispatch with
// retries and completion.
func (e *Engine) runPhase(ctx context.Context, halt context.CancelCauseFunc, rc *RunContext, state *checkpoint.WorkflowState, p checkpoint.PhaseInstance) (PhaseOutcome, error) {
	changeID := state.ChangeID
	role := string(p.WorkerRole)
	logger := e.logger.ForChange(changeID).ForPhase(p.Name, role)
	out := PhaseOutcome{Phase: p.Name, Role: p.WorkerRole, Status: p.Status}

	ctx, span := telemetry.StartPhaseSpan(ctx, changeID, p.Name, role)
	defer span.End()
	start := e.store.Now()

	if res := gate.CheckReadiness(state, p.Name); !res.Pass {
		e.metrics.RecordGate(string(res.Gate), false)
		return out, e.phaseError(span, res.Err())
	}
	e.metrics.RecordGate(string(gate.Readiness), true)

	tasks := phaseTasks(state, p)
	out.Direct = e.direct != nil && p.HasTag(phases.TagPlanning)
	route := gate.CheckRouting(gate.Work{
		Phase:      p.Name,
		Tags:       p.MetadataTags,
		Text:       tasksText(tasks),
		WorkerRole: p.WorkerRole,
		Direct:     out.Direct,
	})
	e.metrics.RecordGate(string(route.Gate), route.Pass)
	if !route.Pass {
		return out, e.phaseError(span, route.Err())
	}

	w := e.direct
	if !out.Direct {
		var err error
		if w, err = e.workers.Get(p.WorkerRole); err != nil {
			return out, e.phaseError(span, err)
		}
	}

	var (
		feedback []string
		failures []string
		attempt  int
	)
	if p.Status == domain.PhasePending {
		if halted(ctx) {
			return out, nil
		}
		if _, err := e.store.MarkInProgress(ctx, changeID, p.Name); err != nil {
			if halted(ctx) {
				return out, nil
			}
			return out, e.phaseError(span, err)
		}
		e.metrics.RecordPhase(p.Name, string(domain.PhaseInProgress), 0)
	} else {
		// a resumed phase continues its persisted failure streak
		attempt = p.RetryCount
		if p.LastFailure != "" {
			failures = []string{p.LastFailure}
			feedback = append(feedback, p.LastFailure)
			out.Failures = failures
		}
		logger.Info("resuming in-progress phase", "retry_count", p.RetryCount)
	}
	out.Status = domain.PhaseInProgress
	logger.Info("phase started", "direct", out.Direct)

	escalate := attempt > e.config.MaxRetries
	for {
		if !escalate {
			if stop, err := e.stopped(ctx, changeID); err != nil {
				return out, e.phaseError(span, err)
			} else if stop {
				logger.Info("run is no longer active, dispatch halted")
				out.Status = domain.PhaseFailed
				return out, nil
			}

			attempt++
			out.Attempts++
			req := &worker.Request{
				RunID:       rc.RunID,
				ChangeID:    changeID,
				PhaseName:   p.Name,
				PhaseNumber: p.PhaseNumber,
				WorkerRole:  p.WorkerRole,
				TaskContext: worker.TaskContext{
					Template:        state.SelectedTemplate,
					MetadataTags:    p.MetadataTags,
					EstimateMinutes: p.EstimateMinutes,
					Tasks:           tasks,
				},
				AutoProceed: rc.AutoProceed(),
				Attempt:     attempt,
				Feedback:    append([]string(nil), feedback...),
			}

			resp, invokeErr := e.dispatch(ctx, w, req)
			if halted(ctx) {
				out.Status = domain.PhaseFailed
				return out, nil
			}
			if ctx.Err() != nil {
				return out, ctx.Err()
			}

			var kind string
			if invokeErr != nil {
				failures = []string{fmt.Sprintf("worker invocation failed: %v", invokeErr)}
				kind = "worker"
				escalate = attempt > e.config.MaxRetries
			} else {
				res := gate.CheckResponse(gate.ResponseCheck{
					Phase:      p.Name,
					Role:       p.WorkerRole,
					Response:   resp,
					Attempt:    attempt,
					MaxRetries: e.config.MaxRetries,
					FileGlobs:  e.config.FileGlobs[p.WorkerRole],
				})
				e.metrics.RecordGate(string(res.Gate), res.Pass)
				if res.Pass {
					return e.complete(ctx, span, logger, out, changeID, p, res.Evidence, start)
				}
				failures = res.Failures
				kind = strings.ToLower(errors.CodeOf(res.Err()).Category())
				escalate = res.Verdict == gate.VerdictEscalate
			}

			rc.MarkFailed()
			out.Failures = failures
			feedback = append(feedback, failures...)
			e.metrics.RecordAttemptFailure(p.Name, kind)
			if _, err := e.store.RecordAttemptFailure(ctx, changeID, p.Name, strings.Join(failures, "; ")); err != nil {
				if halted(ctx) {
					out.Status = domain.PhaseFailed
					return out, nil
				}
				return out, e.phaseError(span, err)
			}
			logger.Warn("attempt failed",
				"attempt", attempt,
				"kind", kind,
				"failures", failures,
				"escalate", escalate,
			)
			if !escalate {
				continue
			}
		}
		escalate = false

		esc := Escalation{
			ChangeID: changeID,
			Phase:    p.Name,
			Role:     p.WorkerRole,
			RunID:    rc.RunID,
			Attempts: attempt,
			Feedback: append([]string(nil), feedback...),
			Options:  append([]Decision(nil), Options...),
		}
		decision := e.decide(ctx, logger, esc)
		if halted(ctx) {
			out.Status = domain.PhaseFailed
			return out, nil
		}
		out.Escalation = &esc
		out.Decision = decision
		e.metrics.RecordEscalation(string(decision))

		switch decision {
		case DecisionRetry:
			logger.Info("escalation answered with retry, starting a new attempt streak")
			if _, err := e.store.RestartStreak(ctx, changeID, p.Name); err != nil {
				return out, e.phaseError(span, err)
			}
			attempt = 0
			continue
		case DecisionSkip:
			if _, err := e.store.MarkSkipped(ctx, changeID, p.Name, "skipped after escalation"); err != nil {
				return out, e.phaseError(span, err)
			}
			out.Status = domain.PhaseSkipped
		case DecisionAbort:
			if _, err := e.store.AbortRun(ctx, changeID, "aborted after escalation"); err != nil {
				return out, e.phaseError(span, err)
			}
			halt(errHalted)
			out.Status = domain.PhaseFailed
		default:
			reason := fmt.Sprintf("escalated after %d attempts: %s", attempt, strings.Join(failures, "; "))
			if _, err := e.store.DeferEscalation(ctx, changeID, p.Name, reason, esc.Record(e.store.Now())); err != nil {
				return out, e.phaseError(span, err)
			}
			out.Status = domain.PhaseFailed
		}

		out.Duration = e.store.Now().Sub(start)
		e.metrics.RecordPhase(p.Name, string(out.Status), out.Duration)
		telemetry.RecordSuccess(span,
			attribute.String("decision", string(decision)),
			attribute.Int("attempts", out.Attempts),
		)
		return out, nil
	}
}

// complete persists a phase whose response passed validation
func (e *Engine) complete(ctx context.Context, span trace.Span, logger *log.Logger, out PhaseOutcome, changeID string, p checkpoint.PhaseInstance, ev gate.Evidence, start time.Time) (PhaseOutcome, error) {
	elapsed := e.store.Now().Sub(start)
	result := checkpoint.PhaseResult{
		ActualMinutes:  int(elapsed.Round(time.Minute) / time.Minute),
		FilesCreated:   ev.Files,
		TasksCompleted: ev.TasksCompleted,
		Notes:          ev.Notes,
		GatePassed:     true,
	}
	if _, err := e.store.MarkCompleted(ctx, changeID, p.Name, result); err != nil {
		if halted(ctx) {
			out.Status = domain.PhaseFailed
			return out, nil
		}
		return out, e.phaseError(span, err)
	}

	out.Status = domain.PhaseCompleted
	out.Evidence = ev
	out.Failures = nil
	out.Duration = elapsed
	e.metrics.RecordPhase(p.Name, string(domain.PhaseCompleted), elapsed)
	telemetry.RecordSuccess(span,
		attribute.Int("attempts", out.Attempts),
		attribute.Int("files", len(ev.Files)),
	)
	logger.Info("phase completed", "attempts", out.Attempts, "files", len(ev.Files))
	return out, nil
}

// dispatch invokes a worker inside a span and records its duration
func (e *Engine) dispatch(ctx context.Context, w worker.Worker, req *worker.Request) (*worker.Response, error) {
	ctx, span := telemetry.StartDispatchSpan(ctx, string(req.WorkerRole), req.Attempt)
	defer span.End()

	start := time.Now()
	resp, err := w.Invoke(ctx, req)
	elapsed := time.Since(start)
	if resp != nil && resp.Duration == 0 {
		resp.Duration = elapsed
	}

	e.metrics.RecordDispatch(string(req.WorkerRole), err == nil, elapsed)
	if err != nil {
		e.metrics.RecordError(string(errors.CodeOf(err)), "worker")
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.RecordSuccess(span)
	return resp, nil
}

// halted reports whether a sibling's escalation aborted the run
func halted(ctx context.Context) bool {
	return stderrors.Is(context.Cause(ctx), errHalted)
}

// stopped reports whether dispatch must halt before the next attempt:
// the group was halted or the persisted run is no longer active.
func (e *Engine) stopped(ctx context.Context, changeID string) (bool, error) {
	if halted(ctx) {
		return true, nil
	}
	state, err := e.store.Load(ctx, changeID)
	if err != nil {
		return false, err
	}
	return state.Status != checkpoint.RunActive, nil
}

// decide asks the escalator, if any. A missing escalator or a failing one
// defers the decision.
func (e *Engine) decide(ctx context.Context, logger *log.Logger, esc Escalation) Decision {
	if e.escalator == nil {
		logger.Warn("retries exhausted, escalation deferred", "attempts", esc.Attempts)
		return DecisionDefer
	}
	d, err := e.escalator.Decide(ctx, esc)
	if err != nil {
		logger.WithError(err).Warn("escalation could not be answered, deferring")
		return DecisionDefer
	}
	switch d {
	case DecisionRetry, DecisionSkip, DecisionAbort:
		logger.Info("escalation answered", "decision", d)
		return d
	}
	return DecisionDefer
}

// ensureFresh runs the freshness gate on every phase the group finished.
// A stale entry is rewritten and checked once more.
func (e *Engine) ensureFresh(ctx context.Context, changeID string, results []PhaseOutcome) error {
	state, err := e.store.Load(ctx, changeID)
	if err != nil {
		return err
	}
	for _, r := range results {
		if !r.Status.IsTerminal() {
			continue
		}
		res := gate.CheckFreshness(state, r.Phase, r.Status, e.store.Now(), e.config.FreshnessWindow)
		e.metrics.RecordGate(string(res.Gate), res.Pass)
		if res.Pass {
			continue
		}

		e.logger.ForChange(changeID).Warn("persisted phase is stale, rewriting", "phase", r.Phase, "reason", res.Reason)
		if state, err = e.store.Touch(ctx, changeID, r.Phase); err != nil {
			return err
		}
		res = gate.CheckFreshness(state, r.Phase, r.Status, e.store.Now(), e.config.FreshnessWindow)
		e.metrics.RecordGate(string(res.Gate), res.Pass)
		if !res.Pass {
			return res.Err()
		}
	}
	return nil
}

func (e *Engine) phaseError(span trace.Span, err error) error {
	telemetry.RecordError(span, err)
	e.metrics.RecordError(string(errors.CodeOf(err)), "engine")
	return err
}

// phaseTasks returns the tasks a phase works on: those whose type the
// role owns, or every task when the role owns none of them.
func phaseTasks(state *checkpoint.WorkflowState, p checkpoint.PhaseInstance) []classify.Classified {
	var owned []classify.Classified
	for _, t := range state.Tasks {
		if p.WorkerRole.OwnsTaskType(t.Task.Type) {
			owned = append(owned, t)
		}
	}
	if len(owned) == 0 {
		return state.Tasks
	}
	return owned
}

func tasksText(tasks []classify.Classified) string {
	parts := make([]string, 0, len(tasks))
	for _, t := range tasks {
		parts = append(parts, t.Task.Text())
	}
	return strings.Join(parts, "\n")
}
