// Package workflow is the command surface of phaseflow. A Service sets up
// a change from its tasks, advances it through the engine and reports on
// its progress.
package workflow

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/felixgeelhaar/phaseflow/internal/checkpoint"
	"github.com/felixgeelhaar/phaseflow/internal/classify"
	"github.com/felixgeelhaar/phaseflow/internal/domain"
	"github.com/felixgeelhaar/phaseflow/internal/engine"
	"github.com/felixgeelhaar/phaseflow/internal/log"
	"github.com/felixgeelhaar/phaseflow/internal/metrics"
	"github.com/felixgeelhaar/phaseflow/internal/plan"
	"github.com/felixgeelhaar/phaseflow/internal/progress"
	"github.com/felixgeelhaar/phaseflow/internal/telemetry"
	"github.com/felixgeelhaar/phaseflow/internal/worker"
)

// Service ties the classifier, the store and the engine together
type Service struct {
	store      *checkpoint.Store
	engine     *engine.Engine
	classifier *classify.Classifier
	logger     *log.Logger
	metrics    *metrics.Metrics

	engineOpts []engine.Option
}

// Option configures a Service
type Option func(*Service)

// WithEscalator resolves escalations interactively during Advance
func WithEscalator(esc engine.Escalator) Option {
	return func(s *Service) { s.engineOpts = append(s.engineOpts, engine.WithEscalator(esc)) }
}

// WithDirect executes planning phases through w instead of a role worker
func WithDirect(w worker.Worker) Option {
	return func(s *Service) { s.engineOpts = append(s.engineOpts, engine.WithDirect(w)) }
}

// WithClassifier sets the task classifier
func WithClassifier(c *classify.Classifier) Option {
	return func(s *Service) { s.classifier = c }
}

// WithLogger sets the service logger
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics records metrics into m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a Service over store, dispatching to workers
func NewService(store *checkpoint.Store, workers *worker.Registry, cfg engine.Config, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: log.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.classifier == nil {
		s.classifier = classify.New()
	}

	engineOpts := append([]engine.Option{
		engine.WithLogger(s.logger),
		engine.WithMetrics(s.metrics),
	}, s.engineOpts...)
	s.engine = engine.New(store, workers, cfg, engineOpts...)
	return s
}

// SetupOptions controls Setup
type SetupOptions struct {
	// Overwrite replaces an existing state for the change
	Overwrite bool
	// AutoApproved lets workers proceed without confirmation until the
	// first failure of a run
	AutoApproved bool
}

// SetupResult is the plan and the initial state of a new run
type SetupResult struct {
	Plan  *plan.Plan
	State *checkpoint.WorkflowState
}

// Setup classifies tasks, selects a template and persists the initial
// state. It fails when tasks is empty, a task is invalid or the task
// graph has a cycle.
func (s *Service) Setup(ctx context.Context, changeID string, tasks []domain.Task, opts SetupOptions) (*SetupResult, error) {
	ctx, span := telemetry.StartSetupSpan(ctx, changeID, len(tasks))
	defer span.End()

	if _, err := domain.NewChangeID(changeID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	p, err := s.Classify(changeID, tasks)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	state := checkpoint.NewState(changeID, p.Selection, p.Tasks, s.store.Now())
	state.AutoApproved = opts.AutoApproved
	if err := s.store.Create(ctx, state, opts.Overwrite); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.ForChange(changeID).Info("workflow set up",
		"template", p.Selection.Template.Name,
		"reason", p.Selection.Reason,
		"tasks", len(tasks),
		"phases", len(state.Phases),
	)
	telemetry.RecordSuccess(span,
		attribute.String("template", p.Selection.Template.Name),
		attribute.Int("phases", len(state.Phases)),
	)

	saved, err := s.store.Load(ctx, changeID)
	if err != nil {
		return nil, err
	}
	return &SetupResult{Plan: p, State: saved}, nil
}

// Classify analyses tasks without persisting anything
func (s *Service) Classify(changeID string, tasks []domain.Task) (*plan.Plan, error) {
	return plan.Generate(changeID, tasks, plan.GenerateOptions{
		Classifier: s.classifier,
		Metrics:    s.metrics,
	})
}

// AdvanceOptions controls Advance
type AdvanceOptions struct {
	// MaxGroups stops after that many parallel groups; 0 runs to the end
	MaxGroups int
}

// Advance drives the change until it completes, an escalation is owed,
// it is aborted or opts.MaxGroups is reached. A completed run is archived.
func (s *Service) Advance(ctx context.Context, changeID string, opts AdvanceOptions) (*engine.Outcome, error) {
	state, err := s.store.Load(ctx, changeID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rc := engine.NewRunContext(changeID, state.AutoApproved)
	out, err := s.engine.Run(ctx, rc, engine.RunOptions{MaxGroups: opts.MaxGroups})
	if err != nil {
		return out, err
	}

	if out.Completed {
		if err := s.store.Archive(ctx, changeID); err != nil {
			return out, fmt.Errorf("archive completed workflow: %w", err)
		}
	}
	s.logger.ForChange(changeID).Debug("advance finished", "run_id", rc.RunID, "elapsed", time.Since(start))
	return out, nil
}

// DetailedStatus returns the full report of a change. It never writes.
func (s *Service) DetailedStatus(ctx context.Context, changeID string) (progress.Report, error) {
	state, err := s.store.Load(ctx, changeID)
	if err != nil {
		return progress.Report{}, err
	}
	return progress.Build(state), nil
}

// QuickStatus returns the one-line status of a change
func (s *Service) QuickStatus(ctx context.Context, changeID string) (string, error) {
	r, err := s.DetailedStatus(ctx, changeID)
	if err != nil {
		return "", err
	}
	return progress.Quick(r), nil
}

// Resolve applies a decision to the pending escalation of a change
func (s *Service) Resolve(ctx context.Context, changeID string, decision engine.Decision) (*checkpoint.WorkflowState, error) {
	return s.engine.Resolve(ctx, changeID, decision)
}

// Abort stops a change; completed phases are kept
func (s *Service) Abort(ctx context.Context, changeID string) (*checkpoint.WorkflowState, error) {
	return s.engine.Abort(ctx, changeID)
}

// List summarizes known changes
func (s *Service) List(ctx context.Context, includeArchived bool) ([]checkpoint.Summary, error) {
	return s.store.List(ctx, includeArchived)
}
