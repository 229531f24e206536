package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/phaseflow/internal/classify"
	"github.com/felixgeelhaar/phaseflow/internal/domain"
	"github.com/felixgeelhaar/phaseflow/internal/errors"
)

// Worker performs the work of one phase. Invoke blocks until the worker
// answers or ctx is done. Timeouts are the worker's business.
type Worker interface {
	Invoke(ctx context.Context, req *Request) (*Response, error)
}

// Func adapts a plain function to Worker
type Func func(ctx context.Context, req *Request) (*Response, error)

// Invoke calls f
func (f Func) Invoke(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// TaskContext is the slice of the plan a worker needs to do its phase
type TaskContext struct {
	Template        string                `json:"template"`
	MetadataTags    []string              `json:"metadataTags,omitempty"`
	EstimateMinutes int                   `json:"estimateMinutes"`
	Tasks           []classify.Classified `json:"tasks"`
}

// Request is the invocation contract sent to a worker
type Request struct {
	RunID       string            `json:"runId"`
	ChangeID    string            `json:"changeId"`
	PhaseName   string            `json:"phaseName"`
	PhaseNumber int               `json:"phaseNumber"`
	WorkerRole  domain.WorkerRole `json:"workerRole"`
	TaskContext TaskContext       `json:"taskContext"`
	AutoProceed bool              `json:"autoProceed"`
	// Attempt is 1-based within the current retry streak
	Attempt  int      `json:"attempt"`
	Feedback []string `json:"feedback,omitempty"`
}

// TestResults are the counts a tester reports
type TestResults struct {
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// ReportedError is an error the worker ran into, and whether it fixed it
type ReportedError struct {
	Message  string `json:"message"`
	Resolved bool   `json:"resolved"`
}

// Report is the structured form of a worker response
type Report struct {
	Completed       bool            `json:"completed"`
	FilesTouched    []string        `json:"filesTouched,omitempty"`
	TestResults     *TestResults    `json:"testResults,omitempty"`
	ReadinessReport string          `json:"readinessReport,omitempty"`
	TestPlan        string          `json:"testPlan,omitempty"`
	TasksCompleted  []string        `json:"tasksCompleted,omitempty"`
	Errors          []ReportedError `json:"errors,omitempty"`
	Notes           string          `json:"notes,omitempty"`
}

// Response is what a worker returns. Report is nil when the worker only
// produced free text; the gates then fall back to text heuristics.
type Response struct {
	Report   *Report       `json:"report,omitempty"`
	Text     string        `json:"text,omitempty"`
	Duration time.Duration `json:"-"`
}

// Registry maps worker roles to workers
type Registry struct {
	mu      sync.RWMutex
	workers map[domain.WorkerRole]Worker
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{workers: make(map[domain.WorkerRole]Worker)}
}

// Register binds a worker to a role, replacing any previous binding
func (r *Registry) Register(role domain.WorkerRole, w Worker) error {
	if err := role.Validate(); err != nil {
		return fmt.Errorf("register worker: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[role] = w
	return nil
}

// Get returns the worker for role
func (r *Registry) Get(role domain.WorkerRole) (Worker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[role]
	if !ok {
		return nil, errors.NewWorkerMissingError(string(role))
	}
	return w, nil
}

// Has reports whether a worker is bound to role
func (r *Registry) Has(role domain.WorkerRole) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.workers[role]
	return ok
}

// Roles returns the registered roles, sorted
func (r *Registry) Roles() []domain.WorkerRole {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.WorkerRole, 0, len(r.workers))
	for role := range r.workers {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
