package checkpoint

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/felixgeelhaar/phaseflow/internal/classify"
	"github.com/felixgeelhaar/phaseflow/internal/domain"
	"github.com/felixgeelhaar/phaseflow/internal/phases"
)

// SchemaVersion is the version of the persisted WorkflowState layout
const SchemaVersion = "1"

// RunStatus is the lifecycle state of a whole workflow run
type RunStatus string

// Run statuses
const (
	RunActive    RunStatus = "active"
	RunAborted   RunStatus = "aborted"
	RunCompleted RunStatus = "completed"
)

// PhaseInstance is the progress record of one phase
type PhaseInstance struct {
	Name                string             `json:"name"`
	PhaseNumber         int                `json:"phaseNumber"`
	Status              domain.PhaseStatus `json:"status"`
	StartedAt           *time.Time         `json:"startedAt,omitempty"`
	CompletedAt         *time.Time         `json:"completedAt,omitempty"`
	ActualMinutes       int                `json:"actualMinutes"`
	TasksCompleted      []string           `json:"tasksCompleted"`
	FilesCreated        []string           `json:"filesCreated"`
	Notes               string             `json:"notes,omitempty"`
	WorkerRole          domain.WorkerRole  `json:"workerRole"`
	RetryCount          int                `json:"retryCount"`
	MetadataTags        []string           `json:"metadataTags,omitempty"`
	EstimateMinutes     int                `json:"estimateMinutes"`
	Group               int                `json:"group"`
	DependsOnPriorPhase bool               `json:"dependsOnPriorPhase"`
	GatePassed          bool               `json:"gatePassed"`
	PersistedAt         time.Time          `json:"persistedAt"`
	Resets              int                `json:"resets,omitempty"`
	LastFailure         string             `json:"lastFailure,omitempty"`
}

// HasTag reports whether the phase carries a metadata tag
func (p PhaseInstance) HasTag(tag string) bool {
	for _, t := range p.MetadataTags {
		if t == tag {
			return true
		}
	}
	return false
}

// Meta holds derived progress counters. It is recomputed on every write.
type Meta struct {
	TotalPhases        int `json:"totalPhases"`
	CompletedPhases    int `json:"completedPhases"`
	ProgressPercentage int `json:"progressPercentage"`
}

// Lease marks the single driver allowed to advance a run
type Lease struct {
	RunID     string    `json:"runId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Escalation is a decision owed by a human after retries ran out
type Escalation struct {
	Phase    string    `json:"phase"`
	RunID    string    `json:"runId"`
	Attempts int       `json:"attempts"`
	Feedback []string  `json:"feedback"`
	RaisedAt time.Time `json:"raisedAt"`
}

// WorkflowState is the persisted, resumable record of one run
type WorkflowState struct {
	SchemaVersion     string                   `json:"schemaVersion"`
	ChangeID          string                   `json:"changeId"`
	SelectedTemplate  string                   `json:"selectedTemplate"`
	TemplateReason    string                   `json:"templateReason,omitempty"`
	Phases            map[string]PhaseInstance `json:"phases"`
	CurrentPhase      string                   `json:"currentPhase"`
	Meta              Meta                     `json:"meta"`
	Status            RunStatus                `json:"status"`
	Tasks             []classify.Classified    `json:"tasks"`
	Lease             *Lease                   `json:"lease,omitempty"`
	PendingEscalation *Escalation              `json:"pendingEscalation,omitempty"`
	AutoApproved      bool                     `json:"autoApproved"`
	Version           int64                    `json:"version"`
	CreatedAt         time.Time                `json:"createdAt"`
	UpdatedAt         time.Time                `json:"updatedAt"`
}

// NewState creates the initial state for a selected template. Every
// phase starts pending.
func NewState(changeID string, sel phases.Selection, tasks []classify.Classified, now time.Time) *WorkflowState {
	s := &WorkflowState{
		SchemaVersion:    SchemaVersion,
		ChangeID:         changeID,
		SelectedTemplate: sel.Template.Name,
		TemplateReason:   sel.Reason,
		Phases:           make(map[string]PhaseInstance, len(sel.Template.Phases)),
		Status:           RunActive,
		Tasks:            tasks,
		CreatedAt:        now,
	}

	number := 0
	for g, group := range sel.Template.Groups() {
		for _, def := range group {
			number++
			s.Phases[def.Name] = PhaseInstance{
				Name:                def.Name,
				PhaseNumber:         number,
				Status:              domain.PhasePending,
				TasksCompleted:      []string{},
				FilesCreated:        []string{},
				WorkerRole:          def.WorkerRole,
				MetadataTags:        append([]string(nil), def.MetadataTags...),
				EstimateMinutes:     def.DefaultEstimateMinutes,
				Group:               g,
				DependsOnPriorPhase: def.DependsOnPriorPhase,
				PersistedAt:         now,
			}
		}
	}

	s.Recompute(now)
	return s
}

// OrderedPhases returns the phases in template order
func (s *WorkflowState) OrderedPhases() []PhaseInstance {
	out := make([]PhaseInstance, 0, len(s.Phases))
	for _, p := range s.Phases {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PhaseNumber < out[j].PhaseNumber })
	return out
}

// Phase returns the named phase
func (s *WorkflowState) Phase(name string) (PhaseInstance, bool) {
	p, ok := s.Phases[name]
	return p, ok
}

// Group returns the phases of parallel group g in template order
func (s *WorkflowState) Group(g int) []PhaseInstance {
	var out []PhaseInstance
	for _, p := range s.OrderedPhases() {
		if p.Group == g {
			out = append(out, p)
		}
	}
	return out
}

// NextGroup returns the group holding the current phase, or nil when
// every phase is terminal.
func (s *WorkflowState) NextGroup() []PhaseInstance {
	cur, ok := s.Phases[s.CurrentPhase]
	if !ok {
		return nil
	}
	return s.Group(cur.Group)
}

// AllTerminal reports whether every phase is completed, skipped or failed
func (s *WorkflowState) AllTerminal() bool {
	for _, p := range s.Phases {
		if !p.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// Task returns the classified task with the given id
func (s *WorkflowState) Task(id domain.TaskID) (classify.Classified, bool) {
	for _, t := range s.Tasks {
		if t.Task.ID == id {
			return t, true
		}
	}
	return classify.Classified{}, false
}

// ComputeMeta derives the progress counters from phase statuses.
func (s *WorkflowState) ComputeMeta() Meta {
	m := Meta{TotalPhases: len(s.Phases)}
	for _, p := range s.Phases {
		if p.Status == domain.PhaseCompleted {
			m.CompletedPhases++
		}
	}
	if m.TotalPhases > 0 {
		m.ProgressPercentage = int(math.Round(float64(m.CompletedPhases) / float64(m.TotalPhases) * 100))
	}
	return m
}

// ComputeCurrentPhase returns the first non-terminal phase in template order
func (s *WorkflowState) ComputeCurrentPhase() string {
	for _, p := range s.OrderedPhases() {
		if !p.Status.IsTerminal() {
			return p.Name
		}
	}
	return ""
}

// Recompute refreshes every derived field and stamps updatedAt.
func (s *WorkflowState) Recompute(now time.Time) {
	s.Meta = s.ComputeMeta()
	s.CurrentPhase = s.ComputeCurrentPhase()
	if s.Status == RunActive && s.AllTerminal() && s.PendingEscalation == nil {
		s.Status = RunCompleted
	}
	s.UpdatedAt = now
}

// Validate checks the structural invariants of a loaded state.
func (s *WorkflowState) Validate() error {
	if s.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported schema version %q", s.SchemaVersion)
	}
	if err := domain.ChangeID(s.ChangeID).Validate(); err != nil {
		return err
	}
	if _, ok := phases.Lookup(s.SelectedTemplate); !ok {
		return fmt.Errorf("unknown template %q", s.SelectedTemplate)
	}
	if len(s.Phases) == 0 {
		return fmt.Errorf("state has no phases")
	}
	switch s.Status {
	case RunActive, RunAborted, RunCompleted:
	default:
		return fmt.Errorf("invalid run status %q", s.Status)
	}

	numbers := make(map[int]string, len(s.Phases))
	for key, p := range s.Phases {
		if key != p.Name {
			return fmt.Errorf("phase key %q does not match name %q", key, p.Name)
		}
		if err := p.Status.Validate(); err != nil {
			return fmt.Errorf("phase %q: %w", p.Name, err)
		}
		if err := p.WorkerRole.Validate(); err != nil {
			return fmt.Errorf("phase %q: %w", p.Name, err)
		}
		if p.PhaseNumber < 1 || p.PhaseNumber > len(s.Phases) {
			return fmt.Errorf("phase %q has number %d outside 1..%d", p.Name, p.PhaseNumber, len(s.Phases))
		}
		if other, dup := numbers[p.PhaseNumber]; dup {
			return fmt.Errorf("phases %q and %q share number %d", other, p.Name, p.PhaseNumber)
		}
		numbers[p.PhaseNumber] = p.Name
		if p.Status == domain.PhaseCompleted && !p.GatePassed {
			return fmt.Errorf("phase %q is completed without passing the post-response gate", p.Name)
		}
	}

	if m := s.ComputeMeta(); m != s.Meta {
		return fmt.Errorf("meta %+v does not match phase statuses %+v", s.Meta, m)
	}
	if cur := s.ComputeCurrentPhase(); cur != s.CurrentPhase {
		return fmt.Errorf("currentPhase %q should be %q", s.CurrentPhase, cur)
	}
	if s.PendingEscalation != nil {
		if _, ok := s.Phases[s.PendingEscalation.Phase]; !ok {
			return fmt.Errorf("pending escalation names unknown phase %q", s.PendingEscalation.Phase)
		}
	}
	return nil
}
