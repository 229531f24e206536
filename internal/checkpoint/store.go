package checkpoint

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/phaseflow/internal/domain"
	"github.com/felixgeelhaar/phaseflow/internal/errors"
	"github.com/felixgeelhaar/phaseflow/internal/log"
	"github.com/felixgeelhaar/phaseflow/internal/metrics"
	"github.com/felixgeelhaar/phaseflow/internal/storage"
)

const (
	statesPrefix  = "states"
	archivePrefix = "archive"

	// DefaultLeaseTTL bounds how long a crashed driver blocks others
	DefaultLeaseTTL = 30 * time.Minute
)

// PhaseResult is what a finished phase records
type PhaseResult struct {
	ActualMinutes  int
	FilesCreated   []string
	TasksCompleted []string
	Notes          string
	GatePassed     bool
}

// Store persists WorkflowStates, one JSON document per change. Mutations
// are serialized by a mutex and guarded by an optimistic version check
// against the persisted document.
type Store struct {
	backend storage.Storage
	mu      sync.Mutex
	now     func() time.Time
	logger  *log.Logger
	metrics *metrics.Metrics
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithClock overrides the time source
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store logger
func WithLogger(l *log.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithMetrics records store writes
func WithMetrics(m *metrics.Metrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// NewStore creates a store over a storage backend
func NewStore(backend storage.Storage, opts ...StoreOption) *Store {
	s := &Store{
		backend: backend,
		now:     time.Now,
		logger:  log.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store's clock reading
func (s *Store) Now() time.Time {
	return s.now()
}

// StateKey is the storage key of a change's active state
func StateKey(changeID string) string {
	return path.Join(statesPrefix, changeID+".json")
}

func archiveKey(changeID string) string {
	return path.Join(archivePrefix, changeID+".json")
}

// Exists reports whether an active state exists for the change
func (s *Store) Exists(ctx context.Context, changeID string) (bool, error) {
	return s.backend.Exists(ctx, StateKey(changeID))
}

// Create persists a brand new state. It fails if one already exists
// unless overwrite is set.
func (s *Store) Create(ctx context.Context, state *WorkflowState, overwrite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.backend.Exists(ctx, StateKey(state.ChangeID))
	if err != nil {
		return errors.Wrap(errors.ErrCodeStateWriteFailed, "check existing state", err)
	}
	if exists && !overwrite {
		return errors.NewStateExistsError(state.ChangeID)
	}

	state.Version = 1
	state.Recompute(s.now())
	return s.write(ctx, "create", state)
}

// Load reads and validates the active state of a change. A change that
// was archived is returned read-only from the archive.
func (s *Store) Load(ctx context.Context, changeID string) (*WorkflowState, error) {
	state, _, err := s.load(ctx, changeID)
	return state, err
}

func (s *Store) load(ctx context.Context, changeID string) (*WorkflowState, bool, error) {
	if err := domain.ChangeID(changeID).Validate(); err != nil {
		return nil, false, errors.NewStateMissingError(changeID)
	}

	archived := false
	data, err := s.backend.Read(ctx, StateKey(changeID))
	if stderrors.Is(err, storage.ErrNotFound) {
		data, err = s.backend.Read(ctx, archiveKey(changeID))
		archived = true
	}
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, false, errors.NewStateMissingError(changeID)
		}
		return nil, false, errors.Wrap(errors.ErrCodeStateMissing, fmt.Sprintf("read state for change %q", changeID), err)
	}

	var state WorkflowState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, false, errors.NewStateCorruptError(changeID, err)
	}
	if state.ChangeID != changeID {
		return nil, false, errors.NewStateCorruptError(changeID, fmt.Errorf("document belongs to change %q", state.ChangeID))
	}
	if err := state.Validate(); err != nil {
		return nil, false, errors.NewStateCorruptError(changeID, err)
	}
	return &state, archived, nil
}

// Save writes a caller-modified state. The state's version must match the
// persisted one.
func (s *Store) Save(ctx context.Context, state *WorkflowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, archived, err := s.load(ctx, state.ChangeID)
	if err != nil {
		return err
	}
	if archived {
		return errors.NewRunFinishedError(state.ChangeID)
	}
	if current.Version != state.Version {
		return errors.NewVersionConflictError(state.ChangeID, state.Version, current.Version)
	}

	state.Version++
	state.Recompute(s.now())
	return s.write(ctx, "save", state)
}

// Update applies fn to the freshly loaded state and writes the result.
// Derived fields are recomputed and the version is bumped.
func (s *Store) Update(ctx context.Context, changeID string, fn func(*WorkflowState) error) (*WorkflowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, archived, err := s.load(ctx, changeID)
	if err != nil {
		return nil, err
	}
	if archived {
		return nil, errors.NewRunFinishedError(changeID)
	}
	loaded := state.Version

	if err := fn(state); err != nil {
		return nil, err
	}

	// another process may have written since we loaded
	persisted, _, err := s.load(ctx, changeID)
	if err != nil {
		return nil, err
	}
	if persisted.Version != loaded {
		return nil, errors.NewVersionConflictError(changeID, loaded, persisted.Version)
	}

	state.Version = loaded + 1
	state.Recompute(s.now())
	if err := state.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStateCorrupt, fmt.Sprintf("refusing to write invalid state for change %q", changeID), err)
	}
	if err := s.write(ctx, "update", state); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *Store) write(ctx context.Context, op string, state *WorkflowState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		s.metrics.RecordStoreWrite(op, false)
		return errors.Wrap(errors.ErrCodeStateWriteFailed, "marshal workflow state", err)
	}
	if err := s.backend.Write(ctx, StateKey(state.ChangeID), data); err != nil {
		s.metrics.RecordStoreWrite(op, false)
		return errors.Wrap(errors.ErrCodeStateWriteFailed, fmt.Sprintf("write state for change %q", state.ChangeID), err)
	}
	s.metrics.RecordStoreWrite(op, true)
	s.logger.ForChange(state.ChangeID).Debug("state written",
		"op", op,
		"version", state.Version,
		"current_phase", state.CurrentPhase,
		"progress", state.Meta.ProgressPercentage)
	return nil
}

// transition moves a phase along one edge of the phase state machine and
// stamps its persistedAt.
func (s *Store) transition(state *WorkflowState, name string, to domain.PhaseStatus, apply func(*PhaseInstance)) error {
	p, ok := state.Phases[name]
	if !ok {
		return errors.NewUnknownPhaseError(name, state.SelectedTemplate)
	}
	if !p.Status.CanTransitionTo(to) {
		return errors.NewIllegalTransitionError(name, string(p.Status), string(to))
	}
	p.Status = to
	if apply != nil {
		apply(&p)
	}
	p.PersistedAt = s.now()
	state.Phases[name] = p
	return nil
}

// MarkInProgress moves a pending phase to in_progress
func (s *Store) MarkInProgress(ctx context.Context, changeID, phase string) (*WorkflowState, error) {
	return s.Update(ctx, changeID, func(state *WorkflowState) error {
		if state.Status == RunAborted {
			return errors.NewRunAbortedError(changeID)
		}
		return s.transition(state, phase, domain.PhaseInProgress, func(p *PhaseInstance) {
			now := s.now()
			p.StartedAt = &now
			p.CompletedAt = nil
		})
	})
}

// MarkCompleted records a finished phase. The phase must have passed the
// post-response gate.
func (s *Store) MarkCompleted(ctx context.Context, changeID, phase string, result PhaseResult) (*WorkflowState, error) {
	return s.Update(ctx, changeID, func(state *WorkflowState) error {
		if p, ok := state.Phases[phase]; ok && !p.GatePassed && !result.GatePassed {
			return errors.New(errors.ErrCodeIllegalStatus,
				fmt.Sprintf("phase %q cannot complete before its response passes validation", phase))
		}
		return s.transition(state, phase, domain.PhaseCompleted, func(p *PhaseInstance) {
			now := s.now()
			p.CompletedAt = &now
			p.GatePassed = true
			p.ActualMinutes = result.ActualMinutes
			p.FilesCreated = append([]string{}, result.FilesCreated...)
			p.TasksCompleted = append([]string{}, result.TasksCompleted...)
			p.Notes = result.Notes
			p.LastFailure = ""
		})
	})
}

// MarkSkipped moves an in-progress phase to skipped
func (s *Store) MarkSkipped(ctx context.Context, changeID, phase, reason string) (*WorkflowState, error) {
	return s.Update(ctx, changeID, func(state *WorkflowState) error {
		return s.transition(state, phase, domain.PhaseSkipped, func(p *PhaseInstance) {
			now := s.now()
			p.CompletedAt = &now
			if reason != "" {
				p.Notes = reason
			}
		})
	})
}

// MarkFailed moves an in-progress phase to failed
func (s *Store) MarkFailed(ctx context.Context, changeID, phase, reason string) (*WorkflowState, error) {
	return s.Update(ctx, changeID, func(state *WorkflowState) error {
		return s.transition(state, phase, domain.PhaseFailed, func(p *PhaseInstance) {
			now := s.now()
			p.CompletedAt = &now
			p.LastFailure = reason
			p.Notes = reason
		})
	})
}

// Reset is the explicit failed -> pending edge used for manual retries.
func (s *Store) Reset(ctx context.Context, changeID, phase string) (*WorkflowState, error) {
	return s.Update(ctx, changeID, func(state *WorkflowState) error {
		return s.transition(state, phase, domain.PhasePending, func(p *PhaseInstance) {
			p.Resets++
			p.RetryCount = 0
			p.StartedAt = nil
			p.CompletedAt = nil
			p.GatePassed = false
		})
	})
}

// RecordAttemptFailure counts a failed attempt of an in-progress phase
func (s *Store) RecordAttemptFailure(ctx context.Context, changeID, phase, reason string) (*WorkflowState, error) {
	return s.Update(ctx, changeID, func(state *WorkflowState) error {
		p, ok := state.Phases[phase]
		if !ok {
			return errors.NewUnknownPhaseError(phase, state.SelectedTemplate)
		}
		p.RetryCount++
		p.LastFailure = reason
		p.PersistedAt = s.now()
		state.Phases[phase] = p
		return nil
	})
}

// RestartStreak zeroes the attempt count of an in-progress phase once an
// escalation was answered with retry.
func (s *Store) RestartStreak(ctx context.Context, changeID, phase string) (*WorkflowState, error) {
	return s.Update(ctx, changeID, func(state *WorkflowState) error {
		p, ok := state.Phases[phase]
		if !ok {
			return errors.NewUnknownPhaseError(phase, state.SelectedTemplate)
		}
		p.RetryCount = 0
		p.PersistedAt = s.now()
		state.Phases[phase] = p
		return nil
	})
}

// Touch rewrites the state, refreshing the phase's persistedAt.
func (s *Store) Touch(ctx context.Context, changeID, phase string) (*WorkflowState, error) {
	return s.Update(ctx, changeID, func(state *WorkflowState) error {
		p, ok := state.Phases[phase]
		if !ok {
			return errors.NewUnknownPhaseError(phase, state.SelectedTemplate)
		}
		p.PersistedAt = s.now()
		state.Phases[phase] = p
		return nil
	})
}

// SetStatus sets the run status
func (s *Store) SetStatus(ctx context.Context, changeID string, status RunStatus) (*WorkflowState, error) {
	return s.Update(ctx, changeID, func(state *WorkflowState) error {
		state.Status = status
		return nil
	})
}

// SetPendingEscalation records or clears (nil) an owed escalation decision
func (s *Store) SetPendingEscalation(ctx context.Context, changeID string, esc *Escalation) (*WorkflowState, error) {
	return s.Update(ctx, changeID, func(state *WorkflowState) error {
		state.PendingEscalation = esc
		return nil
	})
}

// DeferEscalation fails an in-progress phase and records the decision
// owed for it in one write, so the run cannot complete in between.
func (s *Store) DeferEscalation(ctx context.Context, changeID, phase, reason string, esc *Escalation) (*WorkflowState, error) {
	return s.Update(ctx, changeID, func(state *WorkflowState) error {
		err := s.transition(state, phase, domain.PhaseFailed, func(p *PhaseInstance) {
			now := s.now()
			p.CompletedAt = &now
			p.LastFailure = reason
			p.Notes = reason
		})
		if err != nil {
			return err
		}
		state.PendingEscalation = esc
		return nil
	})
}

// AbortRun fails in-progress phases with reason and marks the run
// aborted. With no names given every in-progress phase is failed.
// Completed phases are kept.
func (s *Store) AbortRun(ctx context.Context, changeID, reason string, names ...string) (*WorkflowState, error) {
	return s.Update(ctx, changeID, func(state *WorkflowState) error {
		for name, p := range state.Phases {
			if p.Status != domain.PhaseInProgress {
				continue
			}
			if len(names) > 0 && !slices.Contains(names, name) {
				continue
			}
			if err := s.transition(state, name, domain.PhaseFailed, func(p *PhaseInstance) {
				now := s.now()
				p.CompletedAt = &now
				p.LastFailure = reason
				p.Notes = reason
			}); err != nil {
				return err
			}
		}
		state.Status = RunAborted
		return nil
	})
}

// AcquireLease claims the run for runID until ttl elapses. An unexpired
// lease held by another run fails with a PersistenceFailure.
func (s *Store) AcquireLease(ctx context.Context, changeID, runID string, ttl time.Duration) (*WorkflowState, error) {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return s.Update(ctx, changeID, func(state *WorkflowState) error {
		now := s.now()
		if l := state.Lease; l != nil && l.RunID != runID && now.Before(l.ExpiresAt) {
			return errors.NewLeaseHeldError(changeID, l.RunID)
		}
		state.Lease = &Lease{RunID: runID, ExpiresAt: now.Add(ttl)}
		return nil
	})
}

// ReleaseLease drops the lease held by runID. An empty runID releases
// any lease.
func (s *Store) ReleaseLease(ctx context.Context, changeID, runID string) error {
	_, err := s.Update(ctx, changeID, func(state *WorkflowState) error {
		if state.Lease != nil && (runID == "" || state.Lease.RunID == runID) {
			state.Lease = nil
		}
		return nil
	})
	return err
}

// Archive moves the state of a change out of the active set
func (s *Store) Archive(ctx context.Context, changeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.backend.Read(ctx, StateKey(changeID))
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NewStateMissingError(changeID)
		}
		return errors.Wrap(errors.ErrCodeStateWriteFailed, "read state for archive", err)
	}
	if err := s.backend.Write(ctx, archiveKey(changeID), data); err != nil {
		s.metrics.RecordStoreWrite("archive", false)
		return errors.Wrap(errors.ErrCodeStateWriteFailed, "write archive", err)
	}
	if err := s.backend.Delete(ctx, StateKey(changeID)); err != nil {
		s.metrics.RecordStoreWrite("archive", false)
		return errors.Wrap(errors.ErrCodeStateWriteFailed, "remove archived state", err)
	}
	s.metrics.RecordStoreWrite("archive", true)
	s.logger.ForChange(changeID).Info("workflow archived")
	return nil
}

// Summary is one row of List
type Summary struct {
	ChangeID           string    `json:"changeId" yaml:"changeId"`
	Template           string    `json:"template" yaml:"template"`
	Status             RunStatus `json:"status" yaml:"status"`
	CurrentPhase       string    `json:"currentPhase" yaml:"currentPhase"`
	ProgressPercentage int       `json:"progressPercentage" yaml:"progressPercentage"`
	Archived           bool      `json:"archived" yaml:"archived"`
	UpdatedAt          time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// List summarizes every active and, when includeArchived is set, archived
// change. Unreadable documents are skipped and logged.
func (s *Store) List(ctx context.Context, includeArchived bool) ([]Summary, error) {
	prefixes := []string{statesPrefix}
	if includeArchived {
		prefixes = append(prefixes, archivePrefix)
	}

	var out []Summary
	for _, prefix := range prefixes {
		keys, err := s.backend.List(ctx, prefix)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, key := range keys {
			name := path.Base(key)
			if !strings.HasSuffix(name, ".json") {
				continue
			}
			changeID := strings.TrimSuffix(name, ".json")
			state, archived, err := s.load(ctx, changeID)
			if err != nil {
				s.logger.ForChange(changeID).WithError(err).Warn("skipping unreadable state")
				continue
			}
			if archived != (prefix == archivePrefix) {
				continue
			}
			out = append(out, Summary{
				ChangeID:           state.ChangeID,
				Template:           state.SelectedTemplate,
				Status:             state.Status,
				CurrentPhase:       state.CurrentPhase,
				ProgressPercentage: state.Meta.ProgressPercentage,
				Archived:           archived,
				UpdatedAt:          state.UpdatedAt,
			})
		}
	}
	return out, nil
}
