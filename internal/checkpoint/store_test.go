package checkpoint

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/phaseflow/internal/domain"
	"github.com/felixgeelhaar/phaseflow/internal/errors"
	"github.com/felixgeelhaar/phaseflow/internal/phases"
	"github.com/felixgeelhaar/phaseflow/internal/storage"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func selection(t *testing.T, name string) phases.Selection {
	t.Helper()
	tmpl, ok := phases.Lookup(name)
	require.True(t, ok, "template %s", name)
	return phases.Selection{Template: tmpl, Reason: "test"}
}

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: epoch}
	return NewStore(storage.NewMemoryStorage(), WithClock(clock.Now)), clock
}

func createState(t *testing.T, s *Store, changeID, template string) *WorkflowState {
	t.Helper()
	state := NewState(changeID, selection(t, template), nil, s.Now())
	require.NoError(t, s.Create(context.Background(), state, false))
	return state
}

func complete(t *testing.T, s *Store, changeID, phase string) *WorkflowState {
	t.Helper()
	ctx := context.Background()
	_, err := s.MarkInProgress(ctx, changeID, phase)
	require.NoError(t, err)
	state, err := s.MarkCompleted(ctx, changeID, phase, PhaseResult{ActualMinutes: 5, GatePassed: true})
	require.NoError(t, err)
	return state
}

func TestCreateAndLoad(t *testing.T) {
	s, _ := newTestStore(t)
	createState(t, s, "chg-1", phases.TemplateFrontendOnly)

	state, err := s.Load(context.Background(), "chg-1")
	require.NoError(t, err)

	assert.Equal(t, int64(1), state.Version)
	assert.Equal(t, phases.TemplateFrontendOnly, state.SelectedTemplate)
	assert.Equal(t, "requirements-analysis", state.CurrentPhase)
	assert.Equal(t, Meta{TotalPhases: 11}, state.Meta)
	assert.Equal(t, RunActive, state.Status)
	assert.Equal(t, epoch, state.UpdatedAt)

	p, ok := state.Phase("frontend-mockup")
	require.True(t, ok)
	assert.Equal(t, 4, p.PhaseNumber)
	assert.Equal(t, domain.PhasePending, p.Status)
	assert.Equal(t, domain.RoleUIBuilder, p.WorkerRole)
}

func TestCreateRefusesExisting(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	createState(t, s, "chg-1", phases.TemplateBugFix)

	again := NewState("chg-1", selection(t, phases.TemplateRefactor), nil, s.Now())
	err := s.Create(ctx, again, false)
	assert.Equal(t, errors.ErrCodeSetupExists, errors.CodeOf(err))

	require.NoError(t, s.Create(ctx, again, true))
	state, err := s.Load(ctx, "chg-1")
	require.NoError(t, err)
	assert.Equal(t, phases.TemplateRefactor, state.SelectedTemplate)
}

func TestLoadMissingAndCorrupt(t *testing.T) {
	backend := storage.NewMemoryStorage()
	s := NewStore(backend)
	ctx := context.Background()

	_, err := s.Load(ctx, "nope")
	assert.Equal(t, errors.ErrCodeStateMissing, errors.CodeOf(err))
	assert.True(t, errors.IsPersistenceFailure(err))

	require.NoError(t, backend.Write(ctx, "states/broken.json", []byte("{not json")))
	_, err = s.Load(ctx, "broken")
	assert.Equal(t, errors.ErrCodeStateCorrupt, errors.CodeOf(err))

	// well-formed JSON that breaks a structural invariant
	state := NewState("tampered", selection(t, phases.TemplateBugFix), nil, epoch)
	state.Meta.ProgressPercentage = 40
	data, err := json.Marshal(state)
	require.NoError(t, err)
	require.NoError(t, backend.Write(ctx, "states/tampered.json", data))
	_, err = s.Load(ctx, "tampered")
	assert.Equal(t, errors.ErrCodeStateCorrupt, errors.CodeOf(err))
}

func TestProgressAfterSevenOfElevenPhases(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	state := createState(t, s, "chg-c", phases.TemplateFrontendOnly)

	ordered := state.OrderedPhases()
	for _, p := range ordered[:7] {
		complete(t, s, "chg-c", p.Name)
	}
	state, err := s.MarkInProgress(ctx, "chg-c", ordered[7].Name)
	require.NoError(t, err)

	assert.Equal(t, Meta{TotalPhases: 11, CompletedPhases: 7, ProgressPercentage: 64}, state.Meta)
	assert.Equal(t, "frontend-unit-tests", state.CurrentPhase)

	loaded, err := s.Load(ctx, "chg-c")
	require.NoError(t, err)
	assert.Equal(t, 64, loaded.Meta.ProgressPercentage)
	assert.Equal(t, int64(16), loaded.Version)
}

func TestIllegalTransitions(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	createState(t, s, "chg-1", phases.TemplateBugFix)

	_, err := s.MarkCompleted(ctx, "chg-1", "reproduce", PhaseResult{GatePassed: true})
	assert.Equal(t, errors.ErrCodeIllegalStatus, errors.CodeOf(err))

	_, err = s.MarkSkipped(ctx, "chg-1", "reproduce", "")
	assert.Equal(t, errors.ErrCodeIllegalStatus, errors.CodeOf(err))

	_, err = s.MarkInProgress(ctx, "chg-1", "deploy")
	assert.Equal(t, errors.ErrCodeUnknownPhase, errors.CodeOf(err))

	complete(t, s, "chg-1", "reproduce")
	_, err = s.MarkInProgress(ctx, "chg-1", "reproduce")
	assert.Equal(t, errors.ErrCodeIllegalStatus, errors.CodeOf(err))

	// a rejected mutation leaves the document untouched
	state, err := s.Load(ctx, "chg-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), state.Version)
}

func TestCompletionRequiresPassedGate(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	createState(t, s, "chg-1", phases.TemplateBugFix)

	_, err := s.MarkInProgress(ctx, "chg-1", "reproduce")
	require.NoError(t, err)

	_, err = s.MarkCompleted(ctx, "chg-1", "reproduce", PhaseResult{})
	require.Error(t, err)

	state, err := s.MarkCompleted(ctx, "chg-1", "reproduce", PhaseResult{
		ActualMinutes:  12,
		FilesCreated:   []string{"repro_test.go"},
		TasksCompleted: []string{"T1"},
		Notes:          "reproduced",
		GatePassed:     true,
	})
	require.NoError(t, err)

	p, _ := state.Phase("reproduce")
	assert.Equal(t, domain.PhaseCompleted, p.Status)
	assert.True(t, p.GatePassed)
	assert.Equal(t, 12, p.ActualMinutes)
	assert.Equal(t, []string{"repro_test.go"}, p.FilesCreated)
	require.NotNil(t, p.StartedAt)
	require.NotNil(t, p.CompletedAt)
}

func TestFailAndReset(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	createState(t, s, "chg-1", phases.TemplateRefactor)

	_, err := s.MarkInProgress(ctx, "chg-1", "baseline-tests")
	require.NoError(t, err)
	_, err = s.RecordAttemptFailure(ctx, "chg-1", "baseline-tests", "no test plan")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	state, err := s.MarkFailed(ctx, "chg-1", "baseline-tests", "retries exhausted")
	require.NoError(t, err)
	p, _ := state.Phase("baseline-tests")
	assert.Equal(t, domain.PhaseFailed, p.Status)
	assert.Equal(t, 1, p.RetryCount)
	assert.Equal(t, "retries exhausted", p.LastFailure)
	assert.Equal(t, clock.Now(), p.PersistedAt)
	assert.Equal(t, "refactor-implementation", state.CurrentPhase)

	state, err = s.Reset(ctx, "chg-1", "baseline-tests")
	require.NoError(t, err)
	p, _ = state.Phase("baseline-tests")
	assert.Equal(t, domain.PhasePending, p.Status)
	assert.Equal(t, 1, p.Resets)
	assert.Zero(t, p.RetryCount)
	assert.Nil(t, p.StartedAt)
	assert.Equal(t, "baseline-tests", state.CurrentPhase)

	// only failed phases can be reset
	_, err = s.Reset(ctx, "chg-1", "baseline-tests")
	assert.Equal(t, errors.ErrCodeIllegalStatus, errors.CodeOf(err))
}

func TestSaveDetectsVersionConflict(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	createState(t, s, "chg-1", phases.TemplateBugFix)

	first, err := s.Load(ctx, "chg-1")
	require.NoError(t, err)
	second, err := s.Load(ctx, "chg-1")
	require.NoError(t, err)

	first.AutoApproved = true
	require.NoError(t, s.Save(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	second.TemplateReason = "stale writer"
	err = s.Save(ctx, second)
	assert.Equal(t, errors.ErrCodeVersionConflict, errors.CodeOf(err))

	state, err := s.Load(ctx, "chg-1")
	require.NoError(t, err)
	assert.True(t, state.AutoApproved)
	assert.Equal(t, "test", state.TemplateReason)
}

func TestLease(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	createState(t, s, "chg-1", phases.TemplateBugFix)

	state, err := s.AcquireLease(ctx, "chg-1", "run-a", 10*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, state.Lease)
	assert.Equal(t, "run-a", state.Lease.RunID)

	// re-entrant for the holder
	_, err = s.AcquireLease(ctx, "chg-1", "run-a", 10*time.Minute)
	require.NoError(t, err)

	_, err = s.AcquireLease(ctx, "chg-1", "run-b", 10*time.Minute)
	assert.Equal(t, errors.ErrCodeLeaseHeld, errors.CodeOf(err))
	assert.True(t, errors.IsPersistenceFailure(err))

	clock.Advance(11 * time.Minute)
	state, err = s.AcquireLease(ctx, "chg-1", "run-b", 0)
	require.NoError(t, err)
	assert.Equal(t, "run-b", state.Lease.RunID)
	assert.Equal(t, clock.Now().Add(DefaultLeaseTTL), state.Lease.ExpiresAt)

	// releasing someone else's lease is a no-op
	require.NoError(t, s.ReleaseLease(ctx, "chg-1", "run-a"))
	state, err = s.Load(ctx, "chg-1")
	require.NoError(t, err)
	require.NotNil(t, state.Lease)

	require.NoError(t, s.ReleaseLease(ctx, "chg-1", ""))
	state, err = s.Load(ctx, "chg-1")
	require.NoError(t, err)
	assert.Nil(t, state.Lease)
}

func TestRunCompletesWhenAllPhasesTerminal(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	state := createState(t, s, "chg-1", phases.TemplateRefactor)

	for _, p := range state.OrderedPhases()[:3] {
		state = complete(t, s, "chg-1", p.Name)
	}
	assert.Equal(t, RunActive, state.Status)

	_, err := s.MarkInProgress(ctx, "chg-1", "final-report")
	require.NoError(t, err)
	state, err = s.MarkSkipped(ctx, "chg-1", "final-report", "not needed")
	require.NoError(t, err)

	assert.Equal(t, RunCompleted, state.Status)
	assert.Equal(t, "", state.CurrentPhase)
	assert.Equal(t, 75, state.Meta.ProgressPercentage)
	assert.True(t, state.AllTerminal())
	assert.Nil(t, state.NextGroup())
}

func TestPendingEscalation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	createState(t, s, "chg-1", phases.TemplateRefactor)

	_, err := s.SetPendingEscalation(ctx, "chg-1", &Escalation{Phase: "unknown-phase"})
	assert.Equal(t, errors.ErrCodeStateCorrupt, errors.CodeOf(err))

	state, err := s.SetPendingEscalation(ctx, "chg-1", &Escalation{Phase: "baseline-tests", Attempts: 3, RaisedAt: epoch})
	require.NoError(t, err)
	require.NotNil(t, state.PendingEscalation)
	assert.Equal(t, int64(2), state.Version)

	state, err = s.SetPendingEscalation(ctx, "chg-1", nil)
	require.NoError(t, err)
	assert.Nil(t, state.PendingEscalation)
}

func TestArchiveAndList(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	createState(t, s, "chg-a", phases.TemplateBugFix)
	createState(t, s, "chg-b", phases.TemplateRefactor)

	require.NoError(t, s.Archive(ctx, "chg-a"))

	ok, err := s.Exists(ctx, "chg-a")
	require.NoError(t, err)
	assert.False(t, ok)

	// archived documents stay readable but frozen
	state, err := s.Load(ctx, "chg-a")
	require.NoError(t, err)
	assert.Equal(t, "chg-a", state.ChangeID)
	_, err = s.MarkInProgress(ctx, "chg-a", "reproduce")
	assert.Equal(t, errors.ErrCodeRunFinished, errors.CodeOf(err))

	active, err := s.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "chg-b", active[0].ChangeID)
	assert.False(t, active[0].Archived)

	all, err := s.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "chg-a", all[1].ChangeID)
	assert.True(t, all[1].Archived)

	err = s.Archive(ctx, "chg-a")
	assert.Equal(t, errors.ErrCodeStateMissing, errors.CodeOf(err))
}

func TestLocalBackendDocumentLayout(t *testing.T) {
	dir := t.TempDir()
	backend, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	s := NewStore(backend, WithClock(func() time.Time { return epoch }))
	ctx := context.Background()

	createState(t, s, "chg-1", phases.TemplateScriptOnly)
	_, err = s.MarkInProgress(ctx, "chg-1", "requirements-analysis")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "states", "chg-1.json"))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "chg-1", doc["changeId"])
	assert.Equal(t, "script-only", doc["selectedTemplate"])
	assert.Equal(t, "requirements-analysis", doc["currentPhase"])
	assert.Equal(t, float64(2), doc["version"])
	phasesDoc := doc["phases"].(map[string]any)
	assert.Len(t, phasesDoc, 7)
	assert.Equal(t, "in_progress", phasesDoc["requirements-analysis"].(map[string]any)["status"])
}

func TestDeferEscalationKeepsRunOpen(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	createState(t, s, "chg-1", phases.TemplateRefactor)
	complete(t, s, "chg-1", "baseline-tests")
	complete(t, s, "chg-1", "refactor-implementation")
	complete(t, s, "chg-1", "regression-tests")
	_, err := s.MarkInProgress(ctx, "chg-1", "final-report")
	require.NoError(t, err)

	// failing the last phase alone would complete the run
	state, err := s.DeferEscalation(ctx, "chg-1", "final-report", "no completion marker",
		&Escalation{Phase: "final-report", RunID: "run-1", Attempts: 3})
	require.NoError(t, err)
	assert.Equal(t, RunActive, state.Status)
	assert.Equal(t, domain.PhaseFailed, state.Phases["final-report"].Status)
	assert.Equal(t, "no completion marker", state.Phases["final-report"].LastFailure)
	require.NotNil(t, state.PendingEscalation)

	state, err = s.SetPendingEscalation(ctx, "chg-1", nil)
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, state.Status)
}

func TestAbortRun(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	createState(t, s, "chg-1", phases.TemplateBackendOnly)
	complete(t, s, "chg-1", "requirements-analysis")
	complete(t, s, "chg-1", "research")
	complete(t, s, "chg-1", "api-contract-design")
	_, err := s.MarkInProgress(ctx, "chg-1", "database")
	require.NoError(t, err)
	_, err = s.MarkInProgress(ctx, "chg-1", "backend")
	require.NoError(t, err)

	state, err := s.AbortRun(ctx, "chg-1", "aborted after escalation", "backend")
	require.NoError(t, err)
	assert.Equal(t, RunAborted, state.Status)
	assert.Equal(t, domain.PhaseFailed, state.Phases["backend"].Status)
	assert.Equal(t, domain.PhaseInProgress, state.Phases["database"].Status)

	state, err = s.AbortRun(ctx, "chg-1", "aborted")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseFailed, state.Phases["database"].Status)
	assert.Equal(t, "aborted", state.Phases["database"].Notes)
	assert.Equal(t, domain.PhaseCompleted, state.Phases["research"].Status)
	assert.Equal(t, 30, state.Meta.ProgressPercentage)
}

func TestRestartStreakKeepsPhaseInProgress(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	createState(t, s, "chg-1", phases.TemplateRefactor)

	_, err := s.MarkInProgress(ctx, "chg-1", "baseline-tests")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = s.RecordAttemptFailure(ctx, "chg-1", "baseline-tests", "no test plan")
		require.NoError(t, err)
	}

	state, err := s.RestartStreak(ctx, "chg-1", "baseline-tests")
	require.NoError(t, err)
	p, _ := state.Phase("baseline-tests")
	assert.Equal(t, domain.PhaseInProgress, p.Status)
	assert.Zero(t, p.RetryCount)
	assert.Equal(t, "no test plan", p.LastFailure)

	_, err = s.RestartStreak(ctx, "chg-1", "deploy")
	assert.Equal(t, errors.ErrCodeUnknownPhase, errors.CodeOf(err))
}

func TestAbortedRunStartsNoPhase(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	createState(t, s, "chg-1", phases.TemplateBackendOnly)
	for _, name := range []string{"requirements-analysis", "research", "api-contract-design"} {
		complete(t, s, "chg-1", name)
	}

	_, err := s.MarkInProgress(ctx, "chg-1", "database")
	require.NoError(t, err)
	state, err := s.AbortRun(ctx, "chg-1", "aborted after escalation")
	require.NoError(t, err)
	assert.Equal(t, RunAborted, state.Status)

	_, err = s.MarkInProgress(ctx, "chg-1", "backend")
	assert.Equal(t, errors.ErrCodeRunAborted, errors.CodeOf(err))
	state, err = s.Load(ctx, "chg-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhasePending, state.Phases["backend"].Status)
}
