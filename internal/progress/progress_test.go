package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/phaseflow/internal/checkpoint"
	"github.com/felixgeelhaar/phaseflow/internal/domain"
	"github.com/felixgeelhaar/phaseflow/internal/engine"
	"github.com/felixgeelhaar/phaseflow/internal/phases"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func backendState(t *testing.T) *checkpoint.WorkflowState {
	t.Helper()
	tmpl, ok := phases.Lookup(phases.TemplateBackendOnly)
	require.True(t, ok)
	s := checkpoint.NewState("chg-7", phases.Selection{Template: tmpl, Reason: "api tasks only"}, nil, now)
	for _, name := range []string{"requirements-analysis", "research"} {
		p := s.Phases[name]
		p.Status = domain.PhaseCompleted
		p.GatePassed = true
		p.ActualMinutes = 12
		s.Phases[name] = p
	}
	s.Recompute(now)
	return s
}

func TestBuild(t *testing.T) {
	r := Build(backendState(t))

	assert.Equal(t, "chg-7", r.ChangeID)
	assert.Equal(t, phases.TemplateBackendOnly, r.Template)
	assert.Equal(t, 10, r.TotalPhases)
	assert.Equal(t, 2, r.CompletedPhases)
	assert.Equal(t, 20, r.ProgressPercentage)
	assert.Equal(t, "api-contract-design", r.CurrentPhase)
	assert.Equal(t, domain.RoleAPIBuilder, r.CurrentRole)
	assert.Equal(t, 305, r.EstimateMinutes)
	assert.Equal(t, 24, r.ActualMinutes)
	require.Len(t, r.Phases, 10)

	for i, p := range r.Phases {
		assert.Equal(t, i+1, p.Number)
	}
	db, be := r.Phases[3], r.Phases[4]
	assert.Equal(t, "database", db.Name)
	assert.Equal(t, "backend", be.Name)
	assert.True(t, db.Parallel)
	assert.True(t, be.Parallel)
	assert.Equal(t, db.Group, be.Group)
	assert.False(t, r.Phases[0].Parallel)
}

func TestParseFormat(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Format
	}{
		{"", FormatText},
		{"text", FormatText},
		{"quick", FormatQuick},
		{"json", FormatJSON},
		{"yaml", FormatYAML},
	} {
		got, err := ParseFormat(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestWriteMachineFormats(t *testing.T) {
	r := Build(backendState(t))

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, r, FormatJSON))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "chg-7", decoded["changeId"])
	assert.EqualValues(t, 20, decoded["progressPercentage"])

	buf.Reset()
	require.NoError(t, Write(&buf, r, FormatYAML))
	var y map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &y))
	assert.Equal(t, "api-contract-design", y["currentPhase"])
	assert.Len(t, y["phases"], 10)
}

func TestDetailed(t *testing.T) {
	s := backendState(t)
	s.PendingEscalation = &checkpoint.Escalation{
		Phase:    "api-contract-design",
		Attempts: 3,
		Feedback: []string{"no readiness report"},
	}
	out := Detailed(Build(s), DefaultStyles())

	assert.Contains(t, out, "Workflow chg-7")
	assert.Contains(t, out, "20%")
	assert.Contains(t, out, "2/10 phases")
	assert.Contains(t, out, "✓")
	assert.Contains(t, out, "∥ group")
	assert.Contains(t, out, "Next: api-contract-design (api-builder)")
	assert.Contains(t, out, "Escalation pending: api-contract-design failed 3 attempts")
	assert.Contains(t, out, "no readiness report")
}

func TestQuick(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	s := backendState(t)
	assert.Equal(t, "chg-7 ██░░░░░░░░  20% (2/10) next api-contract-design [api-builder]", Quick(Build(s)))

	s.PendingEscalation = &checkpoint.Escalation{Phase: "api-contract-design"}
	assert.True(t, strings.HasSuffix(Quick(Build(s)), "escalation pending on api-contract-design"))

	s.PendingEscalation = nil
	s.Status = checkpoint.RunAborted
	assert.True(t, strings.HasSuffix(Quick(Build(s)), "aborted"))
}

func TestBar(t *testing.T) {
	assert.Equal(t, "░░░░", Bar(0, 4))
	assert.Equal(t, "██░░", Bar(50, 4))
	assert.Equal(t, "████", Bar(100, 4))
	assert.Equal(t, "████", Bar(140, 4))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", formatDuration(45*time.Second))
	assert.Equal(t, "2m5s", formatDuration(125*time.Second))
	assert.Equal(t, "1h30m0s", formatDuration(90*time.Minute))
	assert.Equal(t, "5h5m0s", formatMinutes(305))
}

func TestPrintOutcome(t *testing.T) {
	s := backendState(t)
	out := &engine.Outcome{
		ChangeID: "chg-7",
		RunID:    "run-1",
		Phases: []engine.PhaseOutcome{
			{Phase: "requirements-analysis", Role: domain.RoleIntegrator, Status: domain.PhaseCompleted, Attempts: 1, Direct: true},
			{Phase: "research", Role: domain.RoleIntegrator, Status: domain.PhaseCompleted, Attempts: 2, Duration: 90 * time.Second},
		},
		Escalation: &engine.Escalation{
			ChangeID: "chg-7",
			Phase:    "api-contract-design",
			Attempts: 3,
			Feedback: []string{"missing files"},
			Options:  engine.Options,
		},
		State: s,
	}

	var buf bytes.Buffer
	PrintOutcome(&buf, out)
	text := buf.String()

	assert.Contains(t, text, "Run chg-7  (run-1)")
	assert.Contains(t, text, "✓ requirements-analysis")
	assert.Contains(t, text, "direct")
	assert.Contains(t, text, "attempts 2  1m30s")
	assert.Contains(t, text, "20% (2/10)")
	assert.Contains(t, text, "⟲ Escalation pending on api-contract-design after 3 attempts")
	assert.Contains(t, text, "phaseflow resolve chg-7 --decision <retry|skip|abort>")
}

func TestWatchSeesReplacedFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "chg-7.json")
	require.NoError(t, os.WriteFile(target, []byte("{}"), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seen := make(chan struct{}, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, target, func() { seen <- struct{}{} })
	}()

	// give the watcher time to register before writing
	time.Sleep(200 * time.Millisecond)
	tmp := filepath.Join(dir, "chg-7.json.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte(`{"version":2}`), 0o644))
	require.NoError(t, os.Rename(tmp, target))

	select {
	case <-seen:
	case <-ctx.Done():
		t.Fatal("watcher did not report the replaced file")
	}

	cancel()
	require.NoError(t, <-done)
}
