package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/phaseflow/internal/checkpoint"
	"github.com/felixgeelhaar/phaseflow/internal/domain"
	"github.com/felixgeelhaar/phaseflow/internal/phases"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		in      string
		want    Decision
		wantErr bool
	}{
		{"retry", DecisionRetry, false},
		{" Skip ", DecisionSkip, false},
		{"ABORT", DecisionAbort, false},
		{"defer", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDecision(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPendingEscalationRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tmpl, ok := phases.Lookup(phases.TemplateBugFix)
	require.True(t, ok)
	state := checkpoint.NewState("chg-9", phases.Selection{Template: tmpl}, nil, now)
	assert.Nil(t, PendingEscalation(state))

	esc := Escalation{
		ChangeID: "chg-9",
		Phase:    "fix-implementation",
		Role:     domain.RoleAPIBuilder,
		RunID:    "run-1",
		Attempts: 3,
		Feedback: []string{"missing completion marker"},
		Options:  Options,
	}
	state.PendingEscalation = esc.Record(now)
	assert.Equal(t, now, state.PendingEscalation.RaisedAt)

	got := PendingEscalation(state)
	require.NotNil(t, got)
	assert.Equal(t, esc, *got)
}

func TestRunContextAutoProceed(t *testing.T) {
	approved := NewRunContext("chg-1", true)
	other := NewRunContext("chg-1", true)
	assert.NotEqual(t, approved.RunID, other.RunID)
	assert.True(t, approved.AutoProceed())

	approved.MarkFailed()
	assert.False(t, approved.AutoProceed())
	assert.True(t, approved.Failed())
	assert.True(t, other.AutoProceed())

	assert.False(t, NewRunContext("chg-1", false).AutoProceed())
}
