// Package progress renders a WorkflowState for people: a detailed
// multi-line report, a one-line quick status, and machine formats.
package progress

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/phaseflow/internal/checkpoint"
	"github.com/felixgeelhaar/phaseflow/internal/domain"
)

// PhaseLine is one row of a report
type PhaseLine struct {
	Number          int                `json:"number" yaml:"number"`
	Name            string             `json:"name" yaml:"name"`
	Role            domain.WorkerRole  `json:"role" yaml:"role"`
	Status          domain.PhaseStatus `json:"status" yaml:"status"`
	Group           int                `json:"group" yaml:"group"`
	Parallel        bool               `json:"parallel,omitempty" yaml:"parallel,omitempty"`
	EstimateMinutes int                `json:"estimateMinutes" yaml:"estimateMinutes"`
	ActualMinutes   int                `json:"actualMinutes,omitempty" yaml:"actualMinutes,omitempty"`
	RetryCount      int                `json:"retryCount,omitempty" yaml:"retryCount,omitempty"`
	Files           []string           `json:"files,omitempty" yaml:"files,omitempty"`
	Notes           string             `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Report is the read-only view of a run that every renderer works from
type Report struct {
	ChangeID           string                 `json:"changeId" yaml:"changeId"`
	Template           string                 `json:"template" yaml:"template"`
	TemplateReason     string                 `json:"templateReason,omitempty" yaml:"templateReason,omitempty"`
	Status             checkpoint.RunStatus   `json:"status" yaml:"status"`
	CurrentPhase       string                 `json:"currentPhase,omitempty" yaml:"currentPhase,omitempty"`
	CurrentRole        domain.WorkerRole      `json:"currentRole,omitempty" yaml:"currentRole,omitempty"`
	TotalPhases        int                    `json:"totalPhases" yaml:"totalPhases"`
	CompletedPhases    int                    `json:"completedPhases" yaml:"completedPhases"`
	ProgressPercentage int                    `json:"progressPercentage" yaml:"progressPercentage"`
	EstimateMinutes    int                    `json:"estimateMinutes" yaml:"estimateMinutes"`
	ActualMinutes      int                    `json:"actualMinutes" yaml:"actualMinutes"`
	Phases             []PhaseLine            `json:"phases" yaml:"phases"`
	PendingEscalation  *checkpoint.Escalation `json:"pendingEscalation,omitempty" yaml:"pendingEscalation,omitempty"`
	Version            int64                  `json:"version" yaml:"version"`
	UpdatedAt          time.Time              `json:"updatedAt" yaml:"updatedAt"`
}

// Build derives a report from a state
func Build(state *checkpoint.WorkflowState) Report {
	r := Report{
		ChangeID:           state.ChangeID,
		Template:           state.SelectedTemplate,
		TemplateReason:     state.TemplateReason,
		Status:             state.Status,
		CurrentPhase:       state.CurrentPhase,
		TotalPhases:        state.Meta.TotalPhases,
		CompletedPhases:    state.Meta.CompletedPhases,
		ProgressPercentage: state.Meta.ProgressPercentage,
		PendingEscalation:  state.PendingEscalation,
		Version:            state.Version,
		UpdatedAt:          state.UpdatedAt,
	}
	if cur, ok := state.Phase(state.CurrentPhase); ok {
		r.CurrentRole = cur.WorkerRole
	}

	groupSize := make(map[int]int)
	for _, p := range state.Phases {
		groupSize[p.Group]++
	}
	for _, p := range state.OrderedPhases() {
		r.EstimateMinutes += p.EstimateMinutes
		r.ActualMinutes += p.ActualMinutes
		r.Phases = append(r.Phases, PhaseLine{
			Number:          p.PhaseNumber,
			Name:            p.Name,
			Role:            p.WorkerRole,
			Status:          p.Status,
			Group:           p.Group,
			Parallel:        groupSize[p.Group] > 1,
			EstimateMinutes: p.EstimateMinutes,
			ActualMinutes:   p.ActualMinutes,
			RetryCount:      p.RetryCount,
			Files:           p.FilesCreated,
			Notes:           p.Notes,
		})
	}
	return r
}

// Format selects a status output format
type Format string

// Formats
const (
	FormatText  Format = "text"
	FormatQuick Format = "quick"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatText, FormatQuick, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatText, nil
	}
	return "", fmt.Errorf("unknown format %q (expected text, quick, json or yaml)", s)
}

// Write renders r to w in format f
func Write(w io.Writer, r Report, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case FormatQuick:
		_, err := fmt.Fprintln(w, Quick(r))
		return err
	default:
		_, err := fmt.Fprintln(w, Detailed(r, DefaultStyles()))
		return err
	}
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// formatMinutes formats a minute count the way estimates are written
func formatMinutes(m int) string {
	return formatDuration(time.Duration(m) * time.Minute)
}
