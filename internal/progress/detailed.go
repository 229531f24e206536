package progress

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/phaseflow/internal/domain"
)

// Styles holds the lipgloss styles of the detailed report
type Styles struct {
	Title      lipgloss.Style
	Label      lipgloss.Style
	Muted      lipgloss.Style
	Border     lipgloss.Style
	Completed  lipgloss.Style
	InProgress lipgloss.Style
	Pending    lipgloss.Style
	Skipped    lipgloss.Style
	Failed     lipgloss.Style
}

// DefaultStyles returns the default color scheme
func DefaultStyles() Styles {
	return Styles{
		Title:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		Label:      lipgloss.NewStyle().Bold(true),
		Muted:      lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Border:     lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
		Completed:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		InProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		Pending:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Skipped:    lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true),
		Failed:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
}

func (s Styles) status(st domain.PhaseStatus) lipgloss.Style {
	switch st {
	case domain.PhaseCompleted:
		return s.Completed
	case domain.PhaseInProgress:
		return s.InProgress
	case domain.PhaseSkipped:
		return s.Skipped
	case domain.PhaseFailed:
		return s.Failed
	}
	return s.Pending
}

// Symbol is the one-character marker of a phase status
func Symbol(st domain.PhaseStatus) string {
	switch st {
	case domain.PhaseCompleted:
		return "✓"
	case domain.PhaseInProgress:
		return "▶"
	case domain.PhaseSkipped:
		return "⊘"
	case domain.PhaseFailed:
		return "✗"
	}
	return "○"
}

// Bar draws a progress bar of width cells
func Bar(percent, width int) string {
	filled := domain.Clamp(percent*width/100, 0, width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// Detailed renders the multi-line report
func Detailed(r Report, styles Styles) string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("Workflow " + r.ChangeID))
	b.WriteString("\n")
	b.WriteString(styles.Muted.Render(fmt.Sprintf("template %s", r.Template)))
	if r.TemplateReason != "" {
		b.WriteString(styles.Muted.Render(" (" + r.TemplateReason + ")"))
	}
	b.WriteString("\n\n")

	summary := fmt.Sprintf("[%s] %d%%  %d/%d phases  status %s",
		Bar(r.ProgressPercentage, 30), r.ProgressPercentage, r.CompletedPhases, r.TotalPhases, r.Status)
	b.WriteString(styles.Label.Render(summary))
	b.WriteString("\n")
	b.WriteString(styles.Muted.Render(fmt.Sprintf("estimate %s, spent %s",
		formatMinutes(r.EstimateMinutes), formatMinutes(r.ActualMinutes))))
	b.WriteString("\n\n")

	for _, p := range r.Phases {
		line := fmt.Sprintf("%s %2d. %-28s %-15s %s", Symbol(p.Status), p.Number, p.Name, p.Role, p.Status)
		if p.Parallel {
			line += fmt.Sprintf("  ∥ group %d", p.Group)
		}
		if p.RetryCount > 0 {
			line += fmt.Sprintf("  retries %d", p.RetryCount)
		}
		b.WriteString(styles.status(p.Status).Render(line))
		if p.Notes != "" && (p.Status == domain.PhaseFailed || p.Status == domain.PhaseSkipped) {
			b.WriteString("\n      ")
			b.WriteString(styles.Muted.Render(p.Notes))
		}
		b.WriteString("\n")
	}

	if r.CurrentPhase != "" {
		b.WriteString("\n")
		b.WriteString(styles.Label.Render("Next: "))
		b.WriteString(fmt.Sprintf("%s (%s)", r.CurrentPhase, r.CurrentRole))
		b.WriteString("\n")
	}

	if esc := r.PendingEscalation; esc != nil {
		var e strings.Builder
		e.WriteString(styles.Failed.Render(fmt.Sprintf("Escalation pending: %s failed %d attempts", esc.Phase, esc.Attempts)))
		for _, f := range esc.Feedback {
			e.WriteString("\n  - " + f)
		}
		e.WriteString("\n" + styles.Muted.Render("Options: retry, skip, abort"))
		b.WriteString("\n")
		b.WriteString(styles.Border.BorderForeground(lipgloss.Color("196")).Render(e.String()))
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}
