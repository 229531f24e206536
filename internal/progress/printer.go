package progress

import (
	"fmt"
	"io"
	"strings"

	"github.com/felixgeelhaar/phaseflow/internal/engine"
)

// PrintOutcome writes the per-phase summary of one advance
func PrintOutcome(w io.Writer, out *engine.Outcome) {
	fmt.Fprintf(w, "\n%s\n", strings.Repeat("═", 60))
	fmt.Fprintf(w, "Run %s  (%s)\n", out.ChangeID, out.RunID)
	fmt.Fprintf(w, "%s\n", strings.Repeat("═", 60))

	if len(out.Phases) == 0 {
		fmt.Fprintln(w, "No phases were dispatched.")
	}
	for _, p := range out.Phases {
		line := fmt.Sprintf("%s %-28s [%s] %s", Symbol(p.Status), p.Phase, p.Role, p.Status)
		if p.Attempts > 1 {
			line += fmt.Sprintf("  attempts %d", p.Attempts)
		}
		if p.Direct {
			line += "  direct"
		}
		if p.Duration > 0 {
			line += "  " + formatDuration(p.Duration)
		}
		fmt.Fprintln(w, line)
		if n := len(p.Evidence.Files); n > 0 {
			fmt.Fprintf(w, "    files: %s\n", strings.Join(p.Evidence.Files, ", "))
		}
		if p.Decision != "" {
			fmt.Fprintf(w, "    decision: %s\n", p.Decision)
		}
	}

	if out.State != nil {
		m := out.State.Meta
		fmt.Fprintf(w, "\nProgress: %s %d%% (%d/%d)\n", Bar(m.ProgressPercentage, 20),
			m.ProgressPercentage, m.CompletedPhases, m.TotalPhases)
	}

	switch {
	case out.Escalation != nil:
		esc := out.Escalation
		fmt.Fprintf(w, "\n⟲ Escalation pending on %s after %d attempts\n", esc.Phase, esc.Attempts)
		for _, f := range esc.Feedback {
			fmt.Fprintf(w, "    - %s\n", f)
		}
		fmt.Fprintf(w, "Resolve with: phaseflow resolve %s --decision <%s>\n", out.ChangeID, strings.Join(decisionNames(esc.Options), "|"))
	case out.Aborted:
		fmt.Fprintln(w, "\n✗ Run aborted")
	case out.Completed:
		fmt.Fprintln(w, "\n✓ Workflow completed")
	}
	fmt.Fprintf(w, "%s\n", strings.Repeat("═", 60))
}

func decisionNames(ds []engine.Decision) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = string(d)
	}
	return out
}
