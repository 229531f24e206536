package progress

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/felixgeelhaar/phaseflow/internal/checkpoint"
)

var (
	changeColor = color.New(color.Bold)
	doneColor   = color.New(color.FgGreen)
	activeColor = color.New(color.FgYellow)
	alertColor  = color.New(color.FgRed, color.Bold)
)

// Quick renders the one-line status
func Quick(r Report) string {
	line := fmt.Sprintf("%s %s %3d%% (%d/%d)",
		changeColor.Sprint(r.ChangeID),
		Bar(r.ProgressPercentage, 10),
		r.ProgressPercentage, r.CompletedPhases, r.TotalPhases)

	switch {
	case r.PendingEscalation != nil:
		line += " " + alertColor.Sprintf("escalation pending on %s", r.PendingEscalation.Phase)
	case r.Status == checkpoint.RunAborted:
		line += " " + alertColor.Sprint("aborted")
	case r.Status == checkpoint.RunCompleted:
		line += " " + doneColor.Sprint("completed")
	case r.CurrentPhase != "":
		line += " " + activeColor.Sprintf("next %s [%s]", r.CurrentPhase, r.CurrentRole)
	}
	return line
}
