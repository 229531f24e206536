package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/phaseflow/internal/engine"
)

// deferValue is the menu entry that leaves the decision for later
const deferValue = "defer"

// SelectFunc shows a selection prompt
type SelectFunc func(title, description string, options []SelectOption) (string, error)

// EscalationPrompt asks the person at the terminal how to continue after
// a phase ran out of retries. It implements engine.Escalator.
type EscalationPrompt struct {
	selectFn SelectFunc
}

// NewEscalationPrompt creates a prompt backed by huh
func NewEscalationPrompt() *EscalationPrompt {
	return &EscalationPrompt{selectFn: PromptForSelect}
}

// NewEscalationPromptWith creates a prompt backed by selectFn
func NewEscalationPromptWith(selectFn SelectFunc) *EscalationPrompt {
	return &EscalationPrompt{selectFn: selectFn}
}

var optionLabels = map[engine.Decision]string{
	engine.DecisionRetry: "Retry: start a new attempt streak",
	engine.DecisionSkip:  "Skip: mark the phase skipped and continue",
	engine.DecisionAbort: "Abort: stop the run, keep completed phases",
}

// Decide shows the escalation menu. Choosing "decide later" defers.
func (p *EscalationPrompt) Decide(ctx context.Context, esc engine.Escalation) (engine.Decision, error) {
	if err := ctx.Err(); err != nil {
		return engine.DecisionDefer, err
	}

	options := make([]SelectOption, 0, len(esc.Options)+1)
	for _, d := range esc.Options {
		label, ok := optionLabels[d]
		if !ok {
			label = string(d)
		}
		options = append(options, SelectOption{Label: label, Value: string(d)})
	}
	options = append(options, SelectOption{Label: "Decide later (phaseflow resolve)", Value: deferValue})

	title := fmt.Sprintf("Phase %s (%s) failed %d attempts", esc.Phase, esc.Role, esc.Attempts)
	choice, err := p.selectFn(title, Feedback(esc.Feedback), options)
	if err != nil {
		return engine.DecisionDefer, err
	}
	if choice == deferValue {
		return engine.DecisionDefer, nil
	}
	return engine.ParseDecision(choice)
}

// Feedback formats validation feedback as a bulleted list
func Feedback(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("• ")
		b.WriteString(l)
	}
	return b.String()
}
