package phases

import (
	"fmt"
	"regexp"

	"github.com/felixgeelhaar/phaseflow/internal/domain"
)

var (
	bugFixPattern   = regexp.MustCompile(`(?i)\b(?:fix|fixes|bug|bugs|issue|issues|error|errors|crash|crashes)\b`)
	refactorPattern = regexp.MustCompile(`(?i)\b(?:refactor|extract|improv|optimi[sz])\w*`)
	scriptPattern   = regexp.MustCompile(`(?i)\b(?:script|scripts|cli|command|commands|tool|tools|tooling|migrate)\b`)
)

// BlockingGraph answers whether a task matching dependent waits on a task
// matching prerequisite.
type BlockingGraph interface {
	Blocked(dependent, prerequisite func(domain.Task) bool) bool
}

// Selection is the chosen template plus why it was chosen.
type Selection struct {
	Template Template `json:"template" yaml:"template"`
	Reason   string   `json:"reason" yaml:"reason"`
	// Sequentialized lists parallel phases forced to wait on their predecessor
	Sequentialized []string `json:"sequentialized,omitempty" yaml:"sequentialized,omitempty"`
}

// Select maps the aggregate task mix to a template. The first matching
// rule wins. When graph is non-nil the parallel phases are refined
// against it.
func Select(tasks []domain.Task, graph BlockingGraph) Selection {
	name, reason := choose(tasks)
	tmpl, _ := Lookup(name)

	sel := Selection{Template: tmpl, Reason: reason}
	if graph != nil {
		sel.Sequentialized = refine(&sel.Template, graph)
	}
	return sel
}

func choose(tasks []domain.Task) (string, string) {
	var hasUI, hasAPI, hasSchema, scriptish bool
	for _, t := range tasks {
		switch t.Type {
		case domain.TaskTypeUI:
			hasUI = true
		case domain.TaskTypeAPI:
			hasAPI = true
		case domain.TaskTypeDataSchema:
			hasSchema = true
		case domain.TaskTypeScript:
			scriptish = true
		}
		if scriptPattern.MatchString(t.Text()) {
			scriptish = true
		}
	}

	if id, ok := firstMatch(tasks, bugFixPattern); ok {
		return TemplateBugFix, fmt.Sprintf("task %s describes a defect", id)
	}
	if id, ok := firstMatch(tasks, refactorPattern); ok {
		return TemplateRefactor, fmt.Sprintf("task %s restructures existing code", id)
	}
	if scriptish && !hasUI && !hasAPI {
		return TemplateScriptOnly, "script work with no ui or api tasks"
	}
	switch {
	case hasUI && (hasAPI || hasSchema):
		return TemplateFullStack, "ui tasks together with api or schema tasks"
	case hasUI:
		return TemplateFrontendOnly, "ui tasks only"
	case hasAPI || hasSchema:
		return TemplateBackendOnly, "api or schema tasks only"
	}
	return TemplateFullStack, "no specific template matched"
}

func firstMatch(tasks []domain.Task, re *regexp.Regexp) (domain.TaskID, bool) {
	for _, t := range tasks {
		if re.MatchString(t.Text()) {
			return t.ID, true
		}
	}
	return "", false
}

// refine forces a parallel phase to run after its predecessor when a task
// owned by the phase's role is blocked by a task owned by the
// predecessor's role.
func refine(t *Template, graph BlockingGraph) []string {
	var forced []string
	for i := 1; i < len(t.Phases); i++ {
		p := &t.Phases[i]
		if p.DependsOnPriorPhase {
			continue
		}
		role, prior := p.WorkerRole, t.Phases[i-1].WorkerRole
		blocked := graph.Blocked(
			func(task domain.Task) bool { return role.OwnsTaskType(task.Type) },
			func(task domain.Task) bool { return prior.OwnsTaskType(task.Type) },
		)
		if blocked {
			p.DependsOnPriorPhase = true
			forced = append(forced, p.Name)
		}
	}
	return forced
}
