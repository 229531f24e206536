package classify

import (
	"slices"

	"github.com/felixgeelhaar/phaseflow/internal/domain"
)

// maxSubtaskDepth bounds how many levels Breakdown nests below a task.
const maxSubtaskDepth = 2

type splitPattern int

const (
	noSplit splitPattern = iota
	uiAPISplit
	crudSplit
	entitySplit
)

// Subtask is one node of a task breakdown. Its own subtasks come from
// classifying it again with the patterns its ancestors did not use.
type Subtask struct {
	domain.Task `yaml:",inline"`
	Complexity  Complexity `json:"complexity" yaml:"complexity"`
	Subtasks    []Subtask  `json:"subtasks,omitempty" yaml:"subtasks,omitempty"`
}

// Count returns the number of nodes in the subtree, s included.
func (s Subtask) Count() int {
	n := 1
	for _, c := range s.Subtasks {
		n += c.Count()
	}
	return n
}

func (s Subtask) clone() Subtask {
	out := s
	out.Complexity.Factors = append([]string(nil), s.Complexity.Factors...)
	out.Subtasks = cloneSubtasks(s.Subtasks)
	return out
}

func cloneSubtasks(in []Subtask) []Subtask {
	if in == nil {
		return nil
	}
	out := make([]Subtask, len(in))
	for i, s := range in {
		out[i] = s.clone()
	}
	return out
}

// NeedsBreakdown reports whether the task should be split into subtasks.
func (rs *RuleSet) NeedsBreakdown(task domain.Task, c Complexity) bool {
	text := task.Text()
	return c.Score >= 7 ||
		distinctMatches(text, rs.ActionVerbs) > 2 ||
		task.EstimatedMinutes > rs.BreakdownMins ||
		countMatches(rs.AndConnector, text) > rs.AndThreshold
}

// Expand splits a task into ordered subtasks using the first pattern that
// applies: UI+API split, CRUD quadruple, then per-entity split. It returns
// nil when no breakdown is needed or no pattern applies.
func (rs *RuleSet) Expand(task domain.Task, c Complexity) []domain.Task {
	_, subtasks := rs.expand(task, c, nil)
	return subtasks
}

// Breakdown expands a task into a subtask tree. Each subtask is scored and
// expanded again, down to maxSubtaskDepth levels, and a pattern is never
// reapplied below the subtask it produced.
func (rs *RuleSet) Breakdown(task domain.Task, c Complexity) []Subtask {
	return rs.breakdown(task, c, nil)
}

func (rs *RuleSet) breakdown(task domain.Task, c Complexity, used []splitPattern) []Subtask {
	if len(used) >= maxSubtaskDepth {
		return nil
	}
	pattern, tasks := rs.expand(task, c, used)
	if len(tasks) == 0 {
		return nil
	}
	used = append(slices.Clip(used), pattern)
	out := make([]Subtask, 0, len(tasks))
	for _, t := range tasks {
		tc := rs.ScoreComplexity(t)
		out = append(out, Subtask{Task: t, Complexity: tc, Subtasks: rs.breakdown(t, tc, used)})
	}
	return out
}

func (rs *RuleSet) expand(task domain.Task, c Complexity, used []splitPattern) (splitPattern, []domain.Task) {
	if !rs.NeedsBreakdown(task, c) {
		return noSplit, nil
	}

	text := task.Text()
	type part struct {
		title string
		typ   domain.TaskType
	}
	var parts []part
	var pattern splitPattern

	switch {
	case !slices.Contains(used, uiAPISplit) && rs.UINoun.Matches(text) && rs.APINoun.Matches(text):
		pattern = uiAPISplit
		parts = []part{
			{title: task.Title + ": API endpoint", typ: domain.TaskTypeAPI},
			{title: task.Title + ": UI", typ: domain.TaskTypeUI},
			{title: task.Title + ": connect UI to API", typ: domain.TaskTypeIntegration},
		}

	case !slices.Contains(used, crudSplit) && rs.isCRUD(text):
		pattern = crudSplit
		subject := task.Title
		if nouns := EntityNouns(text); len(nouns) > 0 {
			subject = nouns[0]
		}
		for _, verb := range []string{"Create", "Read", "Update", "Delete"} {
			parts = append(parts, part{title: verb + " " + subject, typ: task.Type})
		}

	case !slices.Contains(used, entitySplit):
		entities := capitalizedEntities(task.Title, task.Description)
		if len(entities) < 2 {
			return noSplit, nil
		}
		pattern = entitySplit
		for _, e := range entities {
			parts = append(parts, part{title: task.Title + " (" + e + ")", typ: task.Type})
		}

	default:
		return noSplit, nil
	}

	estimate := 0
	if task.EstimatedMinutes > 0 {
		estimate = (task.EstimatedMinutes + len(parts) - 1) / len(parts)
	}

	subtasks := make([]domain.Task, 0, len(parts))
	for i, p := range parts {
		subtasks = append(subtasks, domain.Task{
			ID:               task.ID.Subtask(i + 1),
			Title:            p.title,
			Type:             p.typ,
			EstimatedMinutes: estimate,
		})
	}
	return pattern, subtasks
}

func (rs *RuleSet) isCRUD(text string) bool {
	if rs.CRUD.Matches(text) {
		return true
	}
	for _, r := range rs.CRUDVerbs {
		if !r.Matches(text) {
			return false
		}
	}
	return true
}
