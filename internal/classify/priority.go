package classify

import (
	"sort"

	"github.com/felixgeelhaar/phaseflow/internal/domain"
)

// ScorePriority combines the classification with the task's place in the
// dependency graph.
func (rs *RuleSet) ScorePriority(task domain.Task, c Classification, deps domain.Dependencies) Priority {
	score := 50
	if rs.BusinessCritical.Matches(task.Text()) {
		score += rs.BusinessCritical.Weight
	}
	score += 10 * len(deps.Blocks)
	if len(deps.BlockedBy) == 0 {
		score += 20
	}
	switch c.Risk.Level {
	case domain.RiskHigh:
		score += 15
	case domain.RiskMedium:
		score += 5
	}
	if c.Complexity.Score <= 3 {
		score += 10
	}
	if task.Type == domain.TaskTypeUI {
		score += 10
	}

	score = domain.Clamp(score, 0, 100)
	return Priority{Score: score, Label: domain.PriorityLabelFor(score)}
}

// Rank orders classified tasks by priority score, then complexity, both
// descending, then by task ID. The input is not modified.
func Rank(items []Classified) []Classified {
	out := append([]Classified(nil), items...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Classification, out[j].Classification
		if a.Priority.Score != b.Priority.Score {
			return a.Priority.Score > b.Priority.Score
		}
		if a.Complexity.Score != b.Complexity.Score {
			return a.Complexity.Score > b.Complexity.Score
		}
		return out[i].Task.ID < out[j].Task.ID
	})
	return out
}
