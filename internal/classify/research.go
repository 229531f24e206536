package classify

import (
	"fmt"

	"github.com/felixgeelhaar/phaseflow/internal/domain"
)

const maxResearchQueries = 3

// AssessResearch walks the research table and returns the first matching
// category, or nil. UX categories are skipped when uxPlanExists is set.
func (rs *RuleSet) AssessResearch(task domain.Task, uxPlanExists bool) *Research {
	text := task.Text()
	for _, rule := range rs.Research {
		if rule.UX && uxPlanExists {
			continue
		}
		if !rule.Pattern.MatchString(text) {
			continue
		}

		subjects := nounPhrases(text)
		if len(subjects) == 0 {
			subjects = []string{task.Title}
		}
		if len(subjects) > maxResearchQueries {
			subjects = subjects[:maxResearchQueries]
		}
		queries := make([]string, 0, len(subjects))
		for _, s := range subjects {
			queries = append(queries, fmt.Sprintf(rule.Query, s))
		}

		return &Research{
			Required:         true,
			Category:         rule.Category,
			Queries:          queries,
			EstimatedMinutes: rule.Minutes,
		}
	}
	return nil
}
