package classify

import (
	"fmt"

	"github.com/felixgeelhaar/phaseflow/internal/domain"
)

// ScoreComplexity rates the effort a task implies on a 1–10 scale.
func (rs *RuleSet) ScoreComplexity(task domain.Task) Complexity {
	text := task.Text()
	score := rs.Base
	var factors []string

	for _, band := range rs.DurationBands {
		if task.EstimatedMinutes > band.Over {
			score += band.Weight
			factors = append(factors, fmt.Sprintf("duration>%d", band.Over))
			break
		}
	}

	for _, r := range rs.CriticalKeywords {
		if r.Matches(text) {
			score += r.Weight
			factors = append(factors, r.Tag)
		}
	}

	if countMatches(rs.AndConnector, text) > rs.AndThreshold {
		score += rs.AndConnector.Weight
		factors = append(factors, rs.AndConnector.Tag)
	}
	if countMatches(rs.ThenConnector, text) > rs.ThenThreshold {
		score += rs.ThenConnector.Weight
		factors = append(factors, rs.ThenConnector.Tag)
	}

	for _, r := range []Rule{rs.ExternalRef, rs.MutationVerb} {
		if r.Matches(text) {
			score += r.Weight
			factors = append(factors, r.Tag)
		}
	}

	score = domain.Clamp(score, 1, 10)
	return Complexity{
		Score:   score,
		Level:   domain.ComplexityLevelFor(score),
		Factors: factors,
	}
}
