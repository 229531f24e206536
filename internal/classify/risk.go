package classify

import (
	"github.com/felixgeelhaar/phaseflow/internal/domain"
)

// ScoreRisk rates how damaging a failure of the task would be.
// Mitigations depend only on the resulting level and matched categories.
func (rs *RuleSet) ScoreRisk(task domain.Task, c Complexity) Risk {
	text := task.Text()
	score := rs.TierWeights[string(c.Level)]
	var categories []string

	for _, r := range []Rule{rs.Security, rs.External, rs.Migration} {
		if r.Matches(text) {
			score += r.Weight
			categories = append(categories, r.Tag)
		}
	}
	if task.Type == domain.TaskTypeUI && rs.SensitiveUI.Matches(text) {
		score += rs.SensitiveUI.Weight
		categories = append(categories, rs.SensitiveUI.Tag)
	}

	level := domain.RiskLevelFor(score)
	mitigations := append([]string{}, rs.LevelActions[string(level)]...)
	for _, cat := range categories {
		mitigations = append(mitigations, rs.Mitigations[cat]...)
	}

	return Risk{
		Level:       level,
		Score:       score,
		Categories:  categories,
		Mitigations: mitigations,
	}
}

// RequiresTDD decides whether the task must be built test-first.
func (rs *RuleSet) RequiresTDD(task domain.Task, c Complexity, r Risk) TDD {
	text := task.Text()
	var reasons []string
	if r.Level == domain.RiskHigh {
		reasons = append(reasons, "risk is HIGH")
	}
	if c.Score >= 7 {
		reasons = append(reasons, "complexity is 7 or above")
	}
	if rs.Security.Matches(text) {
		reasons = append(reasons, "touches security or payment code")
	}
	if rs.MutationVerb.Matches(text) {
		reasons = append(reasons, "adds a state-changing HTTP endpoint")
	}
	return TDD{Required: len(reasons) > 0, Reasons: reasons}
}
