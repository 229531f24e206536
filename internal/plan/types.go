package plan

import (
	"github.com/felixgeelhaar/phaseflow/internal/classify"
	"github.com/felixgeelhaar/phaseflow/internal/domain"
	"github.com/felixgeelhaar/phaseflow/internal/phases"
)

// TaskFile is the on-disk shape of a task list
type TaskFile struct {
	Tasks []domain.Task `json:"tasks" yaml:"tasks"`
}

// Plan is the analysed form of a task set: every task classified and
// ranked, a dependency-respecting order, and the selected phase template.
type Plan struct {
	ChangeID       string                `json:"changeId" yaml:"changeId"`
	RuleSetVersion string                `json:"ruleSetVersion" yaml:"ruleSetVersion"`
	Tasks          []classify.Classified `json:"tasks" yaml:"tasks"`
	Order          []domain.TaskID       `json:"order" yaml:"order"`
	Selection      phases.Selection      `json:"selection" yaml:"selection"`
}

// Task returns the classified task with the given id
func (p *Plan) Task(id domain.TaskID) (classify.Classified, bool) {
	for _, t := range p.Tasks {
		if t.Task.ID == id {
			return t, true
		}
	}
	return classify.Classified{}, false
}
