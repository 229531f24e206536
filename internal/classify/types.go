package classify

import "github.com/felixgeelhaar/phaseflow/internal/domain"

// Complexity is the 1–10 effort rating of a task
type Complexity struct {
	Score   int                    `json:"score" yaml:"score"`
	Level   domain.ComplexityLevel `json:"level" yaml:"level"`
	Factors []string               `json:"factors" yaml:"factors"`
}

// Risk is the failure-impact rating of a task
type Risk struct {
	Level       domain.RiskLevel `json:"level" yaml:"level"`
	Score       int              `json:"score" yaml:"score"`
	Categories  []string         `json:"categories,omitempty" yaml:"categories,omitempty"`
	Mitigations []string         `json:"mitigations" yaml:"mitigations"`
}

// Research describes up-front research a task needs
type Research struct {
	Required         bool     `json:"required" yaml:"required"`
	Category         string   `json:"category" yaml:"category"`
	Queries          []string `json:"queries" yaml:"queries"`
	EstimatedMinutes int      `json:"estimatedMinutes" yaml:"estimatedMinutes"`
}

// TDD records whether a task must be built test-first
type TDD struct {
	Required bool     `json:"required" yaml:"required"`
	Reasons  []string `json:"reasons,omitempty" yaml:"reasons,omitempty"`
}

// Priority is the 0–100 ranking score of a task
type Priority struct {
	Score int                  `json:"score" yaml:"score"`
	Label domain.PriorityLabel `json:"label" yaml:"label"`
}

// Classification is everything the classifier derives for one task.
type Classification struct {
	TaskID         domain.TaskID       `json:"taskId" yaml:"taskId"`
	Complexity     Complexity          `json:"complexity" yaml:"complexity"`
	Risk           Risk                `json:"risk" yaml:"risk"`
	Research       *Research           `json:"research" yaml:"research"`
	TDD            TDD                 `json:"tdd" yaml:"tdd"`
	Dependencies   domain.Dependencies `json:"dependencies" yaml:"dependencies"`
	Priority       Priority            `json:"priority" yaml:"priority"`
	Subtasks       []Subtask           `json:"subtasks" yaml:"subtasks"`
	RuleSetVersion string              `json:"ruleSetVersion" yaml:"ruleSetVersion"`
}

// Clone returns a deep copy so cached values are never shared.
func (c Classification) Clone() Classification {
	out := c
	out.Complexity.Factors = append([]string(nil), c.Complexity.Factors...)
	out.Risk.Categories = append([]string(nil), c.Risk.Categories...)
	out.Risk.Mitigations = append([]string(nil), c.Risk.Mitigations...)
	if c.Research != nil {
		r := *c.Research
		r.Queries = append([]string(nil), c.Research.Queries...)
		out.Research = &r
	}
	out.TDD.Reasons = append([]string(nil), c.TDD.Reasons...)
	out.Dependencies = c.Dependencies.Clone()
	out.Subtasks = cloneSubtasks(c.Subtasks)
	return out
}

// Classified pairs a task with its classification
type Classified struct {
	Task           domain.Task    `json:"task" yaml:"task"`
	Classification Classification `json:"classification" yaml:"classification"`
}
