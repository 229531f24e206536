package plan

import (
	"fmt"

	"github.com/felixgeelhaar/phaseflow/internal/domain"
	"github.com/felixgeelhaar/phaseflow/internal/errors"
)

// ValidateTasks checks a raw task list before classification. The list
// must be non-empty, every task valid and every id unique.
func ValidateTasks(tasks []domain.Task) error {
	if len(tasks) == 0 {
		return errors.NewNoTasksError()
	}

	seen := make(map[domain.TaskID]int, len(tasks))
	for i, t := range tasks {
		if err := t.Validate(); err != nil {
			return errors.NewInvalidTaskError(string(t.ID), fmt.Errorf("task at index %d: %w", i, err))
		}
		if prev, dup := seen[t.ID]; dup {
			return errors.NewInvalidTaskError(string(t.ID), fmt.Errorf("duplicate task ID at index %d and %d", prev, i))
		}
		seen[t.ID] = i
	}
	return nil
}

// Validate checks the structural consistency of a generated plan
func (p *Plan) Validate() error {
	if len(p.Tasks) == 0 {
		return fmt.Errorf("plan must have at least one task")
	}
	if len(p.Order) != len(p.Tasks) {
		return fmt.Errorf("plan order lists %d tasks, plan has %d", len(p.Order), len(p.Tasks))
	}
	if p.Selection.Template.Name == "" || len(p.Selection.Template.Phases) == 0 {
		return fmt.Errorf("plan has no phase template")
	}

	position := make(map[domain.TaskID]int, len(p.Order))
	for i, id := range p.Order {
		position[id] = i
	}
	for _, t := range p.Tasks {
		at, ok := position[t.Task.ID]
		if !ok {
			return fmt.Errorf("task %s missing from plan order", t.Task.ID)
		}
		for _, dep := range t.Classification.Dependencies.BlockedBy {
			if position[dep] > at {
				return fmt.Errorf("task %s is ordered before its prerequisite %s", t.Task.ID, dep)
			}
		}
	}
	return nil
}
