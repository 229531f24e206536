package domain

import (
	"fmt"
	"strings"
)

// TaskType is the declared kind of work a task represents.
type TaskType string

// Declared task types
const (
	TaskTypeUI          TaskType = "ui"
	TaskTypeAPI         TaskType = "api"
	TaskTypeDataSchema  TaskType = "data-schema"
	TaskTypeTest        TaskType = "test"
	TaskTypeIntegration TaskType = "integration"
	TaskTypeScript      TaskType = "script"
)

// TaskTypes lists every declared type in a stable order.
var TaskTypes = []TaskType{
	TaskTypeUI, TaskTypeAPI, TaskTypeDataSchema, TaskTypeTest, TaskTypeIntegration, TaskTypeScript,
}

// ParseTaskType parses a task type, accepting a few common aliases.
func ParseTaskType(s string) (TaskType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ui", "frontend":
		return TaskTypeUI, nil
	case "api", "backend":
		return TaskTypeAPI, nil
	case "data-schema", "schema", "database", "db":
		return TaskTypeDataSchema, nil
	case "test", "tests":
		return TaskTypeTest, nil
	case "integration", "ui-integration":
		return TaskTypeIntegration, nil
	case "script", "cli":
		return TaskTypeScript, nil
	default:
		return "", fmt.Errorf("invalid task type %q: must be one of ui, api, data-schema, test, integration, script", s)
	}
}

// Validate checks if the type is one of the declared types
func (t TaskType) Validate() error {
	for _, known := range TaskTypes {
		if t == known {
			return nil
		}
	}
	return fmt.Errorf("invalid task type %q", string(t))
}

// String returns the string representation
func (t TaskType) String() string {
	return string(t)
}

// Task is one unit of work supplied to setup. Tasks are never mutated
// after classification.
type Task struct {
	ID               TaskID   `json:"id" yaml:"id"`
	Title            string   `json:"title" yaml:"title"`
	Description      string   `json:"description,omitempty" yaml:"description,omitempty"`
	Type             TaskType `json:"type" yaml:"type"`
	EstimatedMinutes int      `json:"estimatedMinutes" yaml:"estimatedMinutes"`
}

// Text is the title and description joined, the input to every text rule.
func (t Task) Text() string {
	if t.Description == "" {
		return t.Title
	}
	return t.Title + " " + t.Description
}

// Validate checks the task's ID, title, type and estimate.
func (t Task) Validate() error {
	if err := t.ID.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("task %q has an empty title", t.ID)
	}
	if err := t.Type.Validate(); err != nil {
		return fmt.Errorf("task %q: %w", t.ID, err)
	}
	if t.EstimatedMinutes < 0 {
		return fmt.Errorf("task %q has a negative estimate", t.ID)
	}
	return nil
}
