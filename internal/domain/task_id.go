package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// TaskID represents a unique identifier for a task.
// Subtask IDs append a 1-based index to their parent: "auth.2".
type TaskID string

var (
	// taskIDSegment is one dot-separated part of a task ID
	taskIDSegment = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

	// maxTaskIDLength is the maximum allowed length for a task ID
	maxTaskIDLength = 100
)

// NewTaskID creates a new TaskID value object with validation
func NewTaskID(value string) (TaskID, error) {
	id := TaskID(value)
	if err := id.Validate(); err != nil {
		return "", err
	}
	return id, nil
}

// Validate checks if the task ID is valid
func (t TaskID) Validate() error {
	s := string(t)

	if s == "" {
		return fmt.Errorf("task ID cannot be empty")
	}

	if len(s) > maxTaskIDLength {
		return fmt.Errorf("task ID %q exceeds maximum length of %d characters", s, maxTaskIDLength)
	}

	for _, seg := range strings.Split(s, ".") {
		if !taskIDSegment.MatchString(seg) {
			return fmt.Errorf("task ID %q must be dot-separated segments of letters, numbers, '-' and '_'", s)
		}
	}

	return nil
}

// Subtask returns the ID of the index-th subtask (1-based).
func (t TaskID) Subtask(index int) TaskID {
	return TaskID(string(t) + "." + strconv.Itoa(index))
}

// Parent returns the parent ID and true for subtask IDs.
func (t TaskID) Parent() (TaskID, bool) {
	s := string(t)
	i := strings.LastIndexByte(s, '.')
	if i < 0 {
		return "", false
	}
	return TaskID(s[:i]), true
}

// String returns the string representation
func (t TaskID) String() string {
	return string(t)
}
