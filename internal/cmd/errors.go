package cmd

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/phaseflow/internal/config"
)

// ErrorWithSuggestion wraps an error with actionable recovery suggestions
type ErrorWithSuggestion struct {
	Message     string
	Suggestions []string
	err         error
}

func (e *ErrorWithSuggestion) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)

	if e.err != nil {
		b.WriteString(": ")
		b.WriteString(e.err.Error())
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, s := range e.Suggestions {
			b.WriteString("\n  • ")
			b.WriteString(s)
		}
	}

	return b.String()
}

func (e *ErrorWithSuggestion) Unwrap() error {
	return e.err
}

// NewErrorWithSuggestions creates an error with recovery suggestions
func NewErrorWithSuggestions(msg string, err error, suggestions ...string) error {
	return &ErrorWithSuggestion{
		Message:     msg,
		Suggestions: suggestions,
		err:         err,
	}
}

// ConfigLoadError explains a configuration that could not be loaded
func ConfigLoadError(path string, err error) error {
	if path == "" {
		path = config.DefaultPath
	}
	return NewErrorWithSuggestions(
		fmt.Sprintf("Failed to load configuration from %q", path),
		err,
		"Check the YAML syntax of the config file",
		"Check PHASEFLOW_* environment variables for invalid values",
		"Remove the file to fall back to the built-in defaults",
	)
}

// TaskFileError explains a task file that could not be read
func TaskFileError(path string, err error) error {
	return NewErrorWithSuggestions(
		fmt.Sprintf("Failed to load tasks from %q", path),
		err,
		"Task files are YAML or JSON with a top-level tasks list",
		"Every task needs an id, a title and a type (ui, api, data-schema, test, integration, script)",
	)
}

// WorkerSetupError explains a worker command that could not be prepared
func WorkerSetupError(role string, err error) error {
	return NewErrorWithSuggestions(
		fmt.Sprintf("Failed to prepare the %s worker", role),
		err,
		fmt.Sprintf("Check workers.%s.command in the config file", role),
		"Use --simulate to advance with built-in workers that always pass",
	)
}
