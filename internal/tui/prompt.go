// Package tui holds the interactive prompts of the CLI.
package tui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
)

// SelectOption is one choice of a selection prompt
type SelectOption struct {
	Label string
	Value string
}

// PromptForSelect displays a selection prompt and returns the chosen value
func PromptForSelect(title, description string, options []SelectOption) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("no options provided")
	}

	huhOptions := make([]huh.Option[string], len(options))
	for i, opt := range options {
		huhOptions[i] = huh.NewOption(opt.Label, opt.Value)
	}

	var selected string
	selectField := huh.NewSelect[string]().
		Title(title).
		Description(description).
		Options(huhOptions...).
		Value(&selected)

	form := huh.NewForm(huh.NewGroup(selectField))
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("prompt failed: %w", err)
	}
	return selected, nil
}

// PromptForConfirmation displays a yes/no confirmation prompt
func PromptForConfirmation(message string, defaultValue bool) (bool, error) {
	confirmed := defaultValue

	confirm := huh.NewConfirm().
		Title(message).
		Value(&confirmed)

	form := huh.NewForm(huh.NewGroup(confirm))
	if err := form.Run(); err != nil {
		return false, fmt.Errorf("prompt failed: %w", err)
	}
	return confirmed, nil
}

// IsInteractive returns true if stdin is a terminal (not piped)
func IsInteractive() bool {
	fileInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// ciEnvVars mark a non-interactive CI environment when set
var ciEnvVars = []string{
	"CI",
	"GITHUB_ACTIONS",
	"GITLAB_CI",
	"JENKINS_URL",
	"TRAVIS",
	"CIRCLECI",
	"BUILDKITE",
}

// InCI reports whether a CI environment variable is set
func InCI() bool {
	for _, envVar := range ciEnvVars {
		if os.Getenv(envVar) != "" {
			return true
		}
	}
	return false
}

// ShouldPrompt returns true if prompts should be shown based on environment.
// Prompts are disabled in CI environments or when stdin is not a terminal.
func ShouldPrompt() bool {
	return !InCI() && IsInteractive()
}
