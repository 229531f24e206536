package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// ChangeID identifies one workflow run and names its state document.
type ChangeID string

var (
	changeIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

	maxChangeIDLength = 128
)

// NewChangeID creates a new ChangeID value object with validation
func NewChangeID(value string) (ChangeID, error) {
	id := ChangeID(value)
	if err := id.Validate(); err != nil {
		return "", err
	}
	return id, nil
}

// Validate checks that the ID is usable as a storage key
func (c ChangeID) Validate() error {
	s := string(c)

	if s == "" {
		return fmt.Errorf("change ID cannot be empty")
	}

	if len(s) > maxChangeIDLength {
		return fmt.Errorf("change ID %q exceeds maximum length of %d characters", s, maxChangeIDLength)
	}

	if !changeIDPattern.MatchString(s) {
		return fmt.Errorf("change ID %q must start with a letter or number and contain only letters, numbers, '.', '-' and '_'", s)
	}

	if strings.Contains(s, "..") {
		return fmt.Errorf("change ID %q cannot contain '..'", s)
	}

	return nil
}

// String returns the string representation
func (c ChangeID) String() string {
	return string(c)
}
