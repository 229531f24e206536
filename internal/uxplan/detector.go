// Package uxplan detects whether a page or UX plan was already written
// for a change, which lowers the complexity of the change's UI tasks.
package uxplan

import (
	"io/fs"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ChangeIDPlaceholder is replaced by the change id in every pattern
const ChangeIDPlaceholder = "{changeId}"

// DefaultPatterns are the locations searched when none are configured
var DefaultPatterns = []string{
	"docs/ux/" + ChangeIDPlaceholder + "/**/*.md",
	"docs/ux/" + ChangeIDPlaceholder + ".md",
	".phaseflow/ux/" + ChangeIDPlaceholder + "/**",
}

// globMeta are the characters that would make a change id a pattern
const globMeta = `*?[]{}\\`

// Detector implements classify.UXPlanSignal over a directory tree
type Detector struct {
	fsys     fs.FS
	patterns []string
}

// NewDetector searches root for the given patterns. An empty pattern
// list falls back to DefaultPatterns.
func NewDetector(root string, patterns []string) *Detector {
	return NewDetectorFS(os.DirFS(root), patterns)
}

// NewDetectorFS searches fsys for the given patterns
func NewDetectorFS(fsys fs.FS, patterns []string) *Detector {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	return &Detector{fsys: fsys, patterns: append([]string(nil), patterns...)}
}

// HasUXPlan reports whether any pattern matches a regular file
func (d *Detector) HasUXPlan(changeID string) bool {
	if changeID == "" || strings.ContainsAny(changeID, globMeta) {
		return false
	}
	for _, p := range d.patterns {
		pattern := strings.ReplaceAll(p, ChangeIDPlaceholder, changeID)
		if !doublestar.ValidatePattern(pattern) {
			continue
		}
		matches, err := doublestar.Glob(d.fsys, pattern, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
		if err == nil && len(matches) > 0 {
			return true
		}
	}
	return false
}

// Patterns returns the resolved patterns for a change
func (d *Detector) Patterns(changeID string) []string {
	out := make([]string, len(d.patterns))
	for i, p := range d.patterns {
		out[i] = strings.ReplaceAll(p, ChangeIDPlaceholder, changeID)
	}
	return out
}
