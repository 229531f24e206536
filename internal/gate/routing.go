package gate

import (
	"fmt"
	"regexp"

	"github.com/felixgeelhaar/phaseflow/internal/domain"
	"github.com/felixgeelhaar/phaseflow/internal/errors"
	"github.com/felixgeelhaar/phaseflow/internal/phases"
)

// WorkKind separates work a driver may do itself from work it must delegate
type WorkKind string

// Work kinds
const (
	WorkPlanning       WorkKind = "planning"
	WorkImplementation WorkKind = "implementation"
)

var implementationPattern = regexp.MustCompile(`(?i)\b(?:implement|build|create|write|fix|code|migrate)\w*`)

// Work is a unit of work about to be performed
type Work struct {
	Phase      string
	Tags       []string
	Text       string
	WorkerRole domain.WorkerRole
	// Direct is set when the driver wants to do the work itself
	Direct bool
}

// ClassifyWork decides whether work is planning or implementation. Phase
// tags decide first; untagged work falls back to keywords.
func ClassifyWork(tags []string, text string) WorkKind {
	for _, t := range tags {
		if t == phases.TagPlanning {
			return WorkPlanning
		}
	}
	for _, t := range tags {
		switch t {
		case phases.TagImplementation, phases.TagTesting, phases.TagReview:
			return WorkImplementation
		}
	}
	if implementationPattern.MatchString(text) {
		return WorkImplementation
	}
	return WorkPlanning
}

// CheckRouting is the pre-dispatch gate. Implementation work must go to
// a worker role; only planning work may be done directly.
func CheckRouting(w Work) Result {
	kind := ClassifyWork(w.Tags, w.Text)
	if w.Direct {
		if kind == WorkImplementation {
			reason := "implementation work cannot be executed directly"
			return fail(Routing, reason, errors.NewRoutingViolationError(w.Phase, reason))
		}
		r := pass(Routing)
		r.Reason = fmt.Sprintf("%s work may be executed directly", kind)
		return r
	}
	if err := w.WorkerRole.Validate(); err != nil {
		reason := "no worker role assigned"
		return fail(Routing, reason, errors.NewRoutingViolationError(w.Phase, reason))
	}
	r := pass(Routing)
	r.Reason = fmt.Sprintf("%s work delegated to %s", kind, w.WorkerRole)
	return r
}
