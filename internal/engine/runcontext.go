package engine

import (
	"sync"

	"github.com/google/uuid"
)

// RunContext carries the approval and failure state of one driver
// session. It is passed into every engine call and never shared between
// runs.
type RunContext struct {
	RunID        string
	ChangeID     string
	AutoApproved bool

	mu     sync.Mutex
	failed bool
}

// NewRunContext starts a run with a fresh run id
func NewRunContext(changeID string, autoApproved bool) *RunContext {
	return &RunContext{
		RunID:        uuid.NewString(),
		ChangeID:     changeID,
		AutoApproved: autoApproved,
	}
}

// AutoProceed reports whether workers may continue without asking: the
// run was pre-approved and nothing has failed yet.
func (rc *RunContext) AutoProceed() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.AutoApproved && !rc.failed
}

// MarkFailed records that an attempt failed in this run
func (rc *RunContext) MarkFailed() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.failed = true
}

// Failed reports whether any attempt failed in this run
func (rc *RunContext) Failed() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.failed
}
