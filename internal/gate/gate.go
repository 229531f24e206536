// Package gate implements the four checkpoints that guard a workflow run:
// routing before dispatch, validation of worker responses, freshness of
// the persisted state before reporting, and readiness before a phase
// starts. Every gate is a pure function returning a Result.
package gate

// Name identifies a gate
type Name string

// Gates
const (
	Routing      Name = "routing"
	PostResponse Name = "post-response"
	Freshness    Name = "freshness"
	Readiness    Name = "readiness"
)

// Verdict is what the engine should do after a gate ran
type Verdict string

// Verdicts
const (
	VerdictPass     Verdict = "pass"
	VerdictRetry    Verdict = "retry"
	VerdictEscalate Verdict = "escalate"
)

// Evidence is what a passing response told us about the work
type Evidence struct {
	Files          []string `json:"files,omitempty"`
	TasksCompleted []string `json:"tasksCompleted,omitempty"`
	Notes          string   `json:"notes,omitempty"`
	TestsPassed    int      `json:"testsPassed,omitempty"`
	TestsFailed    int      `json:"testsFailed,omitempty"`
}

// Result is the outcome of one gate evaluation
type Result struct {
	Gate     Name     `json:"gate"`
	Pass     bool     `json:"pass"`
	Verdict  Verdict  `json:"verdict"`
	Reason   string   `json:"reason,omitempty"`
	Failures []string `json:"failures,omitempty"`
	Evidence Evidence `json:"evidence,omitempty"`

	err error
}

// Err returns the coded error behind a failed gate, or nil
func (r Result) Err() error {
	if r.Pass {
		return nil
	}
	return r.err
}

func pass(g Name) Result {
	return Result{Gate: g, Pass: true, Verdict: VerdictPass}
}

func fail(g Name, reason string, err error) Result {
	return Result{Gate: g, Verdict: VerdictEscalate, Reason: reason, err: err}
}
