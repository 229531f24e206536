package gate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/felixgeelhaar/phaseflow/internal/domain"
	"github.com/felixgeelhaar/phaseflow/internal/errors"
	"github.com/felixgeelhaar/phaseflow/internal/worker"
)

// Text markers used when a worker answers in free text
var (
	readinessMarker  = regexp.MustCompile(`(?i)\breadiness\s+report\b`)
	testPlanMarker   = regexp.MustCompile(`(?i)\btest\s+plan\b`)
	completionMarker = regexp.MustCompile(`(?i)\b(?:phase\s+complete|completed|complete|done|finished)\b`)
	notCompleted     = regexp.MustCompile(`(?i)\b(?:not|never|cannot|can't|couldn't|didn't|isn't|wasn't|unable\s+to|failed\s+to)\s+(?:(?:yet|be|been|fully|quite|get|able\s+to)\s+)*(?:complete|completed|finish|finished|done)\b`)
	fileVerb         = regexp.MustCompile(`(?i)\b(?:created|modified|updated|added|wrote|changed)\b`)
	filePath         = regexp.MustCompile("(?:[A-Za-z0-9_.-]+/)*[A-Za-z0-9_-][A-Za-z0-9_.-]*\\.[A-Za-z][A-Za-z0-9]{0,5}\\b")
	codeFence        = regexp.MustCompile("(?m)^\\s*```")
	passedCount      = regexp.MustCompile(`(?i)\b(\d+)\s+(?:tests?\s+)?passed\b`)
	failedCount      = regexp.MustCompile(`(?i)\b(\d+)\s+(?:tests?\s+)?failed\b`)
	errorReport      = regexp.MustCompile(`(?i)\b(?:error|exception|panic|fatal)\s*:|\bfailed\s+with\b|\b(?:uncaught|unhandled)\s+(?:errors?|exceptions?)\b|\b(?:exception|panic)\s+(?:was\s+)?(?:thrown|raised|occurred)\b|\bpanicked\b|\b(?:build|compile|compilation|runtime)\s+errors?\b`)
	resolvedToken    = regexp.MustCompile(`(?i)\b(?:fixed|resolved)\b`)
	tasksLine        = regexp.MustCompile(`(?im)^\s*tasks?\s+completed:\s*(.+)$`)
	tasksPrefix      = regexp.MustCompile(`(?i)^\s*tasks?\s+completed:`)
)

// ResponseCheck is the input of the post-response gate
type ResponseCheck struct {
	Phase    string
	Role     domain.WorkerRole
	Response *worker.Response
	// Attempt is 1-based within the current retry streak
	Attempt    int
	MaxRetries int
	// FileGlobs restricts which reported files count for the role
	FileGlobs []string
}

// CheckResponse runs the pre-work checks and then the quality checks on a
// worker response. A failure yields VerdictRetry while retries remain and
// VerdictEscalate after.
func CheckResponse(in ResponseCheck) Result {
	if in.Response == nil {
		return retryOrEscalate(in, "empty response", errors.NewQualityFailure(in.Phase, []string{"worker returned no response"}), []string{"worker returned no response"})
	}

	if missing := preWork(in); len(missing) > 0 {
		return retryOrEscalate(in, "pre-work validation failed", errors.NewValidationFailure(in.Phase, missing), missing)
	}

	evidence, failures := quality(in)
	if len(failures) > 0 {
		return retryOrEscalate(in, "quality validation failed", errors.NewQualityFailure(in.Phase, failures), failures)
	}

	r := pass(PostResponse)
	r.Evidence = evidence
	return r
}

func retryOrEscalate(in ResponseCheck, reason string, err error, failures []string) Result {
	r := fail(PostResponse, reason, err)
	r.Failures = failures
	if in.Attempt <= in.MaxRetries {
		r.Verdict = VerdictRetry
	}
	return r
}

// preWork returns the required markers the response is missing
func preWork(in ResponseCheck) []string {
	rep, text := in.Response.Report, in.Response.Text
	var missing []string
	switch {
	case in.Role.ProducesContent():
		if rep != nil {
			if strings.TrimSpace(rep.ReadinessReport) == "" {
				missing = append(missing, "readiness report")
			}
		} else if !readinessMarker.MatchString(text) {
			missing = append(missing, "readiness report")
		}
	case in.Role == domain.RoleTester:
		if rep != nil {
			if strings.TrimSpace(rep.TestPlan) == "" {
				missing = append(missing, "test plan")
			}
		} else if !testPlanMarker.MatchString(text) {
			missing = append(missing, "test plan")
		}
	}
	return missing
}

func quality(in ResponseCheck) (Evidence, []string) {
	if rep := in.Response.Report; rep != nil {
		return structuredQuality(in, rep)
	}
	return textQuality(in, in.Response.Text)
}

func structuredQuality(in ResponseCheck, rep *worker.Report) (Evidence, []string) {
	ev := Evidence{
		Files:          matchGlobs(in.FileGlobs, rep.FilesTouched),
		TasksCompleted: append([]string(nil), rep.TasksCompleted...),
		Notes:          rep.Notes,
	}
	var failures []string
	if !rep.Completed {
		failures = append(failures, "response does not report completion")
	}
	if in.Role.ProducesContent() && len(ev.Files) == 0 {
		failures = append(failures, fileFailure(in.FileGlobs))
	}
	if in.Role == domain.RoleTester {
		if rep.TestResults == nil {
			failures = append(failures, "no pass/fail counts reported")
		} else {
			ev.TestsPassed, ev.TestsFailed = rep.TestResults.Passed, rep.TestResults.Failed
			if rep.TestResults.Failed > 0 {
				failures = append(failures, fmt.Sprintf("%d tests failed", rep.TestResults.Failed))
			}
		}
	}
	for _, e := range rep.Errors {
		if !e.Resolved {
			failures = append(failures, "unresolved error: "+e.Message)
		}
	}
	return ev, failures
}

func textQuality(in ResponseCheck, text string) (Evidence, []string) {
	lines := proseLines(text)
	ev := Evidence{
		Files:          matchGlobs(in.FileGlobs, filesIn(lines)),
		TasksCompleted: tasksIn(text),
	}
	var failures []string
	switch status := statusText(lines); {
	case notCompleted.MatchString(status):
		failures = append(failures, "response reports the work as not completed")
	case !completionMarker.MatchString(status):
		failures = append(failures, "missing completion marker")
	}
	if in.Role.ProducesContent() {
		if len(ev.Files) == 0 {
			failures = append(failures, fileFailure(in.FileGlobs))
		}
		if !codeFence.MatchString(text) {
			failures = append(failures, "no code blocks in response")
		}
	}
	if in.Role == domain.RoleTester {
		passed, okPassed := count(passedCount, text)
		failed, okFailed := count(failedCount, text)
		ev.TestsPassed, ev.TestsFailed = passed, failed
		switch {
		case !okPassed && !okFailed:
			failures = append(failures, "no pass/fail counts reported")
		case failed > 0:
			failures = append(failures, fmt.Sprintf("%d tests failed", failed))
		}
	}
	for _, line := range lines {
		// file names such as errors.go are not error reports
		bare := filePath.ReplaceAllString(line, "")
		if errorReport.MatchString(bare) && !resolvedToken.MatchString(bare) && !zeroErrors(bare) {
			failures = append(failures, "unresolved error: "+strings.TrimSpace(line))
		}
	}
	return ev, failures
}

// proseLines returns the lines of text outside fenced code blocks
func proseLines(text string) []string {
	var out []string
	inFence := false
	for _, line := range strings.Split(text, "\n") {
		if codeFence.MatchString(line) {
			inFence = !inFence
			continue
		}
		if !inFence {
			out = append(out, line)
		}
	}
	return out
}

// statusText joins the prose lines that may carry a completion marker.
// A "Tasks completed:" list names tasks and says nothing about the phase.
func statusText(lines []string) string {
	var b strings.Builder
	for _, line := range lines {
		if tasksPrefix.MatchString(line) {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

var noErrors = regexp.MustCompile(`(?i)\b(?:no|0|zero)\s+(?:\w+\s+)?(?:errors?|exceptions?)\b`)

func zeroErrors(line string) bool {
	return noErrors.MatchString(line)
}

func fileFailure(globs []string) string {
	if len(globs) > 0 {
		return fmt.Sprintf("no created or modified files matching %s", strings.Join(globs, ", "))
	}
	return "no created or modified files listed"
}

// filesIn extracts file paths from lines that say a file was touched
func filesIn(lines []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, line := range lines {
		if !fileVerb.MatchString(line) {
			continue
		}
		for _, f := range filePath.FindAllString(line, -1) {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}

func tasksIn(text string) []string {
	var out []string
	for _, m := range tasksLine.FindAllStringSubmatch(text, -1) {
		for _, id := range strings.Split(m[1], ",") {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, id)
			}
		}
	}
	return out
}

func count(re *regexp.Regexp, text string) (int, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	return n, err == nil
}

// matchGlobs keeps the files matched by any glob; no globs keeps all
func matchGlobs(globs, files []string) []string {
	if len(globs) == 0 {
		return append([]string(nil), files...)
	}
	var out []string
	for _, f := range files {
		for _, g := range globs {
			if ok, err := doublestar.Match(g, f); err == nil && ok {
				out = append(out, f)
				break
			}
		}
	}
	return out
}
