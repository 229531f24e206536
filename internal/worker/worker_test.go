package worker

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/phaseflow/internal/domain"
	"github.com/felixgeelhaar/phaseflow/internal/errors"
)

func script(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not available on windows")
	}
	path := filepath.Join(t.TempDir(), "worker.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   *Response
	}{
		{
			name:   "full response",
			output: `{"report":{"completed":true,"filesTouched":["a.go"]}}`,
			want:   &Response{Report: &Report{Completed: true, FilesTouched: []string{"a.go"}}},
		},
		{
			name:   "bare report",
			output: "  {\"completed\":false,\"notes\":\"stuck\"}\n",
			want:   &Response{Report: &Report{Notes: "stuck"}},
		},
		{
			name:   "json text envelope",
			output: `{"text":"Phase complete"}`,
			want:   &Response{Text: "Phase complete"},
		},
		{
			name:   "free text",
			output: "Readiness report: ok\nDone.",
			want:   &Response{Text: "Readiness report: ok\nDone."},
		},
		{
			name:   "unrelated json stays text",
			output: `{"foo":1}`,
			want:   &Response{Text: `{"foo":1}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseOutput([]byte(tt.output)))
		})
	}
}

func TestCommandWorkerSendsRequestOnStdin(t *testing.T) {
	// echo the phase name back inside a structured report
	path := script(t, `read -r line
phase=$(printf '%s' "$line" | sed -n 's/.*"phaseName":"\([^"]*\)".*/\1/p')
printf '{"completed":true,"notes":"%s"}' "$phase"
`)
	w, err := NewCommandWorker([]string{path}, 5*time.Second)
	require.NoError(t, err)

	resp, err := w.Invoke(context.Background(), &Request{PhaseName: "database", WorkerRole: domain.RoleSchemaBuilder})
	require.NoError(t, err)
	require.NotNil(t, resp.Report)
	assert.True(t, resp.Report.Completed)
	assert.Equal(t, "database", resp.Report.Notes)
	assert.Greater(t, resp.Duration, time.Duration(0))
}

func TestCommandWorkerFailures(t *testing.T) {
	_, err := NewCommandWorker(nil, 0)
	assert.Error(t, err)

	_, err = NewCommandWorker([]string{"definitely-not-a-real-worker-binary"}, 0)
	assert.ErrorContains(t, err, "executable not found")

	failing := script(t, "cat >/dev/null\necho boom >&2\nexit 3\n")
	w, err := NewCommandWorker([]string{failing}, 0)
	require.NoError(t, err)
	_, err = w.Invoke(context.Background(), &Request{WorkerRole: domain.RoleTester})
	assert.Equal(t, errors.ErrCodeWorkerInvoke, errors.CodeOf(err))
	assert.ErrorContains(t, err, "exited with code 3")
	assert.ErrorContains(t, err, "boom")

	slow := script(t, "exec sleep 5\n")
	w, err = NewCommandWorker([]string{slow}, 100*time.Millisecond)
	require.NoError(t, err)
	_, err = w.Invoke(context.Background(), &Request{WorkerRole: domain.RoleTester, PhaseName: "e2e-tests"})
	assert.Equal(t, errors.ErrCodeWorkerInvoke, errors.CodeOf(err))
	assert.ErrorContains(t, err, "did not answer")
}

func TestCommandWorkerEnv(t *testing.T) {
	path := script(t, "cat >/dev/null\nprintf '%s' \"$PHASEFLOW_ROLE\"\n")
	w, err := NewCommandWorker([]string{path}, 0)
	require.NoError(t, err)
	w.WithEnv("PHASEFLOW_ROLE=integrator")

	resp, err := w.Invoke(context.Background(), &Request{})
	require.NoError(t, err)
	assert.Equal(t, "integrator", resp.Text)
}

func TestScripted(t *testing.T) {
	s := NewScripted(Text("first"), Structured(Report{Completed: true}))
	s.FailWith(2, errors.New(errors.ErrCodeWorkerInvoke, "flaky"))
	ctx := context.Background()

	resp, err := s.Invoke(ctx, &Request{Attempt: 1, Feedback: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Text)

	resp, err = s.Invoke(ctx, &Request{Attempt: 2})
	require.NoError(t, err)
	assert.True(t, resp.Report.Completed)

	_, err = s.Invoke(ctx, &Request{Attempt: 3})
	assert.ErrorContains(t, err, "flaky")

	// the last response repeats
	resp, err = s.Invoke(ctx, &Request{Attempt: 4})
	require.NoError(t, err)
	assert.True(t, resp.Report.Completed)

	assert.Equal(t, 4, s.Calls())
	reqs := s.Requests()
	assert.Equal(t, []string{"x"}, reqs[0].Feedback)
	assert.Equal(t, 3, reqs[2].Attempt)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Invoke(cancelled, &Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(domain.RoleTester, NewScripted(Text("ok"))))
	require.NoError(t, r.Register(domain.RoleAPIBuilder, Func(func(context.Context, *Request) (*Response, error) {
		return Text("api"), nil
	})))
	assert.Error(t, r.Register("painter", NewScripted()))

	w, err := r.Get(domain.RoleAPIBuilder)
	require.NoError(t, err)
	resp, err := w.Invoke(context.Background(), &Request{})
	require.NoError(t, err)
	assert.Equal(t, "api", resp.Text)

	_, err = r.Get(domain.RoleUIBuilder)
	assert.Equal(t, errors.ErrCodeWorkerMissing, errors.CodeOf(err))

	assert.True(t, r.Has(domain.RoleTester))
	assert.Equal(t, []domain.WorkerRole{domain.RoleAPIBuilder, domain.RoleTester}, r.Roles())
}

func TestRequestWireFormat(t *testing.T) {
	data, err := json.Marshal(&Request{
		ChangeID:    "chg-1",
		PhaseName:   "backend",
		PhaseNumber: 8,
		WorkerRole:  domain.RoleAPIBuilder,
		AutoProceed: true,
		Attempt:     2,
		Feedback:    []string{"missing completion marker"},
		RunID:       "run-1",
	})
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, key := range []string{"changeId", "phaseName", "phaseNumber", "workerRole", "taskContext", "autoProceed", "attempt", "feedback", "runId"} {
		assert.Contains(t, doc, key)
	}
}
