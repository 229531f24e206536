package worker

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/felixgeelhaar/phaseflow/internal/errors"
)

// CommandWorker runs an external program per invocation. The request is
// written to stdin as JSON. Stdout is either a JSON Response, a bare JSON
// Report, or free text.
type CommandWorker struct {
	path    string
	args    []string
	timeout time.Duration
	env     []string
}

// NewCommandWorker creates a worker for command (program plus args). A
// zero timeout means no limit.
func NewCommandWorker(command []string, timeout time.Duration) (*CommandWorker, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, fmt.Errorf("worker command cannot be empty")
	}
	path, err := exec.LookPath(command[0])
	if err != nil {
		return nil, fmt.Errorf("executable not found: %s: %w", command[0], err)
	}
	return &CommandWorker{
		path:    path,
		args:    append([]string(nil), command[1:]...),
		timeout: timeout,
	}, nil
}

// WithEnv adds KEY=VALUE pairs to the child environment
func (c *CommandWorker) WithEnv(env ...string) *CommandWorker {
	c.env = append(c.env, env...)
	return c
}

// Invoke runs the command once
func (c *CommandWorker) Invoke(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	requestJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.path, c.args...)
	cmd.Stdin = bytes.NewReader(requestJSON)
	if len(c.env) > 0 {
		cmd.Env = append(cmd.Environ(), c.env...)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.ErrCodeWorkerInvoke,
				fmt.Sprintf("worker %s for phase %q did not answer", req.WorkerRole, req.PhaseName), ctx.Err())
		}
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			return nil, errors.Wrap(errors.ErrCodeWorkerInvoke,
				fmt.Sprintf("worker %s exited with code %d", req.WorkerRole, exitErr.ExitCode()),
				fmt.Errorf("%s", strings.TrimSpace(stderr.String())))
		}
		return nil, errors.Wrap(errors.ErrCodeWorkerInvoke, "failed to execute worker", err)
	}

	resp := ParseOutput(output)
	resp.Duration = time.Since(start)
	return resp, nil
}

// ParseOutput decodes worker stdout. JSON that looks like a Response or a
// Report is used as such; anything else is kept as free text.
func ParseOutput(output []byte) *Response {
	trimmed := bytes.TrimSpace(output)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var probe map[string]json.RawMessage
		if json.Unmarshal(trimmed, &probe) == nil {
			if _, ok := probe["report"]; ok {
				var resp Response
				if json.Unmarshal(trimmed, &resp) == nil {
					return &resp
				}
			}
			if _, ok := probe["completed"]; ok {
				var report Report
				if json.Unmarshal(trimmed, &report) == nil {
					return &Response{Report: &report}
				}
			}
			if text, ok := probe["text"]; ok {
				var s string
				if json.Unmarshal(text, &s) == nil {
					return &Response{Text: s}
				}
			}
		}
	}
	return &Response{Text: string(output)}
}
