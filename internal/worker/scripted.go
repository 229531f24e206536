package worker

import (
	"context"
	"fmt"
	"sync"
)

// Scripted replays canned responses in order, one per invocation. The
// last response repeats once the script runs out. It backs dry runs and
// tests.
type Scripted struct {
	mu        sync.Mutex
	responses []*Response
	errs      []error
	requests  []Request
}

// NewScripted creates a worker that answers with responses in order
func NewScripted(responses ...*Response) *Scripted {
	return &Scripted{responses: responses}
}

// Text is shorthand for a free-text response
func Text(s string) *Response {
	return &Response{Text: s}
}

// Structured is shorthand for a structured response
func Structured(r Report) *Response {
	return &Response{Report: &r}
}

// FailWith makes invocation i (0-based) return err instead of a response
func (s *Scripted) FailWith(i int, err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.errs) <= i {
		s.errs = append(s.errs, nil)
	}
	s.errs[i] = err
	return s
}

// Invoke returns the next scripted response
func (s *Scripted) Invoke(ctx context.Context, req *Request) (*Response, error) {
	s.mu.Lock()
	i := len(s.requests)
	s.requests = append(s.requests, cloneRequest(req))
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	var resp *Response
	if n := len(s.responses); n > 0 {
		resp = s.responses[min(i, n-1)]
	}
	s.mu.Unlock()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("scripted worker has no response for invocation %d", i+1)
	}
	out := *resp
	return &out, nil
}

// Requests returns a copy of every request seen so far
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Calls returns the number of invocations so far
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func cloneRequest(req *Request) Request {
	out := *req
	out.Feedback = append([]string(nil), req.Feedback...)
	return out
}
