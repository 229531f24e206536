// Package health runs the preflight checks behind phaseflow doctor.
//
// Each Checker verifies one dependency a run needs (the state backend,
// a worker command, the UX plan patterns) and reports a Result:
//
//	manager := health.NewManager()
//	manager.AddChecker(health.NewStorageChecker(backend))
//	results := manager.Check(ctx)
package health

import (
	"context"
	"time"
)

// Checker verifies one dependency of a workflow run.
type Checker interface {
	// Name is unique among the checkers of a Manager, lowercase with hyphens.
	Name() string

	// Check must respect the context deadline.
	Check(ctx context.Context) *Result
}

// Status is the outcome of a check.
type Status string

const (
	// StatusHealthy means the dependency is usable.
	StatusHealthy Status = "healthy"

	// StatusDegraded means runs can proceed but some phases will stall.
	StatusDegraded Status = "degraded"

	// StatusUnhealthy means runs cannot proceed.
	StatusUnhealthy Status = "unhealthy"
)

func (s Status) String() string {
	return string(s)
}

// rank orders statuses from best to worst
func (s Status) rank() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Result is the outcome of one check.
type Result struct {
	Status  Status            `json:"status"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Latency time.Duration     `json:"latency"`
}

// NewResult creates a result with no details.
func NewResult(status Status, message string) *Result {
	return &Result{
		Status:  status,
		Message: message,
		Details: make(map[string]string),
	}
}

// WithDetail adds a detail and returns the result for chaining.
func (r *Result) WithDetail(key, value string) *Result {
	r.Details[key] = value
	return r
}

func Healthy(message string) *Result {
	return NewResult(StatusHealthy, message)
}

func Degraded(message string) *Result {
	return NewResult(StatusDegraded, message)
}

func Unhealthy(message string) *Result {
	return NewResult(StatusUnhealthy, message)
}
