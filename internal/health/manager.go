package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
)

// DefaultTimeout bounds each check
const DefaultTimeout = 5 * time.Second

// Manager runs checks in parallel, each under its own timeout.
type Manager struct {
	checkers []Checker
	timeout  time.Duration
	mu       sync.RWMutex
}

// NewManager creates a manager with DefaultTimeout.
func NewManager() *Manager {
	return &Manager{timeout: DefaultTimeout}
}

// WithTimeout sets the per-check timeout.
func (m *Manager) WithTimeout(timeout time.Duration) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
	return m
}

// AddChecker registers a checker. A later checker with the same name
// replaces the earlier one.
func (m *Manager) AddChecker(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.checkers {
		if c.Name() == checker.Name() {
			m.checkers[i] = checker
			return
		}
	}
	m.checkers = append(m.checkers, checker)
}

// Check runs every registered check and returns results keyed by name.
// A panicking checker yields an unhealthy result.
func (m *Manager) Check(ctx context.Context) map[string]*Result {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	timeout := m.timeout
	m.mu.RUnlock()

	results := make([]*Result, len(checkers))
	wg := conc.NewWaitGroup()
	for i, c := range checkers {
		wg.Go(func() {
			results[i] = Unhealthy("check panicked")
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			r := c.Check(checkCtx)
			if r == nil {
				r = Unhealthy("check returned no result")
			}
			if r.Latency == 0 {
				r.Latency = time.Since(start)
			}
			results[i] = r
		})
	}
	_ = wg.WaitAndRecover()

	out := make(map[string]*Result, len(checkers))
	for i, c := range checkers {
		out[c.Name()] = results[i]
	}
	return out
}

// OverallStatus is the worst status among results. No results is healthy.
func OverallStatus(results map[string]*Result) Status {
	worst := StatusHealthy
	for _, r := range results {
		if r.Status.rank() > worst.rank() {
			worst = r.Status
		}
	}
	return worst
}

// Names returns the result names in sorted order.
func Names(results map[string]*Result) []string {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
