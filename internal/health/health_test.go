package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/phaseflow/internal/domain"
	"github.com/felixgeelhaar/phaseflow/internal/storage"
)

type stubChecker struct {
	name   string
	result *Result
	panics bool
	block  bool
}

func (s *stubChecker) Name() string { return s.name }

func (s *stubChecker) Check(ctx context.Context) *Result {
	if s.panics {
		panic("boom")
	}
	if s.block {
		<-ctx.Done()
		return Unhealthy(ctx.Err().Error())
	}
	return s.result
}

type failingStorage struct {
	storage.Storage
}

func (failingStorage) Write(context.Context, string, []byte) error {
	return errors.New("read-only file system")
}

func TestManagerCheck(t *testing.T) {
	m := NewManager().WithTimeout(50 * time.Millisecond)
	m.AddChecker(&stubChecker{name: "ok", result: Healthy("fine")})
	m.AddChecker(&stubChecker{name: "slow", block: true})
	m.AddChecker(&stubChecker{name: "broken", panics: true})

	results := m.Check(context.Background())
	require.Len(t, results, 3)
	assert.Equal(t, StatusHealthy, results["ok"].Status)
	assert.Equal(t, StatusUnhealthy, results["slow"].Status)
	assert.Equal(t, "check panicked", results["broken"].Message)
	assert.Equal(t, StatusUnhealthy, OverallStatus(results))
	assert.Equal(t, []string{"broken", "ok", "slow"}, Names(results))
}

func TestAddCheckerReplacesByName(t *testing.T) {
	m := NewManager()
	m.AddChecker(&stubChecker{name: "a", result: Unhealthy("old")})
	m.AddChecker(&stubChecker{name: "a", result: Healthy("new")})

	results := m.Check(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, "new", results["a"].Message)
}

func TestOverallStatus(t *testing.T) {
	assert.Equal(t, StatusHealthy, OverallStatus(nil))
	assert.Equal(t, StatusDegraded, OverallStatus(map[string]*Result{
		"a": Healthy(""),
		"b": Degraded(""),
	}))
}

func TestStorageChecker(t *testing.T) {
	backend := storage.NewMemoryStorage()
	r := NewStorageChecker(backend).Check(context.Background())
	assert.Equal(t, StatusHealthy, r.Status)

	exists, err := backend.Exists(context.Background(), probeKey)
	require.NoError(t, err)
	assert.False(t, exists, "probe must be removed")

	r = NewStorageChecker(failingStorage{backend}).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, r.Status)
	assert.Contains(t, r.Details["error"], "read-only")
}

func TestCommandChecker(t *testing.T) {
	r := NewCommandChecker(domain.RoleTester, []string{"sh", "-c", "true"}).Check(context.Background())
	assert.Equal(t, StatusHealthy, r.Status)
	assert.NotEmpty(t, r.Details["path"])

	r = NewCommandChecker(domain.RoleTester, []string{"phaseflow-no-such-binary"}).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, r.Status)

	r = NewCommandChecker(domain.RoleTester, nil).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, r.Status)
	assert.Equal(t, "worker-tester", NewCommandChecker(domain.RoleTester, nil).Name())
}

func TestRoleCoverageChecker(t *testing.T) {
	r := NewRoleCoverageChecker(nil).Check(context.Background())
	assert.Equal(t, StatusDegraded, r.Status)
	assert.Equal(t, "no workers configured", r.Message)

	r = NewRoleCoverageChecker([]domain.WorkerRole{domain.RoleTester}).Check(context.Background())
	assert.Equal(t, StatusDegraded, r.Status)
	assert.Contains(t, r.Details["missing"], "ui-builder")
	assert.NotContains(t, r.Details["missing"], "tester")

	r = NewRoleCoverageChecker(domain.WorkerRoles).Check(context.Background())
	assert.Equal(t, StatusHealthy, r.Status)
}

func TestPatternChecker(t *testing.T) {
	assert.Equal(t, StatusHealthy, NewPatternChecker(nil).Check(context.Background()).Status)
	assert.Equal(t, StatusUnhealthy, NewPatternChecker([]string{"docs/[{changeId}.md"}).Check(context.Background()).Status)
	assert.Equal(t, StatusDegraded, NewPatternChecker([]string{"docs/ux/*.md"}).Check(context.Background()).Status)
}
