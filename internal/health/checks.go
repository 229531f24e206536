package health

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/felixgeelhaar/phaseflow/internal/domain"
	"github.com/felixgeelhaar/phaseflow/internal/storage"
	"github.com/felixgeelhaar/phaseflow/internal/uxplan"
)

// probeKey is written and removed again by StorageChecker
const probeKey = "doctor/probe"

// StorageChecker round-trips a probe document through the state backend.
type StorageChecker struct {
	backend storage.Storage
}

func NewStorageChecker(backend storage.Storage) *StorageChecker {
	return &StorageChecker{backend: backend}
}

func (c *StorageChecker) Name() string { return "state-backend" }

func (c *StorageChecker) Check(ctx context.Context) *Result {
	want := []byte("phaseflow")
	if err := c.backend.Write(ctx, probeKey, want); err != nil {
		return Unhealthy("state backend is not writable").WithDetail("error", err.Error())
	}
	defer func() { _ = c.backend.Delete(context.WithoutCancel(ctx), probeKey) }()

	got, err := c.backend.Read(ctx, probeKey)
	if err != nil {
		return Unhealthy("state backend is not readable").WithDetail("error", err.Error())
	}
	if !bytes.Equal(got, want) {
		return Unhealthy("state backend returned different bytes than written")
	}
	return Healthy("state backend is readable and writable")
}

// CommandChecker verifies that a worker command resolves to an executable.
type CommandChecker struct {
	role    domain.WorkerRole
	command []string
}

func NewCommandChecker(role domain.WorkerRole, command []string) *CommandChecker {
	return &CommandChecker{role: role, command: command}
}

func (c *CommandChecker) Name() string { return "worker-" + string(c.role) }

func (c *CommandChecker) Check(_ context.Context) *Result {
	if len(c.command) == 0 {
		return Unhealthy("worker has no command")
	}
	path, err := exec.LookPath(c.command[0])
	if err != nil {
		return Unhealthy(fmt.Sprintf("worker command %q not found", c.command[0])).
			WithDetail("error", err.Error())
	}
	return Healthy("worker command resolves").WithDetail("path", path)
}

// RoleCoverageChecker reports roles that have no worker. Phases owned by
// such a role stay pending, so the run is degraded rather than broken.
type RoleCoverageChecker struct {
	configured map[domain.WorkerRole]bool
}

func NewRoleCoverageChecker(roles []domain.WorkerRole) *RoleCoverageChecker {
	configured := make(map[domain.WorkerRole]bool, len(roles))
	for _, r := range roles {
		configured[r] = true
	}
	return &RoleCoverageChecker{configured: configured}
}

func (c *RoleCoverageChecker) Name() string { return "worker-roles" }

func (c *RoleCoverageChecker) Check(_ context.Context) *Result {
	var missing []string
	for _, r := range domain.WorkerRoles {
		if !c.configured[r] {
			missing = append(missing, string(r))
		}
	}
	if len(missing) == len(domain.WorkerRoles) {
		return Degraded("no workers configured").
			WithDetail("suggestion", "configure workers.<role>.command or pass --simulate")
	}
	if len(missing) > 0 {
		return Degraded(fmt.Sprintf("%d of %d roles have no worker", len(missing), len(domain.WorkerRoles))).
			WithDetail("missing", strings.Join(missing, ", "))
	}
	return Healthy("every role has a worker")
}

// PatternChecker validates the UX plan search patterns.
type PatternChecker struct {
	patterns []string
}

// NewPatternChecker checks patterns, or uxplan.DefaultPatterns when empty.
func NewPatternChecker(patterns []string) *PatternChecker {
	if len(patterns) == 0 {
		patterns = uxplan.DefaultPatterns
	}
	return &PatternChecker{patterns: patterns}
}

func (c *PatternChecker) Name() string { return "ux-patterns" }

func (c *PatternChecker) Check(_ context.Context) *Result {
	var invalid []string
	for _, p := range c.patterns {
		if !doublestar.ValidatePattern(strings.ReplaceAll(p, uxplan.ChangeIDPlaceholder, "change")) {
			invalid = append(invalid, p)
		}
	}
	if len(invalid) > 0 {
		return Unhealthy("invalid UX plan patterns").WithDetail("patterns", strings.Join(invalid, ", "))
	}
	r := Healthy(fmt.Sprintf("%d UX plan patterns", len(c.patterns)))
	for _, p := range c.patterns {
		if !strings.Contains(p, uxplan.ChangeIDPlaceholder) {
			return Degraded("pattern does not mention " + uxplan.ChangeIDPlaceholder).
				WithDetail("pattern", p).
				WithDetail("suggestion", "without the placeholder every change matches the same files")
		}
	}
	return r
}
