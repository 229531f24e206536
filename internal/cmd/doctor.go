package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/phaseflow/internal/domain"
	"github.com/felixgeelhaar/phaseflow/internal/health"
)

func newDoctorCmd(c *cli) *cobra.Command {
	var (
		format  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the state backend, worker commands and UX plan patterns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := c.openBackend(cmd.Context())
			if err != nil {
				return err
			}

			m := health.NewManager().WithTimeout(timeout)
			m.AddChecker(health.NewStorageChecker(backend))
			m.AddChecker(health.NewPatternChecker(c.cfg.UXPlan.Patterns))

			names := make([]string, 0, len(c.cfg.Workers))
			for name := range c.cfg.Workers {
				names = append(names, name)
			}
			sort.Strings(names)
			roles := make([]domain.WorkerRole, 0, len(names))
			for _, name := range names {
				role := domain.WorkerRole(name)
				roles = append(roles, role)
				m.AddChecker(health.NewCommandChecker(role, c.cfg.Workers[name].Command))
			}
			m.AddChecker(health.NewRoleCoverageChecker(roles))

			results := m.Check(cmd.Context())
			overall := health.OverallStatus(results)
			for name, r := range results {
				c.logger.Debug("health check", "check", name, "status", r.Status, "latency", r.Latency)
			}

			w := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				if err := enc.Encode(struct {
					Status health.Status             `json:"status"`
					Checks map[string]*health.Result `json:"checks"`
				}{overall, results}); err != nil {
					return err
				}
			case "text":
				for _, name := range health.Names(results) {
					r := results[name]
					printf(w, "%s %-16s %s\n", statusSymbol(r.Status), name, r.Message)
					for _, k := range sortedKeys(r.Details) {
						printf(w, "    %s: %s\n", k, r.Details[k])
					}
				}
				printf(w, "\nOverall: %s\n", overall)
			default:
				return fmt.Errorf("unknown format %q (expected text or json)", format)
			}

			if overall == health.StatusUnhealthy {
				return fmt.Errorf("doctor found unhealthy checks")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format: text or json")
	cmd.Flags().DurationVar(&timeout, "timeout", health.DefaultTimeout, "timeout per check")
	return cmd
}

func statusSymbol(s health.Status) string {
	switch s {
	case health.StatusHealthy:
		return color.GreenString("✓")
	case health.StatusDegraded:
		return color.YellowString("!")
	default:
		return color.RedString("✗")
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
