package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/phaseflow/internal/checkpoint"
	"github.com/felixgeelhaar/phaseflow/internal/engine"
	"github.com/felixgeelhaar/phaseflow/internal/progress"
)

func newResolveCmd(c *cli) *cobra.Command {
	var decision string

	cmd := &cobra.Command{
		Use:   "resolve <change-id> [decision]",
		Short: "Decide how a change continues after an escalation",
		Long: `Apply a decision to the escalation a change is waiting on:

  retry   reset the phase; the next advance starts a new attempt streak
  skip    mark the phase skipped and continue with the next one
  abort   stop the run, keeping completed phases

On an aborted change, retry resets its failed phases and reactivates it.

Examples:
  phaseflow resolve add-login --decision retry
  phaseflow resolve add-login skip`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 2 {
				if decision != "" && decision != args[1] {
					return fmt.Errorf("decision given twice: %q and %q", decision, args[1])
				}
				decision = args[1]
			}
			if decision == "" {
				return fmt.Errorf("a decision is required: retry, skip or abort")
			}
			d, err := engine.ParseDecision(decision)
			if err != nil {
				return err
			}

			a, err := c.open(cmd.Context(), serviceOptions{})
			if err != nil {
				return err
			}
			state, err := a.service.Resolve(cmd.Context(), args[0], d)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "✓ %s: %s applied\n%s\n", args[0], d, progress.Quick(progress.Build(state)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&decision, "decision", "d", "", "retry, skip or abort")
	return cmd
}

func newAbortCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "abort <change-id>",
		Short: "Stop a change, keeping its completed phases",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context(), serviceOptions{})
			if err != nil {
				return err
			}
			state, err := a.service.Abort(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "✗ %s aborted with %d/%d phases completed\n",
				state.ChangeID, state.Meta.CompletedPhases, state.Meta.TotalPhases)
			if state.Status == checkpoint.RunAborted {
				printf(cmd.OutOrStdout(), "Resume with: phaseflow resolve %s --decision retry\n", state.ChangeID)
			}
			return nil
		},
	}
}
