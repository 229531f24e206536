package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/phaseflow/internal/errors"
	"github.com/felixgeelhaar/phaseflow/internal/progress"
	"github.com/felixgeelhaar/phaseflow/internal/tui"
	"github.com/felixgeelhaar/phaseflow/internal/workflow"
)

type advanceOptions struct {
	maxGroups   int
	interactive bool
	simulate    bool
	format      string
}

func newAdvanceCmd(c *cli) *cobra.Command {
	var opts advanceOptions

	cmd := &cobra.Command{
		Use:   "advance <change-id>",
		Short: "Drive a change through its remaining phases",
		Long: `Dispatch the pending phases of a change to their workers, group by group.
Each response is validated; failures are retried with feedback and a phase
that exhausts its retries escalates. In a terminal the escalation is asked
interactively, otherwise it is left pending for phaseflow resolve.

Examples:
  phaseflow advance add-login
  phaseflow advance add-login --max-groups 1
  phaseflow advance add-login --simulate`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdvance(cmd, c, args[0], opts)
		},
	}

	cmd.Flags().IntVar(&opts.maxGroups, "max-groups", 0, "stop after this many phase groups (0 runs to the end)")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", tui.ShouldPrompt(), "ask how to resolve escalations")
	cmd.Flags().BoolVar(&opts.simulate, "simulate", false, "use built-in workers that always pass")
	cmd.Flags().StringVar(&opts.format, "format", "text", "output format: text or json")
	return cmd
}

func runAdvance(cmd *cobra.Command, c *cli, changeID string, opts advanceOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unknown format %q (expected text or json)", opts.format)
	}

	a, err := c.open(cmd.Context(), serviceOptions{
		interactive: opts.interactive,
		simulate:    opts.simulate,
	})
	if err != nil {
		return err
	}

	out, err := a.service.Advance(cmd.Context(), changeID, workflow.AdvanceOptions{MaxGroups: opts.maxGroups})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if opts.format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	} else {
		progress.PrintOutcome(w, out)
	}

	if esc := out.Escalation; esc != nil {
		return errors.New(errors.ErrCodeQualityFailure,
			fmt.Sprintf("phase %s escalated after %d attempts", esc.Phase, esc.Attempts)).
			WithSuggestion(fmt.Sprintf("phaseflow resolve %s --decision retry|skip|abort", changeID))
	}
	if out.Aborted {
		return errors.NewRunAbortedError(changeID)
	}
	return nil
}
