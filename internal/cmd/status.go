package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/phaseflow/internal/progress"
	"github.com/felixgeelhaar/phaseflow/internal/workflow"
)

type statusOptions struct {
	format string
	quick  bool
	watch  bool
}

func newStatusCmd(c *cli) *cobra.Command {
	var opts statusOptions

	cmd := &cobra.Command{
		Use:   "status <change-id>",
		Short: "Show the progress of a change",
		Long: `Display the phases of a change with their status, the next phase to run
and any escalation waiting for a decision. Status never modifies the state.

Examples:
  # Detailed report
  phaseflow status add-login

  # One line, for prompts and scripts
  phaseflow status add-login --quick

  # Machine-readable
  phaseflow status add-login --format json

  # Redraw whenever another process advances the change
  phaseflow status add-login --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, c, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.format, "format", "text", "output format: text, quick, json or yaml")
	cmd.Flags().BoolVarP(&opts.quick, "quick", "q", false, "one-line status (same as --format quick)")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "re-render when the state changes (local backend only)")
	return cmd
}

func runStatus(cmd *cobra.Command, c *cli, changeID string, opts statusOptions) error {
	format, err := progress.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	if opts.quick {
		format = progress.FormatQuick
	}

	ctx := cmd.Context()
	a, err := c.open(ctx, serviceOptions{})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if err := renderStatus(ctx, w, a.service, changeID, format); err != nil {
		return err
	}
	if !opts.watch {
		return nil
	}

	path, ok := a.statePath(changeID)
	if !ok {
		return fmt.Errorf("--watch needs the local state backend")
	}
	return progress.Watch(ctx, path, func() {
		if format == progress.FormatText {
			printf(w, "\n")
		}
		if err := renderStatus(ctx, w, a.service, changeID, format); err != nil {
			c.logger.WithError(err).Warn("failed to render status")
		}
	})
}

func renderStatus(ctx context.Context, w io.Writer, svc *workflow.Service, changeID string, format progress.Format) error {
	if format == progress.FormatQuick {
		line, err := svc.QuickStatus(ctx, changeID)
		if err != nil {
			return err
		}
		printf(w, "%s\n", line)
		return nil
	}
	report, err := svc.DetailedStatus(ctx, changeID)
	if err != nil {
		return err
	}
	return progress.Write(w, report, format)
}
