package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/phaseflow/internal/plan"
	"github.com/felixgeelhaar/phaseflow/internal/progress"
	"github.com/felixgeelhaar/phaseflow/internal/tui"
	"github.com/felixgeelhaar/phaseflow/internal/workflow"
)

type setupOptions struct {
	tasksPath   string
	changeID    string
	force       bool
	autoApprove bool
	format      string
}

func newSetupCmd(c *cli) *cobra.Command {
	var opts setupOptions

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Classify tasks and create the workflow state for a change",
		Long: `Classify every task, resolve their dependencies, select a phase template
and persist the initial workflow state. Every phase starts pending.

Examples:
  # Set up a change from a task file
  phaseflow setup --tasks tasks.yaml --change-id add-login

  # Generate a change id and let workers proceed without confirmation
  phaseflow setup --tasks tasks.yaml --auto-approve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSetup(cmd, c, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.tasksPath, "tasks", "t", "", "task file (YAML or JSON)")
	cmd.Flags().StringVar(&opts.changeID, "change-id", "", "change id (generated when empty)")
	cmd.Flags().BoolVar(&opts.force, "force", false, "replace an existing workflow state")
	cmd.Flags().BoolVar(&opts.autoApprove, "auto-approve", false, "let workers proceed without confirmation until the first failure")
	cmd.Flags().StringVar(&opts.format, "format", "text", "output format: text, json or yaml")
	_ = cmd.MarkFlagRequired("tasks")
	return cmd
}

func runSetup(cmd *cobra.Command, c *cli, opts setupOptions) error {
	ctx := cmd.Context()
	format, err := progress.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	tasks, err := plan.LoadTasks(opts.tasksPath)
	if err != nil {
		return TaskFileError(opts.tasksPath, err)
	}

	changeID := opts.changeID
	if changeID == "" {
		changeID = NewChangeID()
	}

	a, err := c.open(ctx, serviceOptions{})
	if err != nil {
		return err
	}

	force := opts.force
	if !force && tui.ShouldPrompt() {
		exists, err := a.store.Exists(ctx, changeID)
		if err != nil {
			return err
		}
		if exists {
			force, err = tui.PromptForConfirmation(
				fmt.Sprintf("A workflow for %s already exists. Replace it?", changeID), false)
			if err != nil {
				return err
			}
		}
	}

	res, err := a.service.Setup(ctx, changeID, tasks, workflow.SetupOptions{
		Overwrite:    force,
		AutoApproved: opts.autoApprove,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format == progress.FormatJSON || format == progress.FormatYAML {
		return progress.Write(out, progress.Build(res.State), format)
	}
	printSetup(out, res)
	return nil
}

// NewChangeID generates a sortable change id
func NewChangeID() string {
	return "chg-" + strings.ToLower(ulid.Make().String())
}

func printSetup(w io.Writer, res *workflow.SetupResult) {
	sel := res.Plan.Selection
	printf(w, "✓ Workflow %s set up\n\n", res.State.ChangeID)
	printf(w, "Template: %s (%s)\n", sel.Template.Name, sel.Reason)
	if len(sel.Sequentialized) > 0 {
		printf(w, "Sequentialized: %s\n", strings.Join(sel.Sequentialized, ", "))
	}

	printf(w, "\nTasks by priority:\n")
	for _, t := range res.Plan.Tasks {
		cl := t.Classification
		printf(w, "  %-12s %-40s complexity %2d (%s)  risk %-8s priority %3d\n",
			t.Task.ID, truncate(t.Task.Title, 40), cl.Complexity.Score, cl.Complexity.Level,
			cl.Risk.Level, cl.Priority.Score)
	}

	printf(w, "\nPhases:\n")
	r := progress.Build(res.State)
	for _, p := range r.Phases {
		marker := " "
		if p.Parallel {
			marker = "∥"
		}
		printf(w, "  %s %2d. %-28s %-15s %s\n", marker, p.Number, p.Name, p.Role, formatEstimate(p.EstimateMinutes))
	}
	printf(w, "\nNext: phaseflow advance %s\n", res.State.ChangeID)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func formatEstimate(minutes int) string {
	if minutes >= 60 {
		return fmt.Sprintf("%dh%02dm", minutes/60, minutes%60)
	}
	return fmt.Sprintf("%dm", minutes)
}
