package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/phaseflow/internal/plan"
)

func newClassifyCmd(c *cli) *cobra.Command {
	var (
		tasksPath string
		changeID  string
		format    string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify tasks and select a template without creating a workflow",
		Long: `Dry run of setup: scores every task for complexity, risk and priority,
resolves dependencies and shows the template that would be selected.
Nothing is persisted unless --output is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tasks, err := plan.LoadTasks(tasksPath)
			if err != nil {
				return TaskFileError(tasksPath, err)
			}
			a, err := c.open(cmd.Context(), serviceOptions{})
			if err != nil {
				return err
			}
			if changeID == "" {
				changeID = "dry-run"
			}
			p, err := a.service.Classify(changeID, tasks)
			if err != nil {
				return err
			}
			if output != "" {
				if err := plan.SavePlan(p, output); err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(p)
			case "yaml":
				return yaml.NewEncoder(w).Encode(p)
			case "text":
			default:
				return fmt.Errorf("unknown format %q (expected text, json or yaml)", format)
			}

			printf(w, "Template: %s (%s)\n\n", p.Selection.Template.Name, p.Selection.Reason)
			for _, t := range p.Tasks {
				cl := t.Classification
				printf(w, "%-12s %s\n", t.Task.ID, t.Task.Title)
				printf(w, "    complexity %d (%s)  risk %s  priority %d (%s)\n",
					cl.Complexity.Score, cl.Complexity.Level, cl.Risk.Level, cl.Priority.Score, cl.Priority.Label)
				if len(cl.Dependencies.BlockedBy) > 0 {
					printf(w, "    blocked by %v\n", cl.Dependencies.BlockedBy)
				}
				if cl.Research != nil && cl.Research.Required {
					printf(w, "    research: %s (%dm)\n", cl.Research.Category, cl.Research.EstimatedMinutes)
				}
				if len(cl.Subtasks) > 0 {
					n := 0
					for _, s := range cl.Subtasks {
						n += s.Count()
					}
					printf(w, "    %d subtasks (%d top-level)\n", n, len(cl.Subtasks))
				}
			}
			printf(w, "\nOrder: %v\n", p.Order)
			return nil
		},
	}

	cmd.Flags().StringVarP(&tasksPath, "tasks", "t", "", "task file (YAML or JSON)")
	cmd.Flags().StringVar(&changeID, "change-id", "", "change id used for the UX plan lookup")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "also write the plan to this file")
	_ = cmd.MarkFlagRequired("tasks")
	return cmd
}
