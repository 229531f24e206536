package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/phaseflow/internal/progress"
)

func newListCmd(c *cli) *cobra.Command {
	var (
		all    bool
		format string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context(), serviceOptions{})
			if err != nil {
				return err
			}
			summaries, err := a.service.List(cmd.Context(), all)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(summaries)
			case "yaml":
				return yaml.NewEncoder(w).Encode(summaries)
			case "text":
			default:
				return fmt.Errorf("unknown format %q (expected text, json or yaml)", format)
			}

			if len(summaries) == 0 {
				printf(w, "No workflows found.\n")
				return nil
			}
			printf(w, "%-32s %-14s %-10s %-14s %s\n", "CHANGE", "TEMPLATE", "STATUS", "PROGRESS", "NEXT")
			for _, s := range summaries {
				status := string(s.Status)
				if s.Archived {
					status += "*"
				}
				printf(w, "%-32s %-14s %-10s %s %3d%% %s\n", s.ChangeID, s.Template, status,
					progress.Bar(s.ProgressPercentage, 8), s.ProgressPercentage, s.CurrentPhase)
			}
			if all {
				printf(w, "\n* archived\n")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "include archived changes")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json or yaml")
	return cmd
}
