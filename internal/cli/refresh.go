package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newRefreshCmd() *cobra.Command {
	var stack string

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Sync recorded state with the real infrastructure",
		Long: `Reads every resource recorded for the stack through the provider and
updates the recorded attributes to match reality. Drift is reported, never
corrected: changing the infrastructure back requires an apply.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cmd, 0)
			if err != nil {
				return err
			}

			drifts, err := eng.Refresh(cmd.Context(), stack)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(drifts) == 0 {
				fmt.Fprintln(out, "Recorded state matches the real infrastructure.")
				return nil
			}

			for _, d := range drifts {
				if d.Gone {
					fmt.Fprintf(out, "  %s: no longer exists, removed from state\n", d.Identity)
				} else {
					fmt.Fprintf(out, "  %s: drifted (%s)\n", d.Identity, strings.Join(d.Attributes, ", "))
				}
			}
			fmt.Fprintf(out, "\n%d resource(s) drifted. Run plan to see what apply would change.\n", len(drifts))
			return nil
		},
	}

	cmd.Flags().StringVar(&stack, "stack", "default", "stack name")
	return cmd
}
