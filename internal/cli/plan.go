package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strato-labs/stratoctl/pkg/engine/diff"
	"github.com/strato-labs/stratoctl/pkg/engine/planner"
)

// ErrChangesPending is returned by plan with --detailed-exitcode when the
// plan is not empty; main maps it to exit code 2.
var ErrChangesPending = errors.New("changes pending")

func newPlanCmd() *cobra.Command {
	var (
		stack            string
		varFlags         []string
		varFiles         []string
		detailedExitcode bool
	)

	cmd := &cobra.Command{
		Use:   "plan <config-file>",
		Short: "Show what apply would change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cmd, 0)
			if err != nil {
				return err
			}

			vars, err := collectVars(varFlags, varFiles)
			if err != nil {
				return err
			}

			plan, err := eng.Plan(cmd.Context(), stack, args[0], vars)
			if err != nil {
				return err
			}

			printPlan(cmd, plan)

			if detailedExitcode && !plan.IsEmpty() {
				return ErrChangesPending
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&stack, "stack", "default", "stack name")
	cmd.Flags().StringArrayVar(&varFlags, "var", nil, "set a variable (name=value)")
	cmd.Flags().StringArrayVar(&varFiles, "var-file", nil, "load variables from a YAML file")
	cmd.Flags().BoolVar(&detailedExitcode, "detailed-exitcode", false, "exit 2 when changes are pending")
	return cmd
}

func printPlan(cmd *cobra.Command, plan *planner.Plan) {
	out := cmd.OutOrStdout()

	if plan.IsEmpty() {
		fmt.Fprintln(out, "No changes. Recorded state matches the configuration.")
		return
	}

	for _, pc := range plan.Changes {
		if pc.Change.Action == diff.ActionNoop {
			continue
		}
		fmt.Fprintf(out, "  %s\n", pc.Change.Summary())
		for _, attr := range pc.Change.Attributes {
			switch {
			case attr.Old == nil:
				fmt.Fprintf(out, "      %s = %v\n", attr.Name, attr.New)
			case attr.New == nil:
				fmt.Fprintf(out, "      %s = %v (destroyed)\n", attr.Name, attr.Old)
			default:
				suffix := ""
				if attr.ForcesNew {
					suffix = " (forces replacement)"
				}
				fmt.Fprintf(out, "      %s = %v -> %v%s\n", attr.Name, attr.Old, attr.New, suffix)
			}
		}
	}

	fmt.Fprintf(out, "\nPlan: %d to create, %d to update, %d to replace, %d to destroy, %d unchanged.\n",
		plan.ToCreate, plan.ToUpdate, plan.ToReplace, plan.ToDelete, plan.NoChange)
	if plan.HasDestructive() {
		fmt.Fprintln(out, "Warning: this plan destroys existing resources.")
	}
}
