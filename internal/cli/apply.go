package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/strato-labs/stratoctl/pkg/engine/executor"
)

func newApplyCmd() *cobra.Command {
	var (
		stack       string
		varFlags    []string
		varFiles    []string
		autoApprove bool
		dryRun      bool
		parallelism int
	)

	cmd := &cobra.Command{
		Use:   "apply <config-file>",
		Short: "Drive the stack to match the configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cmd, parallelism)
			if err != nil {
				return err
			}

			vars, err := collectVars(varFlags, varFiles)
			if err != nil {
				return err
			}

			// Show the plan before asking for approval.
			plan, err := eng.Plan(cmd.Context(), stack, args[0], vars)
			if err != nil {
				return err
			}
			printPlan(cmd, plan)

			if plan.IsEmpty() {
				return nil
			}

			if !autoApprove && !dryRun {
				ok, err := confirm(cmd, "\nDo you want to perform these actions?")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Apply cancelled.")
					return nil
				}
			}

			_, result, err := eng.Apply(cmd.Context(), stack, args[0], vars, dryRun)
			if err != nil {
				return err
			}

			printResult(cmd, result)
			if !result.Success {
				return fmt.Errorf("apply finished with %d failure(s)", result.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&stack, "stack", "default", "stack name")
	cmd.Flags().StringArrayVar(&varFlags, "var", nil, "set a variable (name=value)")
	cmd.Flags().StringArrayVar(&varFiles, "var-file", nil, "load variables from a YAML file")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "skip interactive approval")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "walk the plan without calling the provider")
	cmd.Flags().IntVar(&parallelism, "parallelism", 10, "max concurrent operations")
	return cmd
}

func printResult(cmd *cobra.Command, result *executor.Result) {
	out := cmd.OutOrStdout()

	for _, id := range sortedResultIDs(result) {
		nr := result.NodeResults[id]
		switch {
		case nr.Blocked:
			fmt.Fprintf(out, "  %s: blocked (%v)\n", id, nr.Error)
		case !nr.Success:
			fmt.Fprintf(out, "  %s: failed (%v)\n", id, nr.Error)
		}
	}

	fmt.Fprintf(out, "\nApply complete. Created: %d, updated: %d, replaced: %d, destroyed: %d",
		result.Created, result.Updated, result.Replaced, result.Deleted)
	if result.Failed > 0 || result.Blocked > 0 {
		fmt.Fprintf(out, ", failed: %d, blocked: %d", result.Failed, result.Blocked)
	}
	fmt.Fprintf(out, ". Took %s.\n", result.Duration.Round(time.Millisecond))
}

func sortedResultIDs(result *executor.Result) []string {
	ids := make([]string, 0, len(result.NodeResults))
	for id := range result.NodeResults {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
