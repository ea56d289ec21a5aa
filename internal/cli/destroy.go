package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDestroyCmd() *cobra.Command {
	var (
		stack       string
		varFlags    []string
		varFiles    []string
		autoApprove bool
		dryRun      bool
		parallelism int
	)

	cmd := &cobra.Command{
		Use:   "destroy <config-file>",
		Short: "Destroy every resource recorded for the stack",
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

			if !autoApprove && !dryRun {
				ok, err := confirm(cmd, fmt.Sprintf("This destroys all resources in stack %q.\nDo you really want to destroy?", stack))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Destroy cancelled.")
					return nil
				}
			}

			plan, result, err := eng.Destroy(cmd.Context(), stack, args[0], vars, dryRun)
			if err != nil {
				return err
			}

			if plan.IsEmpty() {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to destroy.")
				return nil
			}

			printResult(cmd, result)
			if !result.Success {
				return fmt.Errorf("destroy finished with %d failure(s)", result.Failed)
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
