package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and manage recorded stack state",
	}

	cmd.AddCommand(newStateListCmd())
	cmd.AddCommand(newStateShowCmd())
	cmd.AddCommand(newStateRmCmd())
	return cmd
}

func newStateListCmd() *cobra.Command {
	var stack string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stacks, or the resources of one stack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cmd, 0)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if stack == "" {
				refs, err := eng.ListStacks(cmd.Context())
				if err != nil {
					return err
				}
				if len(refs) == 0 {
					fmt.Fprintln(out, "No stacks recorded.")
					return nil
				}
				for _, ref := range refs {
					fmt.Fprintf(out, "%s\t(updated %s)\n", ref.Name, ref.UpdatedAt.Format("2006-01-02 15:04:05"))
				}
				return nil
			}

			stackState, err := eng.GetStack(cmd.Context(), stack)
			if err != nil {
				return err
			}

			identities := make([]string, 0, len(stackState.Resources))
			for id := range stackState.Resources {
				identities = append(identities, id)
			}
			sort.Strings(identities)
			for _, id := range identities {
				fmt.Fprintln(out, id)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&stack, "stack", "", "list resources of this stack instead of stacks")
	return cmd
}

func newStateShowCmd() *cobra.Command {
	var stack string

	cmd := &cobra.Command{
		Use:   "show <identity>",
		Short: "Show the recorded attributes of one resource instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cmd, 0)
			if err != nil {
				return err
			}

			stackState, err := eng.GetStack(cmd.Context(), stack)
			if err != nil {
				return err
			}

			record := stackState.Resource(args[0])
			if record == nil {
				return fmt.Errorf("no resource %q recorded in stack %q", args[0], stack)
			}

			data, err := json.MarshalIndent(record, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&stack, "stack", "default", "stack name")
	return cmd
}

func newStateRmCmd() *cobra.Command {
	var stack string

	cmd := &cobra.Command{
		Use:   "rm <identity>",
		Short: "Forget a resource instance without destroying it",
		Long: `Removes a resource record from the stack state. The real resource is
left untouched; the next plan will offer to create a new one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cmd, 0)
			if err != nil {
				return err
			}

			if err := eng.ForgetResource(cmd.Context(), stack, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from stack %q.\n", args[0], stack)
			return nil
		},
	}

	cmd.Flags().StringVar(&stack, "stack", "default", "stack name")
	return cmd
}
