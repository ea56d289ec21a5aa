package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var (
		varFlags []string
		varFiles []string
	)

	cmd := &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Check a configuration for errors without touching state",
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

			loaded, err := eng.Validate(cmd.Context(), args[0], vars)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid: %d resource instance(s), %d data source(s)\n",
				len(loaded.Graph.ResourceNodes()), len(loaded.Doc.DataSources))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&varFlags, "var", nil, "set a variable (name=value)")
	cmd.Flags().StringArrayVar(&varFiles, "var-file", nil, "load variables from a YAML file")
	return cmd
}
