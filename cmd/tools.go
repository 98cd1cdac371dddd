package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"xiaoer/internal/domain/plan"
	"xiaoer/internal/errs"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the registered tools",
	RunE: withApp(func(cmd *cobra.Command, _ []string, deps *appDeps) error {
		showSchemas, _ := cmd.Flags().GetBool("schemas")

		for _, spec := range deps.Registry.Specs() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", spec.Name, spec.Description)
			if showSchemas && len(spec.ArgsSchema) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", spec.ArgsSchema)
			}
		}
		return nil
	}),
}

var toolsCallCmd = &cobra.Command{
	Use:   "call [name] [json-args]",
	Short: "Invoke one tool directly",
	Args:  cobra.RangeArgs(1, 2),
	RunE: withApp(func(cmd *cobra.Command, args []string, deps *appDeps) error {
		call := plan.ToolCall{Name: args[0]}
		if len(args) == 2 {
			call.Args = json.RawMessage(args[1])
		}

		output, err := deps.Registry.Invoke(cmd.Context(), call)
		if err != nil {
			return errs.Wrapf(err, "call tool %q", call.Name)
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(output))
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.AddCommand(toolsCallCmd)
	toolsCmd.Flags().Bool("schemas", false, "Also print each tool's argument schema")
}
