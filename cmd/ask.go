package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"xiaoer/internal/bootstrap/logging"
	"xiaoer/internal/errs"
	"xiaoer/internal/usecase/agent"
)

var askCmd = &cobra.Command{
	Use:   "ask [query]",
	Short: "Plan and run tool calls for a query, then print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, deps *appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		if err := deps.App.InitSchema(ctx); err != nil {
			return errs.Wrap(err, "initialize schema")
		}

		query := strings.Join(args, " ")

		result, err := deps.AgentSvc.Ask(ctx, agent.AskInput{Query: query})
		if err != nil {
			return errs.Wrap(err, "ask")
		}

		showJSON, _ := cmd.Flags().GetBool("json")
		if showJSON {
			raw, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return errs.Wrap(err, "encode result")
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "run: %s\n\n", result.RunID)
		for i, r := range result.Results {
			if r.OK {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s ok: %s\n", i+1, r.Name, r.Output)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s failed: %s\n", i+1, r.Name, r.Error)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", result.Answer)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().Bool("json", false, "Print the full run result as JSON")
}
