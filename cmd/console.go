package cmd

import (
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"xiaoer/internal/bootstrap/logging"
	"xiaoer/internal/errs"
	"xiaoer/internal/usecase/cacheconsole"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Start the interactive cache console",
	RunE: withApp(func(cmd *cobra.Command, _ []string, deps *appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		if err := deps.App.InitSchema(ctx); err != nil {
			return errs.Wrap(err, "initialize schema")
		}

		prefix, _ := cmd.Flags().GetString("prefix")
		refreshInterval, _ := cmd.Flags().GetDuration("refresh-interval")
		if refreshInterval <= 0 {
			refreshInterval = 5 * time.Second
		}

		model := cacheconsole.NewCacheModel(ctx, deps.FetchSvc, cacheconsole.Options{
			Prefix:          prefix,
			RefreshInterval: refreshInterval,
		})

		program := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return errs.Wrap(err, "run cache console")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.Flags().String("prefix", "", "Key prefix to browse (defaults to the endpoint prefix)")
	consoleCmd.Flags().Duration("refresh-interval", 5*time.Second, "Auto refresh interval")
}
