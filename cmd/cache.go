package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"xiaoer/internal/bootstrap/logging"
	"xiaoer/internal/errs"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the key-value store",
}

var cacheKeysCmd = &cobra.Command{
	Use:   "keys [prefix]",
	Short: "List cached keys, optionally filtered by prefix",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, deps *appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		if err := deps.App.InitSchema(ctx); err != nil {
			return errs.Wrap(err, "initialize schema")
		}

		prefix := deps.FetchSvc.KeyPrefix()
		if len(args) == 1 {
			prefix = args[0]
		}

		keys, err := deps.FetchSvc.Keys(ctx, prefix, 500)
		if err != nil {
			return errs.Wrap(err, "list keys")
		}

		if len(keys) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no cached keys")
			return nil
		}
		for _, key := range keys {
			fmt.Fprintln(cmd.OutOrStdout(), key)
		}
		return nil
	}),
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate [key]",
	Short: "Remove one cached entry",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, deps *appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		if err := deps.App.InitSchema(ctx); err != nil {
			return errs.Wrap(err, "initialize schema")
		}

		deleted, err := deps.FetchSvc.Invalidate(ctx, args[0])
		if err != nil {
			return errs.Wrapf(err, "invalidate %q", args[0])
		}

		if deleted {
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "no entry for %s\n", args[0])
		}
		return nil
	}),
}

var cacheGetCmd = &cobra.Command{
	Use:   "get [endpoint-key]",
	Short: "Resolve a configured endpoint through the cache-aside fetch",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, deps *appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		if err := deps.App.InitSchema(ctx); err != nil {
			return errs.Wrap(err, "initialize schema")
		}

		result, err := deps.FetchSvc.Endpoint(ctx, args[0])
		if err != nil {
			return errs.Wrapf(err, "resolve endpoint %q", args[0])
		}

		origin := "fetched"
		if result.CacheHit {
			origin = "cache hit"
		}
		if result.Stale {
			origin = "stale fallback"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n%s\n", result.Endpoint, origin, result.Data)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheKeysCmd)
	cacheCmd.AddCommand(cacheInvalidateCmd)
	cacheCmd.AddCommand(cacheGetCmd)
}
