package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"xiaoer/internal/bootstrap"
	"xiaoer/internal/bootstrap/logging"
	"xiaoer/internal/errs"
	"xiaoer/internal/transport/httpapi"
	"xiaoer/internal/usecase/agent"
	"xiaoer/internal/usecase/fetchcache"
	"xiaoer/internal/usecase/tools"
)

// appDeps is everything a command may pull out of the container. Commands
// use the handful of fields they need.
type appDeps struct {
	App      *bootstrap.App
	FetchSvc *fetchcache.Service
	AgentSvc *agent.Service
	Registry *tools.Registry
	Server   *httpapi.Server
}

func withApp(run func(cmd *cobra.Command, args []string, deps *appDeps) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := logging.WithAttrs(
			cmd.Context(),
			slog.String("command", cmd.CommandPath()),
			slog.String("config_file", cfgFile),
		)

		deps := &appDeps{}
		fxApp := fx.New(
			bootstrap.Module,
			fx.Provide(func() context.Context { return ctx }),
			fx.Provide(
				fx.Annotate(
					func() string { return cfgFile },
					fx.ResultTags(`name:"configFile"`),
				),
			),
			fx.Populate(&deps.App, &deps.FetchSvc, &deps.AgentSvc, &deps.Registry, &deps.Server),
		)

		startCtx, cancelStart := context.WithTimeout(ctx, 10*time.Second)
		defer cancelStart()
		if err := fxApp.Start(startCtx); err != nil {
			logging.Error(ctx, "bootstrap application failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "start fx application")
		}

		defer func() {
			stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancelStop()
			if err := fxApp.Stop(stopCtx); err != nil {
				logging.Error(ctx, "fx application stop failed", slog.Any("err", errs.Loggable(err)))
			}
		}()

		if err := run(cmd, args, deps); err != nil {
			return errs.Wrap(err, "run command")
		}
		return nil
	}
}
