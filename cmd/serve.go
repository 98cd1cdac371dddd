package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"xiaoer/internal/bootstrap/logging"
	"xiaoer/internal/errs"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API with the MCP endpoint mounted",
	RunE: withApp(func(cmd *cobra.Command, _ []string, deps *appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		if err := deps.App.InitSchema(ctx); err != nil {
			return errs.Wrap(err, "initialize schema")
		}

		cfg := deps.App.Config.Server
		server := &http.Server{
			Addr:              cfg.Addr,
			Handler:           deps.Server.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		stopWatch := watchCatalogFile(ctx, deps.App.Config.Endpoints.File)
		defer stopWatch()

		serveErr := make(chan error, 1)
		go func() {
			serveErr <- server.ListenAndServe()
		}()

		logging.Info(ctx, "server listening",
			slog.String("addr", cfg.Addr),
			slog.String("mcp_mount", cfg.MountPath),
		)

		select {
		case err := <-serveErr:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errs.Wrap(err, "serve http")
			}
			return nil
		case <-ctx.Done():
		}

		logging.Info(ctx, "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errs.Wrap(err, "shutdown http server")
		}
		return nil
	}),
}

// watchCatalogFile logs when the endpoint catalog changes on disk. The
// catalog is immutable once loaded; the log line tells the operator a
// restart is needed to pick the change up.
func watchCatalogFile(ctx context.Context, path string) func() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn(ctx, "catalog watcher unavailable", slog.Any("err", errs.Loggable(err)))
		return func() {}
	}
	if err := watcher.Add(path); err != nil {
		logging.Warn(ctx, "catalog watch failed",
			slog.String("file", path),
			slog.Any("err", errs.Loggable(err)),
		)
		_ = watcher.Close()
		return func() {}
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
					logging.Warn(ctx, "endpoint catalog changed on disk, restart to apply",
						slog.String("file", event.Name),
					)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Warn(ctx, "catalog watcher error", slog.Any("err", errs.Loggable(err)))
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() { _ = watcher.Close() }
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
