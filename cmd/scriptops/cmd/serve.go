package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nfrund/scriptops/internal/app"
)

var serveWatch bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve exposes the script operations over HTTP on SERVER_ADDR.

With --watch the scripts directory is synchronised at startup and kept in
sync while the server runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app.App) error {
			bridge, err := a.Bridge()
			if err != nil {
				return err
			}
			if err := app.LogScriptEvents(ctx, bridge); err != nil {
				return err
			}

			if serveWatch {
				syncer, err := a.Synchronizer(false)
				if err != nil {
					return err
				}
				if _, err := syncer.Sync(ctx); err != nil {
					return err
				}
				go func() {
					if err := syncer.Watch(ctx); err != nil {
						slog.ErrorContext(ctx, "Scripts watcher failed", "event", "script_watch_error", "error", err)
					}
				}()
			}

			srv, err := a.Server()
			if err != nil {
				return err
			}
			return srv.Start(ctx)
		})
	},
}

func init() {
	serveCmd.Flags().BoolVarP(&serveWatch, "watch", "w", false, "synchronise and watch the scripts directory")
	rootCmd.AddCommand(serveCmd)
}
