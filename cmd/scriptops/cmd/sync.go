package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/nfrund/scriptops/internal/app"
	"github.com/nfrund/scriptops/internal/script"
)

const lockTimeout = 5 * time.Second

var (
	syncPrune bool
	syncWatch bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Register every script in the scripts directory",
	Long: `Sync registers each .js file under SCRIPTS_DIR as a function, replacing
existing definitions. Nested directories become namespaces, so
math/add.js is registered as math::add. A sibling add.yaml may set the
name, params and description.

With --prune, registered functions that have no file are removed.
With --watch, sync keeps running and applies file changes as they happen.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app.App) error {
			syncer, err := a.Synchronizer(syncPrune)
			if err != nil {
				return err
			}

			lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
			unlock, err := script.LockDir(lockCtx, syncer.Dir())
			cancel()
			if err != nil {
				return err
			}
			defer unlock()

			report, err := syncer.Sync(ctx)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)

			if syncWatch {
				return syncer.Watch(ctx)
			}
			if !report.OK() {
				return fmt.Errorf("%d script(s) failed to sync", len(report.Failed))
			}
			return nil
		})
	},
}

func printReport(out io.Writer, r script.SyncReport) {
	for _, name := range r.Registered {
		fmt.Fprintf(out, "registered  %s\n", name)
	}
	for _, name := range r.Removed {
		fmt.Fprintf(out, "removed     %s\n", name)
	}
	keys := make([]string, 0, len(r.Failed))
	for k := range r.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "failed      %s: %v\n", k, r.Failed[k])
	}
}

func init() {
	syncCmd.Flags().BoolVar(&syncPrune, "prune", false, "remove functions that have no script file")
	syncCmd.Flags().BoolVarP(&syncWatch, "watch", "w", false, "keep watching the directory for changes")
	rootCmd.AddCommand(syncCmd)
}
