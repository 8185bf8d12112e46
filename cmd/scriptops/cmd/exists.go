package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/scriptops/internal/app"
)

var existsCmd = &cobra.Command{
	Use:   "exists <name>",
	Short: "Report whether a function is registered",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app.App) error {
			ops, err := a.Operations()
			if err != nil {
				return err
			}
			found, err := ops.Exists(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), found)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(existsCmd)
}
