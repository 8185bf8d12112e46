package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/scriptops/internal/app"
)

var showCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print the stored definition of a function",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app.App) error {
			ops, err := a.Operations()
			if err != nil {
				return err
			}
			def, err := ops.Lookup(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), def)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}
