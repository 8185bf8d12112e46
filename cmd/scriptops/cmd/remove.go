package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/nfrund/scriptops/internal/app"
)

var removeCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Remove a registered function",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app.App) error {
			ops, err := a.Operations()
			if err != nil {
				return err
			}
			return ops.Remove(ctx, args[0])
		})
	},
}

func init() {
	rootCmd.AddCommand(removeCmd)
}
