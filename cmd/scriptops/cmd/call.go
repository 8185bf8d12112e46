package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/nfrund/scriptops/internal/app"
)

var callCmd = &cobra.Command{
	Use:   "call <name> [args...]",
	Short: "Call a registered function",
	Long: `Call invokes a registered function by name. Arguments are decoded as JSON
literals and passed as strings otherwise.

Examples:
  scriptops call add 2 3
  scriptops call greet '"world"'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app.App) error {
			ops, err := a.Operations()
			if err != nil {
				return err
			}
			result, err := ops.Call(ctx, args[0], parseArgs(args[1:])...)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result)
		})
	},
}

func init() {
	rootCmd.AddCommand(callCmd)
}
