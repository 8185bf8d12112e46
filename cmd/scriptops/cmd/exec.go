package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/nfrund/scriptops/internal/app"
)

var (
	execSource scriptSource
	execName   string
)

var execCmd = &cobra.Command{
	Use:   "exec [args...]",
	Short: "Execute a script",
	Long: `Exec runs JavaScript code in the database. When --name refers to a registered
function that function is called; otherwise the code is evaluated once
without being stored.

Arguments are decoded as JSON literals and passed as strings otherwise.

Examples:
  scriptops exec --code 'function(a, b) { return a * b; }' 6 7
  scriptops exec --code 'return greeting + ", " + who;' -p greeting -p who hello world`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := execSource.build(execName, cmd.InOrStdin())
		if err != nil {
			return err
		}
		return runWithApp(cmd, func(ctx context.Context, a *app.App) error {
			ops, err := a.Operations()
			if err != nil {
				return err
			}
			result, err := ops.Execute(ctx, s, parseArgs(args)...)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result)
		})
	},
}

func init() {
	execCmd.Flags().StringVar(&execSource.code, "code", "", "JavaScript source")
	execCmd.Flags().StringVarP(&execSource.file, "file", "f", "", "read JavaScript source from a file, - for stdin")
	execCmd.Flags().StringSliceVarP(&execSource.params, "param", "p", nil, "parameter name, in call order (repeatable)")
	execCmd.Flags().StringVar(&execName, "name", "", "call this function instead when it is registered")
	rootCmd.AddCommand(execCmd)
}
