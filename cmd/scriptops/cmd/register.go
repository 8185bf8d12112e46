package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nfrund/scriptops/internal/app"
)

var (
	registerSource    scriptSource
	registerOverwrite bool
)

var registerCmd = &cobra.Command{
	Use:   "register [name]",
	Short: "Register a script as a database function",
	Long: `Register stores JavaScript code as a SurrealDB function. Without a name a
unique one is generated and printed.

Examples:
  scriptops register add --code 'function(a, b) { return a + b; }'
  scriptops register math::mul --file mul.js --param a --param b
  cat greet.js | scriptops register greet --file -`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		s, err := registerSource.build(name, cmd.InOrStdin())
		if err != nil {
			return err
		}

		return runWithApp(cmd, func(ctx context.Context, a *app.App) error {
			ops, err := a.Operations()
			if err != nil {
				return err
			}
			if registerOverwrite {
				ops = ops.WithOverwrite(true)
			}
			ref, err := ops.Register(ctx, s)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s(%s)\n", ref.Name(), strings.Join(ref.Params(), ", "))
			return nil
		})
	},
}

func init() {
	registerCmd.Flags().StringVar(&registerSource.code, "code", "", "JavaScript source")
	registerCmd.Flags().StringVarP(&registerSource.file, "file", "f", "", "read JavaScript source from a file, - for stdin")
	registerCmd.Flags().StringSliceVarP(&registerSource.params, "param", "p", nil, "parameter name, in call order (repeatable)")
	registerCmd.Flags().BoolVar(&registerOverwrite, "overwrite", false, "replace an existing function with the same name")
	rootCmd.AddCommand(registerCmd)
}
