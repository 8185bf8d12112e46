package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nfrund/scriptops/internal/app"
)

var listOutputFormat string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered functions",
	Long: `List prints the names of all registered functions in lexical order.

Output formats:
  table - Human-readable list (default)
  json  - JSON array of names`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if listOutputFormat != "table" && listOutputFormat != "json" {
			return fmt.Errorf("invalid format %q: valid formats are table, json", listOutputFormat)
		}
		return runWithApp(cmd, func(ctx context.Context, a *app.App) error {
			ops, err := a.Operations()
			if err != nil {
				return err
			}
			names, err := ops.ScriptNames(ctx)
			if err != nil {
				return err
			}
			if listOutputFormat == "json" {
				return printResult(cmd.OutOrStdout(), names.Sorted())
			}
			displayNames(cmd.OutOrStdout(), names.Sorted())
			return nil
		})
	},
}

func displayNames(out io.Writer, names []string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "NAME")
	fmt.Fprintln(w, "----")
	if len(names) == 0 {
		fmt.Fprintln(w, "No functions registered")
		return
	}
	for _, n := range names {
		fmt.Fprintln(w, n)
	}
}

func init() {
	listCmd.Flags().StringVar(&listOutputFormat, "format", "table", "output format: table or json")
	rootCmd.AddCommand(listCmd)
}
