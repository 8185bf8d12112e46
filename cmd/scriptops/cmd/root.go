package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nfrund/scriptops/internal/app"
	"github.com/nfrund/scriptops/internal/config"
	"github.com/nfrund/scriptops/internal/database"
	"github.com/nfrund/scriptops/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "scriptops",
	Short: "Manage server-side JavaScript functions in SurrealDB",
	Long: `scriptops registers, invokes and lists JavaScript functions stored in a
SurrealDB database.

Connection settings come from the environment (SURREAL_URL, SURREAL_NS,
SURREAL_DB, SURREAL_USER, SURREAL_PASS) or a .env file in the working directory.

Use "scriptops [command] --help" for more information about a specific command.`,
	SilenceUsage: true,
}

var statementTimeout time.Duration

func init() {
	rootCmd.PersistentFlags().DurationVar(&statementTimeout, "timeout", 0,
		"per-statement timeout, overriding DB_QUERY_TIMEOUT and DB_EXECUTE_TIMEOUT")
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// runWithApp loads configuration, builds the application container and runs
// fn with a context that is cancelled on SIGINT or SIGTERM.
func runWithApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.New()
	if err != nil {
		return err
	}
	logging.New()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if statementTimeout > 0 {
		ctx = database.WithQueryTimeout(ctx, statementTimeout)
		ctx = database.WithExecuteTimeout(ctx, statementTimeout)
	}

	a := app.New(cfg)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
		}
	}()

	return fn(ctx, a)
}
