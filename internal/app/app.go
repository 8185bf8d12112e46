// Package app wires the scriptops services together.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/do/v2"
	"github.com/spf13/afero"

	"github.com/nfrund/scriptops/internal/config"
	"github.com/nfrund/scriptops/internal/database"
	"github.com/nfrund/scriptops/internal/pubsub"
	"github.com/nfrund/scriptops/internal/script"
	"github.com/nfrund/scriptops/internal/server"
)

const connectTimeout = 10 * time.Second

// App owns the dependency container. Services are built lazily on first use,
// so commands that never touch the HTTP server never construct it.
type App struct {
	injector *do.RootScope
}

// New registers every service provider for the given configuration.
func New(cfg config.Provider) *App {
	i := do.New()
	do.ProvideValue(i, cfg)
	do.Provide(i, provideConnection)
	do.Provide(i, provideExecutor)
	do.Provide(i, provideBridge)
	do.Provide(i, provideOperations)
	do.Provide(i, provideServer)
	return &App{injector: i}
}

// Operations returns the script facade.
func (a *App) Operations() (*script.SurrealOperations, error) {
	return do.Invoke[*script.SurrealOperations](a.injector)
}

// Connection returns the managed database connection.
func (a *App) Connection() (*database.Connection, error) {
	return do.Invoke[*database.Connection](a.injector)
}

// Bridge returns the in-process event bus.
func (a *App) Bridge() (*pubsub.WatermillBridge, error) {
	return do.Invoke[*pubsub.WatermillBridge](a.injector)
}

// Server returns the HTTP API server.
func (a *App) Server() (*server.Server, error) {
	return do.Invoke[*server.Server](a.injector)
}

// Synchronizer returns a directory synchroniser over the configured scripts
// directory. It always registers with overwrite so edited files replace
// their functions.
func (a *App) Synchronizer(prune bool) (*script.Synchronizer, error) {
	cfg, err := do.Invoke[config.Provider](a.injector)
	if err != nil {
		return nil, err
	}
	ops, err := a.Operations()
	if err != nil {
		return nil, err
	}
	return script.NewSynchronizer(afero.NewOsFs(), cfg.GetScriptsDir(), ops.WithOverwrite(true), script.WithPrune(prune)), nil
}

// Shutdown closes every service that was built, in reverse dependency order.
func (a *App) Shutdown(ctx context.Context) error {
	report := a.injector.ShutdownWithContext(ctx)
	if report != nil && !report.Succeed {
		return fmt.Errorf("shutdown: %s", report.Error())
	}
	return nil
}

func provideConnection(i do.Injector) (*database.Connection, error) {
	cfg := do.MustInvoke[config.Provider](i)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	conn := database.NewConnection(cfg, database.WithLogger(slog.Default()))
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	conn.StartMonitoring()
	return conn, nil
}

func provideExecutor(i do.Injector) (database.Executor, error) {
	conn, err := do.Invoke[*database.Connection](i)
	if err != nil {
		return nil, err
	}
	return database.NewExecutor(conn), nil
}

func provideBridge(do.Injector) (*pubsub.WatermillBridge, error) {
	return pubsub.NewWatermillBridge(pubsub.WithBridgeLogger(slog.Default())), nil
}

func provideOperations(i do.Injector) (*script.SurrealOperations, error) {
	cfg := do.MustInvoke[config.Provider](i)
	exec, err := do.Invoke[database.Executor](i)
	if err != nil {
		return nil, err
	}
	bridge, err := do.Invoke[*pubsub.WatermillBridge](i)
	if err != nil {
		return nil, err
	}
	return script.NewOperations(script.Dependencies{
		Executor:  exec,
		Publisher: bridge,
		Logger:    slog.Default(),
		Overwrite: cfg.GetScriptOverwrite(),
	})
}

func provideServer(i do.Injector) (*server.Server, error) {
	cfg := do.MustInvoke[config.Provider](i)
	ops, err := do.Invoke[*script.SurrealOperations](i)
	if err != nil {
		return nil, err
	}
	conn, err := do.Invoke[*database.Connection](i)
	if err != nil {
		return nil, err
	}
	return server.New(ops, conn, server.Options{
		Addr:          cfg.GetServerAddr(),
		EvalRateLimit: cfg.GetEvalRateLimit(),
	}), nil
}
