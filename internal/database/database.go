package database

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/nfrund/scriptops/internal/config"
)

// dial opens a session: connect, sign in when credentials are set, then
// select the namespace and database.
func dial(ctx context.Context, cfg config.Provider) (*surrealdb.DB, error) {
	db, err := surrealdb.FromEndpointURLString(ctx, cfg.GetDBURL())
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", redactDBURL(cfg.GetDBURL()), err)
	}

	fail := func(step string, err error) (*surrealdb.DB, error) {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("%s: %w", step, err)
	}
	if user := cfg.GetDBUser(); user != "" {
		if _, err := db.SignIn(ctx, &surrealdb.Auth{Username: user, Password: cfg.GetDBPass()}); err != nil {
			return fail("sign in as "+user, err)
		}
	}
	if err := db.Use(ctx, cfg.GetDBNs(), cfg.GetDBDb()); err != nil {
		return fail(fmt.Sprintf("use %s/%s", cfg.GetDBNs(), cfg.GetDBDb()), err)
	}
	return db, nil
}
