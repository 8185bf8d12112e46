package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// Executor runs SurrealQL statements against the database.
type Executor interface {
	// Query runs a query and returns the result of its last statement.
	Query(ctx context.Context, query string, params map[string]any) (any, error)

	// Execute runs a query for its side effects and discards the results.
	Execute(ctx context.Context, query string, params map[string]any) error
}

// Results runs a query and returns one result per statement, in order. A
// statement whose status is not OK fails the whole call.
func Results[T any](ctx context.Context, db *surrealdb.DB, query string, params map[string]any) ([]T, error) {
	res, err := surrealdb.Query[T](ctx, db, query, params)
	if err != nil || res == nil {
		return nil, err
	}

	out := make([]T, len(*res))
	for i, r := range *res {
		if r.Status != "" && r.Status != "OK" {
			return nil, fmt.Errorf("statement %d: %s: %v", i+1, r.Status, r.Result)
		}
		out[i] = r.Result
	}
	return out, nil
}

// Last runs a query and returns the result of its final statement, or the
// zero value when there were no statements.
//
//	sum, err := Last[int](ctx, db, "RETURN fn::add($arg0, $arg1);", map[string]any{"arg0": 2, "arg1": 3})
func Last[T any](ctx context.Context, db *surrealdb.DB, query string, params map[string]any) (T, error) {
	var zero T
	results, err := Results[T](ctx, db, query, params)
	if err != nil || len(results) == 0 {
		return zero, err
	}
	return results[len(results)-1], nil
}

// SurrealExecutor implements Executor on a managed connection. Query and
// Execute are bounded by the configured read and write timeouts.
type SurrealExecutor struct {
	conn DBConnection
}

var _ Executor = (*SurrealExecutor)(nil)

// NewExecutor creates an Executor bound to conn.
func NewExecutor(conn DBConnection) *SurrealExecutor {
	return &SurrealExecutor{conn: conn}
}

// Query implements Executor.
func (e *SurrealExecutor) Query(ctx context.Context, query string, params map[string]any) (any, error) {
	ctx, cancel := withStatementTimeout(ctx, queryTimeoutKey, e.conn.GetDBQueryTimeout())
	defer cancel()

	var result any
	err := e.run(ctx, "query failed", query, params, func(db *surrealdb.DB) (err error) {
		result, err = Last[any](ctx, db, query, params)
		return err
	})
	return result, err
}

// Execute implements Executor.
func (e *SurrealExecutor) Execute(ctx context.Context, query string, params map[string]any) error {
	ctx, cancel := withStatementTimeout(ctx, executeTimeoutKey, e.conn.GetDBExecuteTimeout())
	defer cancel()

	return e.run(ctx, "execute failed", query, params, func(db *surrealdb.DB) error {
		_, err := Results[any](ctx, db, query, params)
		return err
	})
}

func (e *SurrealExecutor) run(ctx context.Context, op, query string, params map[string]any, fn func(*surrealdb.DB) error) error {
	if strings.TrimSpace(query) == "" {
		return NewDBError(ErrInvalidInput, op)
	}
	err := e.conn.WithConnection(ctx, fn)
	switch {
	case err == nil:
		return nil
	case isConnectionError(err):
		return statementError(err, op, query, params)
	default:
		return statementError(classifyDriverError(err), op, query, params)
	}
}
