package database

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Sentinel errors, checked with errors.Is.
var (
	// ErrNotFound is returned when the referenced database object does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput is returned for an empty statement.
	ErrInvalidInput = errors.New("invalid input data")

	// ErrAlreadyExists is returned when defining an object that already exists.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrQueryFailed is returned for any other rejected statement.
	ErrQueryFailed = errors.New("query execution failed")

	// ErrNotConnected is returned when no session is available.
	ErrNotConnected = errors.New("database not connected")
)

// DBError records which statement failed and with which variables.
type DBError struct {
	Op     string         // what the caller was doing, e.g. "query failed"
	Stmt   string         // SurrealQL text, empty when no statement was sent
	Params map[string]any // bound variables
	Err    error
}

// NewDBError wraps err with a description of the failed operation.
func NewDBError(err error, op string) *DBError {
	return &DBError{Op: op, Err: err}
}

// statementError wraps err with the statement and variables that caused it.
func statementError(err error, op, stmt string, params map[string]any) *DBError {
	return &DBError{Op: op, Stmt: stmt, Params: params, Err: err}
}

func (e *DBError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Stmt != "" {
		fmt.Fprintf(&b, " (query: %s)", e.Stmt)
	}
	if len(e.Params) > 0 {
		// Only names: values may be large or sensitive.
		names := make([]string, 0, len(e.Params))
		for k := range e.Params {
			names = append(names, "$"+k)
		}
		slices.Sort(names)
		fmt.Fprintf(&b, " (vars: %s)", strings.Join(names, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *DBError) Unwrap() error { return e.Err }

// driverErrorKinds maps fragments of SurrealDB error messages to sentinels,
// e.g. "The function 'fn::add' already exists".
var driverErrorKinds = []struct {
	fragment string
	kind     error
}{
	{"already exists", ErrAlreadyExists},
	{"does not exist", ErrNotFound},
	{"not found", ErrNotFound},
}

// classifyDriverError tags a driver error with its sentinel so callers can
// use errors.Is instead of parsing messages.
func classifyDriverError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, k := range driverErrorKinds {
		if strings.Contains(msg, k.fragment) {
			return fmt.Errorf("%w: %w", k.kind, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrQueryFailed, err)
}
