package script

import (
	"errors"
	"fmt"

	"github.com/nfrund/scriptops/internal/database"
)

var (
	// ErrDataAccess is the category of every failure reported by the database:
	// lost connections, malformed scripts, evaluation errors, name conflicts.
	ErrDataAccess = errors.New("data access failure")

	// ErrNotFound is returned when no function is registered under a name.
	ErrNotFound = fmt.Errorf("%w: script not found", ErrDataAccess)

	// ErrAlreadyExists is returned when registering a name that is taken and
	// overwriting is disabled.
	ErrAlreadyExists = fmt.Errorf("%w: script already exists", ErrDataAccess)

	// ErrMalformedScript is returned for JavaScript that cannot be embedded
	// in a SurrealQL function block.
	ErrMalformedScript = fmt.Errorf("%w: malformed script", ErrDataAccess)

	// ErrInvalidScript is returned when a script is absent or empty.
	ErrInvalidScript = errors.New("invalid script")

	// ErrInvalidName is returned for absent, empty or malformed names.
	ErrInvalidName = errors.New("invalid script name")
)

// ScriptError describes a failed script operation.
type ScriptError struct {
	Op   string // register, execute, call, exists, names, remove, lookup
	Name string // function name, empty for one-shot evaluation
	Kind error  // one of the package sentinel errors
	Err  error  // underlying cause, may be nil
}

func (e *ScriptError) Error() string {
	subject := e.Op
	if e.Name != "" {
		subject = fmt.Sprintf("%s %q", e.Op, e.Name)
	}
	if e.Err != nil {
		if errors.Is(e.Err, e.Kind) {
			return fmt.Sprintf("script %s: %v", subject, e.Err)
		}
		return fmt.Sprintf("script %s: %v: %v", subject, e.Kind, e.Err)
	}
	return fmt.Sprintf("script %s: %v", subject, e.Kind)
}

func (e *ScriptError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func invalid(kind error, msg string) error {
	return fmt.Errorf("%w: %s", kind, msg)
}

// remoteError wraps an error returned by the executor, choosing the most
// specific sentinel the database error maps to.
func remoteError(op, name string, err error) *ScriptError {
	kind := ErrDataAccess
	switch {
	case errors.Is(err, database.ErrAlreadyExists):
		kind = ErrAlreadyExists
	case errors.Is(err, database.ErrNotFound):
		kind = ErrNotFound
	}
	return &ScriptError{Op: op, Name: name, Kind: kind, Err: err}
}

// localError wraps a validation failure detected before any query is sent.
func localError(op, name string, err error) *ScriptError {
	kind := ErrInvalidScript
	switch {
	case errors.Is(err, ErrInvalidName):
		kind = ErrInvalidName
	case errors.Is(err, ErrMalformedScript):
		kind = ErrMalformedScript
	}
	return &ScriptError{Op: op, Name: name, Kind: kind, Err: err}
}
