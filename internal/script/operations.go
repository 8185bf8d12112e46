package script

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nfrund/scriptops/internal/database"
	"github.com/nfrund/scriptops/internal/pubsub"
)

// Operations registers, invokes and lists server-side scripts.
type Operations interface {
	// Register stores the script as a database function and returns the
	// reference it can be called by. Unnamed scripts get a generated name.
	Register(ctx context.Context, s ServerSideScript) (NamedScript, error)

	// Execute runs the script. A named script that is already registered is
	// called by name; anything else is shipped for one-shot evaluation.
	Execute(ctx context.Context, s ServerSideScript, args ...any) (any, error)

	// Call invokes a registered function with positional arguments.
	Call(ctx context.Context, name string, args ...any) (any, error)

	// Exists reports whether a function is registered under name. An unknown
	// name is not an error.
	Exists(ctx context.Context, name string) (bool, error)

	// ScriptNames returns the names of all registered functions.
	ScriptNames(ctx context.Context) (NameSet, error)

	// Remove drops a registered function.
	Remove(ctx context.Context, name string) error

	// Lookup returns the stored definition of a registered function.
	Lookup(ctx context.Context, name string) (string, error)
}

// Dependencies holds everything SurrealOperations needs.
type Dependencies struct {
	Executor  database.Executor
	Publisher pubsub.Publisher // optional
	Logger    *slog.Logger     // optional, defaults to slog.Default()

	// Overwrite replaces existing functions on Register instead of failing.
	Overwrite bool
}

// SurrealOperations implements Operations with SurrealDB functions.
type SurrealOperations struct {
	exec      database.Executor
	publisher pubsub.Publisher
	overwrite bool
	log       *opsLogger
}

var _ Operations = (*SurrealOperations)(nil)

// NewOperations creates the script facade.
func NewOperations(deps Dependencies) (*SurrealOperations, error) {
	if deps.Executor == nil {
		return nil, errors.New("script: executor is required")
	}
	return &SurrealOperations{
		exec:      deps.Executor,
		publisher: deps.Publisher,
		overwrite: deps.Overwrite,
		log:       newOpsLogger(deps.Logger),
	}, nil
}

// WithOverwrite returns a copy of the facade whose Register replaces
// existing functions when overwrite is true.
func (o *SurrealOperations) WithOverwrite(overwrite bool) *SurrealOperations {
	cp := *o
	cp.overwrite = overwrite
	return &cp
}

// Register implements Operations.
func (o *SurrealOperations) Register(ctx context.Context, s ServerSideScript) (NamedScript, error) {
	return o.register(ctx, s, o.overwrite)
}

func (o *SurrealOperations) register(ctx context.Context, s ServerSideScript, overwrite bool) (ref NamedScript, err error) {
	started := time.Now()
	name := ""
	defer func() {
		o.log.operation(ctx, "register", name, started, err, slog.Bool("overwrite", overwrite))
	}()

	if err := validateScript(s); err != nil {
		return NamedScript{}, localError("register", "", err)
	}
	name = nameOf(s)
	if name == "" {
		name = generateName()
	}
	if err := validateName(name); err != nil {
		return NamedScript{}, localError("register", name, err)
	}

	params := resolveParams(s)
	for _, p := range params {
		if err := validateParam(p); err != nil {
			return NamedScript{}, localError("register", name, err)
		}
	}

	query := defineFunctionQuery(name, params, s.Code(), overwrite)
	if err := o.exec.Execute(ctx, query, nil); err != nil {
		return NamedScript{}, remoteError("register", name, err)
	}

	ref = NamedScript{name: name, script: Script{code: s.Code(), params: params}}
	o.publish(ctx, TopicRegistered, Event{Name: name, Params: ref.Params()})
	return ref, nil
}

// Execute implements Operations.
func (o *SurrealOperations) Execute(ctx context.Context, s ServerSideScript, args ...any) (result any, err error) {
	started := time.Now()
	name := ""
	mode := "eval"
	defer func() {
		o.log.operation(ctx, "execute", name, started, err, slog.String("mode", mode), slog.Int("args", len(args)))
	}()

	if err := validateScript(s); err != nil {
		return nil, localError("execute", "", err)
	}

	if name = nameOf(s); name != "" {
		if err := validateName(name); err != nil {
			return nil, localError("execute", name, err)
		}
		defs, err := o.definitions(ctx)
		if err != nil {
			return nil, remoteError("execute", name, err)
		}
		if _, ok := defs[name]; ok {
			mode = "call"
			result, err := o.exec.Query(ctx, callFunctionQuery(name, len(args)), bindArgs(args))
			if err != nil {
				return nil, remoteError("execute", name, err)
			}
			return result, nil
		}
	}

	result, err = o.exec.Query(ctx, evalQuery(s.Code(), s.Params(), len(args)), bindArgs(args))
	if err != nil {
		return nil, remoteError("execute", name, err)
	}
	return result, nil
}

// Call implements Operations.
func (o *SurrealOperations) Call(ctx context.Context, name string, args ...any) (result any, err error) {
	started := time.Now()
	name = normalizeName(name)
	defer func() {
		o.log.operation(ctx, "call", name, started, err, slog.Int("args", len(args)))
	}()

	if err := validateName(name); err != nil {
		return nil, localError("call", name, err)
	}
	result, err = o.exec.Query(ctx, callFunctionQuery(name, len(args)), bindArgs(args))
	if err != nil {
		return nil, remoteError("call", name, err)
	}
	return result, nil
}

// Exists implements Operations.
func (o *SurrealOperations) Exists(ctx context.Context, name string) (found bool, err error) {
	started := time.Now()
	name = normalizeName(name)
	defer func() {
		o.log.operation(ctx, "exists", name, started, err, slog.Bool("found", found))
	}()

	if err := validateName(name); err != nil {
		return false, localError("exists", name, err)
	}
	defs, err := o.definitions(ctx)
	if err != nil {
		return false, remoteError("exists", name, err)
	}
	_, found = defs[name]
	return found, nil
}

// ScriptNames implements Operations.
func (o *SurrealOperations) ScriptNames(ctx context.Context) (names NameSet, err error) {
	started := time.Now()
	defer func() {
		o.log.operation(ctx, "names", "", started, err, slog.Int("count", len(names)))
	}()

	defs, err := o.definitions(ctx)
	if err != nil {
		return nil, remoteError("names", "", err)
	}
	names = make(NameSet, len(defs))
	for n := range defs {
		names[n] = struct{}{}
	}
	return names, nil
}

// Remove implements Operations.
func (o *SurrealOperations) Remove(ctx context.Context, name string) (err error) {
	started := time.Now()
	name = normalizeName(name)
	defer func() {
		o.log.operation(ctx, "remove", name, started, err)
	}()

	if err := validateName(name); err != nil {
		return localError("remove", name, err)
	}
	if err := o.exec.Execute(ctx, removeFunctionQuery(name), nil); err != nil {
		return remoteError("remove", name, err)
	}
	o.publish(ctx, TopicRemoved, Event{Name: name})
	return nil
}

// Lookup implements Operations.
func (o *SurrealOperations) Lookup(ctx context.Context, name string) (def string, err error) {
	started := time.Now()
	name = normalizeName(name)
	defer func() {
		o.log.operation(ctx, "lookup", name, started, err)
	}()

	if err := validateName(name); err != nil {
		return "", localError("lookup", name, err)
	}
	defs, err := o.definitions(ctx)
	if err != nil {
		return "", remoteError("lookup", name, err)
	}
	def, ok := defs[name]
	if !ok {
		return "", &ScriptError{Op: "lookup", Name: name, Kind: ErrNotFound}
	}
	return def, nil
}

func (o *SurrealOperations) definitions(ctx context.Context) (map[string]string, error) {
	raw, err := o.exec.Query(ctx, infoForDBQuery, nil)
	if err != nil {
		return nil, err
	}
	return functionDefinitions(raw)
}

func generateName() string {
	return "func_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
