package script

import (
	"reflect"
	"slices"
	"strings"
)

// ServerSideScript is a JavaScript function that can be shipped to the
// database, either for one-shot evaluation or for registration.
type ServerSideScript interface {
	// Code returns the JavaScript source: a function expression such as
	// `function(a, b) { return a + b; }` or a plain function body.
	Code() string

	// Params returns the declared parameter names, in call order.
	Params() []string
}

// Named is implemented by scripts that carry the name they are (or will be)
// registered under.
type Named interface {
	Name() string
}

// Script is an unnamed server-side script. The zero value is not valid;
// use NewScript.
type Script struct {
	code   string
	params []string
}

// NewScript creates an immutable script from JavaScript source and optional
// parameter names.
func NewScript(code string, params ...string) (Script, error) {
	s := Script{code: code, params: slices.Clone(params)}
	if err := validateScript(s); err != nil {
		return Script{}, err
	}
	return s, nil
}

// MustScript is like NewScript but panics on invalid input. Intended for
// package-level declarations and tests.
func MustScript(code string, params ...string) Script {
	s, err := NewScript(code, params...)
	if err != nil {
		panic(err)
	}
	return s
}

// Code implements ServerSideScript.
func (s Script) Code() string { return s.code }

// Params implements ServerSideScript.
func (s Script) Params() []string { return slices.Clone(s.params) }

// Named binds the script to a name, producing a reference that can be
// registered and called.
func (s Script) Named(name string) (NamedScript, error) {
	return newNamedScript(name, s)
}

// NamedScript is a script bound to a name. Register returns one as the
// reference under which the function can be called.
type NamedScript struct {
	name   string
	script Script
}

// NewNamedScript creates a named script in one step.
func NewNamedScript(name, code string, params ...string) (NamedScript, error) {
	s, err := NewScript(code, params...)
	if err != nil {
		return NamedScript{}, err
	}
	return newNamedScript(name, s)
}

func newNamedScript(name string, s Script) (NamedScript, error) {
	name = normalizeName(name)
	if err := validateName(name); err != nil {
		return NamedScript{}, err
	}
	return NamedScript{name: name, script: s}, nil
}

// Name implements Named.
func (n NamedScript) Name() string { return n.name }

// Code implements ServerSideScript.
func (n NamedScript) Code() string { return n.script.code }

// Params implements ServerSideScript.
func (n NamedScript) Params() []string { return n.script.Params() }

// Script returns the unnamed payload.
func (n NamedScript) Script() Script { return n.script }

// NameSet is an unordered set of function names.
type NameSet map[string]struct{}

// NewNameSet builds a set from the given names.
func NewNameSet(names ...string) NameSet {
	s := make(NameSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has reports whether name is in the set.
func (s NameSet) Has(name string) bool {
	_, ok := s[normalizeName(name)]
	return ok
}

// Sorted returns the names in lexical order.
func (s NameSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// nameOf returns the name carried by s, or "" for unnamed scripts.
func nameOf(s ServerSideScript) string {
	if n, ok := s.(Named); ok {
		return normalizeName(n.Name())
	}
	return ""
}

// isNil catches both untyped nil and typed nil pointers hidden in the interface.
func isNil(s ServerSideScript) bool {
	if s == nil {
		return true
	}
	v := reflect.ValueOf(s)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func:
		return v.IsNil()
	}
	return false
}

// normalizeName accepts both "add" and "fn::add".
func normalizeName(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), functionPrefix)
}
