package script

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const functionPrefix = "fn::"

var (
	namePattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(::[A-Za-z_][A-Za-z0-9_]*)*$`)
	paramPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

	functionExpr = regexp.MustCompile(`^(?:async\s+)?function\b\s*\*?\s*(?:[A-Za-z_$][A-Za-z0-9_$]*)?\s*\(([^()]*)\)`)
	arrowExpr    = regexp.MustCompile(`^(?:async\s*)?(\([^()]*\)|[A-Za-z_$][A-Za-z0-9_$]*)\s*=>`)

	definitionExpr = regexp.MustCompile(`(?i)^\s*DEFINE\s+FUNCTION\s+(?:OVERWRITE\s+|IF\s+NOT\s+EXISTS\s+)?(?:fn::)?[A-Za-z0-9_:]+\s*\(([^)]*)\)`)
)

// SurrealQL parameters the database reserves for itself.
var reservedParams = map[string]struct{}{
	"access": {}, "after": {}, "auth": {}, "before": {}, "event": {}, "input": {},
	"parent": {}, "scope": {}, "session": {}, "this": {}, "token": {}, "value": {},
}

func validateName(name string) error {
	if name == "" {
		return invalid(ErrInvalidName, "name must not be empty")
	}
	if !namePattern.MatchString(name) {
		return invalid(ErrInvalidName, fmt.Sprintf("%q is not a valid function name", name))
	}
	return nil
}

func validateParam(p string) error {
	if !paramPattern.MatchString(p) {
		return invalid(ErrInvalidName, fmt.Sprintf("%q is not a valid parameter name", p))
	}
	if _, ok := reservedParams[strings.ToLower(p)]; ok {
		return invalid(ErrInvalidName, fmt.Sprintf("parameter name %q is reserved", p))
	}
	return nil
}

func validateScript(s ServerSideScript) error {
	if isNil(s) {
		return invalid(ErrInvalidScript, "script must not be nil")
	}
	if strings.TrimSpace(s.Code()) == "" {
		return invalid(ErrInvalidScript, "script code must not be empty")
	}
	for _, p := range s.Params() {
		if err := validateParam(p); err != nil {
			return err
		}
	}
	return checkBalanced(s.Code())
}

// resolveParams returns the declared parameters, or those inferred from the
// function expression's signature when none were declared.
func resolveParams(s ServerSideScript) []string {
	if p := s.Params(); len(p) > 0 {
		return p
	}
	return inferParams(s.Code())
}

// inferParams reads parameter names from a function or arrow expression.
// Names that are not usable as SurrealQL parameters are replaced with argN.
func inferParams(code string) []string {
	code = strings.TrimSpace(code)

	var list string
	if m := functionExpr.FindStringSubmatch(code); m != nil {
		list = m[1]
	} else if m := arrowExpr.FindStringSubmatch(code); m != nil {
		list = strings.TrimSuffix(strings.TrimPrefix(m[1], "("), ")")
	} else {
		return nil
	}

	var params []string
	for i, raw := range strings.Split(list, ",") {
		p := strings.TrimSpace(raw)
		if p == "" {
			continue
		}
		// A rest parameter cannot be mapped to a fixed SurrealQL signature.
		if strings.HasPrefix(p, "...") {
			break
		}
		if eq := strings.IndexByte(p, '='); eq >= 0 {
			p = strings.TrimSpace(p[:eq])
		}
		if validateParam(p) != nil {
			p = "arg" + strconv.Itoa(i)
		}
		params = append(params, p)
	}
	return params
}

func isFunctionExpression(code string) bool {
	code = strings.TrimSpace(code)
	return functionExpr.MatchString(code) || arrowExpr.MatchString(code)
}

// jsBody turns script code into the body of an embedded JavaScript function.
// Function expressions are applied to the embedded function's arguments; a
// plain body gets its declared parameters destructured from arguments.
func jsBody(code string, params []string) string {
	code = strings.TrimSpace(code)
	if isFunctionExpression(code) {
		code = strings.TrimRight(code, "; \t\r\n")
		return "return (" + code + ").apply(this, arguments);"
	}
	if len(params) == 0 {
		return code
	}
	return "const [" + strings.Join(params, ", ") + "] = arguments;\n\t\t" + code
}

// checkBalanced verifies that braces outside string literals, regular
// expression literals and comments are balanced, since the code is spliced
// into a SurrealQL block.
func checkBalanced(code string) error {
	depth := 0
	prev := -1 // last byte that is not whitespace or a comment
	for i := 0; i < len(code); i++ {
		switch c := code[i]; c {
		case ' ', '\t', '\r', '\n':
			continue
		case '\'', '"', '`':
			end := skipString(code, i, c)
			if end < 0 {
				return invalid(ErrMalformedScript, "unterminated string literal")
			}
			i = end
		case '/':
			if i+1 < len(code) && code[i+1] == '/' {
				for i < len(code) && code[i] != '\n' {
					i++
				}
				continue
			}
			if i+1 < len(code) && code[i+1] == '*' {
				end := strings.Index(code[i+2:], "*/")
				if end < 0 {
					return invalid(ErrMalformedScript, "unterminated block comment")
				}
				i += end + 3
				continue
			}
			if regexAllowed(code, prev) {
				if end := skipRegex(code, i); end >= 0 {
					i = end
				}
			}
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return invalid(ErrMalformedScript, "unbalanced '}'")
			}
		}
		prev = i
	}
	if depth != 0 {
		return invalid(ErrMalformedScript, "unbalanced '{'")
	}
	return nil
}

// skipString returns the index of the closing quote of the literal opened at
// start, or -1 when the literal never closes.
func skipString(code string, start int, quote byte) int {
	for i := start + 1; i < len(code); i++ {
		switch code[i] {
		case '\\':
			i++
		case quote:
			return i
		case '\n':
			if quote != '`' {
				return -1
			}
		}
	}
	return -1
}

// Keywords after which a slash starts a regular expression, not a division.
var regexKeywords = map[string]struct{}{
	"return": {}, "typeof": {}, "case": {}, "in": {}, "of": {}, "delete": {}, "void": {},
	"throw": {}, "new": {}, "instanceof": {}, "yield": {}, "await": {}, "else": {}, "do": {},
}

// regexAllowed reports whether a slash following the byte at prev opens a
// regular expression literal.
func regexAllowed(code string, prev int) bool {
	if prev < 0 {
		return true
	}
	p := code[prev]
	if strings.IndexByte("(,=:[!&|?{};+-*%<>~^", p) >= 0 {
		return true
	}
	if !isIdentByte(p) {
		return false
	}
	start := prev
	for start > 0 && isIdentByte(code[start-1]) {
		start--
	}
	_, ok := regexKeywords[code[start:prev+1]]
	return ok
}

// skipRegex returns the index of the slash closing the regular expression
// literal opened at start, or -1 when the line ends first.
func skipRegex(code string, start int) int {
	inClass := false
	for i := start + 1; i < len(code); i++ {
		switch code[i] {
		case '\\':
			i++
		case '[':
			inClass = true
		case ']':
			inClass = false
		case '/':
			if !inClass {
				return i
			}
		case '\n':
			return -1
		}
	}
	return -1
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func paramList(params []string, typed bool) string {
	parts := make([]string, len(params))
	for i, p := range params {
		if typed {
			parts[i] = "$" + p + ": any"
		} else {
			parts[i] = "$" + p
		}
	}
	return strings.Join(parts, ", ")
}

// argNames returns the query variable names used to bind n positional arguments.
func argNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = "arg" + strconv.Itoa(i)
	}
	return names
}

// bindArgs maps positional arguments onto query variables arg0..argN.
func bindArgs(args []any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	vars := make(map[string]any, len(args))
	for i, a := range args {
		vars["arg"+strconv.Itoa(i)] = a
	}
	return vars
}

func defineFunctionQuery(name string, params []string, code string, overwrite bool) string {
	var b strings.Builder
	b.WriteString("DEFINE FUNCTION ")
	if overwrite {
		b.WriteString("OVERWRITE ")
	}
	fmt.Fprintf(&b, "%s%s(%s) {\n", functionPrefix, name, paramList(params, true))
	fmt.Fprintf(&b, "\tRETURN function(%s) {\n\t\t%s\n\t};\n};", paramList(params, false), jsBody(code, params))
	return b.String()
}

func callFunctionQuery(name string, nargs int) string {
	return fmt.Sprintf("RETURN %s%s(%s);", functionPrefix, name, paramList(argNames(nargs), false))
}

func evalQuery(code string, params []string, nargs int) string {
	return fmt.Sprintf("RETURN function(%s) {\n\t%s\n};", paramList(argNames(nargs), false), jsBody(code, params))
}

func removeFunctionQuery(name string) string {
	return fmt.Sprintf("REMOVE FUNCTION %s%s;", functionPrefix, name)
}

// DefinitionParams returns the parameter names of a stored DEFINE FUNCTION
// statement, without the leading $ and type annotations.
func DefinitionParams(def string) []string {
	m := definitionExpr.FindStringSubmatch(def)
	if m == nil {
		return nil
	}
	var params []string
	for _, raw := range strings.Split(m[1], ",") {
		p := strings.TrimSpace(raw)
		if colon := strings.IndexByte(p, ':'); colon >= 0 {
			p = strings.TrimSpace(p[:colon])
		}
		p = strings.TrimPrefix(p, "$")
		if p != "" {
			params = append(params, p)
		}
	}
	return params
}

const infoForDBQuery = "INFO FOR DB;"

// functionDefinitions extracts the function name -> definition map from an
// INFO FOR DB result.
func functionDefinitions(raw any) (map[string]string, error) {
	if raw == nil {
		return map[string]string{}, nil
	}
	info, ok := asStringMap(raw)
	if !ok {
		return nil, fmt.Errorf("unexpected INFO FOR DB result of type %T", raw)
	}
	fns, ok := info["functions"]
	if !ok || fns == nil {
		return map[string]string{}, nil
	}
	m, ok := asStringMap(fns)
	if !ok {
		return nil, fmt.Errorf("unexpected functions entry of type %T", fns)
	}

	defs := make(map[string]string, len(m))
	for k, v := range m {
		def, _ := v.(string)
		defs[normalizeName(k)] = def
	}
	return defs, nil
}

func asStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}
