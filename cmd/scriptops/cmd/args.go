package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nfrund/scriptops/internal/script"
)

// parseArgs turns command-line arguments into script arguments. Each one is
// decoded as a JSON literal (numbers, booleans, null, arrays, objects,
// quoted strings) and kept as a plain string when it is not valid JSON.
func parseArgs(raw []string) []any {
	args := make([]any, len(raw))
	for i, r := range raw {
		var v any
		if err := json.Unmarshal([]byte(r), &v); err != nil {
			args[i] = r
			continue
		}
		args[i] = v
	}
	return args
}

// scriptSource holds the flags shared by commands that take script code.
type scriptSource struct {
	code   string
	file   string
	params []string
}

// read returns the script code from --code, --file, or stdin when the file
// is "-".
func (s *scriptSource) read(stdin io.Reader) (string, error) {
	switch {
	case s.code != "" && s.file != "":
		return "", errors.New("use either --code or --file, not both")
	case s.code != "":
		return s.code, nil
	case s.file == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	case s.file != "":
		b, err := os.ReadFile(s.file)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return "", errors.New("script code is required (--code or --file)")
	}
}

// build creates a named script when name is set, an unnamed one otherwise.
func (s *scriptSource) build(name string, stdin io.Reader) (script.ServerSideScript, error) {
	code, err := s.read(stdin)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) != "" {
		return script.NewNamedScript(name, code, s.params...)
	}
	return script.NewScript(code, s.params...)
}

func printResult(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
