// Package testutils holds helpers shared by integration tests.
package testutils

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/nfrund/scriptops/internal/config"
	"github.com/nfrund/scriptops/internal/logging"
)

// EnvTestFile is read from the module root by ConfigForTests.
const EnvTestFile = ".env.test"

// ConfigForTests returns the configuration in .env.test for tests that need a
// live SurrealDB. The test is skipped under -short or when the file is
// missing; the variables are set with t.Setenv so they do not leak.
func ConfigForTests(t *testing.T) config.Provider {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	root, err := moduleRoot()
	if err != nil {
		t.Fatal(err)
	}
	env, err := godotenv.Read(filepath.Join(root, EnvTestFile))
	if err != nil {
		t.Skipf("no %s, skipping integration test: %v", EnvTestFile, err)
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
	logging.New()

	cfg, err := config.FromEnv()
	if err != nil {
		t.Fatalf("invalid %s: %v", EnvTestFile, err)
	}
	return cfg
}

// moduleRoot walks up from the working directory to the one holding go.mod.
func moduleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("go.mod not found above the working directory")
		}
		dir = parent
	}
}

// UniqueName returns a function name that will not collide with other test runs.
func UniqueName(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
