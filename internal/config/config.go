package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Provider exposes read access to the application configuration.
// Packages depend on this interface rather than on *Config so tests can
// supply their own values.
type Provider interface {
	GetDBURL() string
	GetDBNs() string
	GetDBDb() string
	GetDBUser() string
	GetDBPass() string
	GetDBQueryTimeout() time.Duration
	GetDBExecuteTimeout() time.Duration
	GetScriptOverwrite() bool
	GetScriptsDir() string
	GetServerAddr() string
	GetEvalRateLimit() int
}

// Config holds all configuration for the application.
type Config struct {
	DBUrl            string        `validate:"required"`
	DBNs             string        `validate:"required"`
	DBDb             string        `validate:"required"`
	DBUser           string
	DBPass           string
	DBQueryTimeout   time.Duration `validate:"gt=0"`
	DBExecuteTimeout time.Duration `validate:"gt=0"`
	ScriptOverwrite  bool
	ScriptsDir       string `validate:"required"`
	ServerAddr       string `validate:"required"`
	EvalRateLimit    int    `validate:"gte=0"` // requests per minute per client, 0 disables
}

const (
	defaultQueryTimeout   = 5 * time.Second
	defaultExecuteTimeout = 10 * time.Second
	defaultScriptsDir     = "scripts"
	defaultServerAddr     = ":8080"
	defaultEvalRateLimit  = 60
)

// New loads configuration from environment variables, reading a .env file
// first when one is present.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current process environment without
// touching any .env file.
func FromEnv() (*Config, error) {
	queryTimeout, err := durationEnv("DB_QUERY_TIMEOUT", defaultQueryTimeout)
	if err != nil {
		return nil, err
	}
	executeTimeout, err := durationEnv("DB_EXECUTE_TIMEOUT", defaultExecuteTimeout)
	if err != nil {
		return nil, err
	}
	overwrite, err := boolEnv("SCRIPT_OVERWRITE", false)
	if err != nil {
		return nil, err
	}
	evalRate, err := intEnv("EVAL_RATE_LIMIT", defaultEvalRateLimit)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DBUrl:            os.Getenv("SURREAL_URL"),
		DBUser:           os.Getenv("SURREAL_USER"),
		DBPass:           os.Getenv("SURREAL_PASS"),
		DBNs:             os.Getenv("SURREAL_NS"),
		DBDb:             os.Getenv("SURREAL_DB"),
		DBQueryTimeout:   queryTimeout,
		DBExecuteTimeout: executeTimeout,
		ScriptOverwrite:  overwrite,
		ScriptsDir:       stringEnv("SCRIPTS_DIR", defaultScriptsDir),
		ServerAddr:       stringEnv("SERVER_ADDR", defaultServerAddr),
		EvalRateLimit:    evalRate,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports missing or malformed settings.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration (check SURREAL_URL, SURREAL_NS and SURREAL_DB): %w", err)
	}
	return nil
}

func stringEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func (c *Config) GetDBURL() string                   { return c.DBUrl }
func (c *Config) GetDBNs() string                    { return c.DBNs }
func (c *Config) GetDBDb() string                    { return c.DBDb }
func (c *Config) GetDBUser() string                  { return c.DBUser }
func (c *Config) GetDBPass() string                  { return c.DBPass }
func (c *Config) GetDBQueryTimeout() time.Duration   { return c.DBQueryTimeout }
func (c *Config) GetDBExecuteTimeout() time.Duration { return c.DBExecuteTimeout }
func (c *Config) GetScriptOverwrite() bool           { return c.ScriptOverwrite }
func (c *Config) GetScriptsDir() string              { return c.ScriptsDir }
func (c *Config) GetServerAddr() string              { return c.ServerAddr }
func (c *Config) GetEvalRateLimit() int              { return c.EvalRateLimit }
