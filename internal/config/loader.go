package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override (RECALL_API_KEY, ...).
const EnvPrefix = "recall"

// envPattern matches ${VAR} and ${VAR:-default} expressions.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// envOverrides are read from RECALL_* variables after the file is parsed.
// Empty values leave the file setting untouched.
type envOverrides struct {
	BaseURL      string        `envconfig:"BASE_URL"`
	APIKey       string        `envconfig:"API_KEY"`
	TenantID     string        `envconfig:"TENANT_ID"`
	UserID       string        `envconfig:"USER_ID"`
	Timeout      time.Duration `envconfig:"TIMEOUT"`
	DataDir      string        `envconfig:"DATA_DIR"`
	LogLevel     string        `envconfig:"LOG_LEVEL"`
	LogFormat    string        `envconfig:"LOG_FORMAT"`
	OTLPEndpoint string        `envconfig:"OTLP_ENDPOINT"`
}

// Load reads a YAML configuration file, expands environment variables,
// applies RECALL_* overrides and fills defaults. A .env file next to the
// config or in the working directory is loaded first; it never replaces
// variables already set in the environment.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(filepath.Dir(path), "."); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	expanded, err := expandEnv(raw)
	if err != nil {
		return nil, fmt.Errorf("config: expanding variables in %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// FromEnv builds a configuration from defaults, .env and RECALL_*
// variables alone, for runs without a config file.
func FromEnv() (*Config, error) {
	if err := loadDotEnv("."); err != nil {
		return nil, err
	}
	cfg := &Config{Version: "1"}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func loadDotEnv(dirs ...string) error {
	seen := make(map[string]bool, len(dirs))
	for _, dir := range dirs {
		path, err := filepath.Abs(filepath.Join(dir, ".env"))
		if err != nil || seen[path] {
			continue
		}
		seen[path] = true

		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("config: loading %s: %w", path, err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("config: environment overrides: %w", err)
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.API.BaseURL, env.BaseURL)
	set(&cfg.API.APIKey, env.APIKey)
	set(&cfg.API.TenantID, env.TenantID)
	set(&cfg.API.UserID, env.UserID)
	set(&cfg.DataDir, env.DataDir)
	set(&cfg.Log.Level, env.LogLevel)
	set(&cfg.Log.Format, env.LogFormat)
	set(&cfg.Telemetry.Endpoint, env.OTLPEndpoint)
	if env.Timeout > 0 {
		cfg.API.Timeout = env.Timeout
	}
	return nil
}

// expandEnv replaces ${VAR} and ${VAR:-default} patterns in raw YAML bytes.
// Returns an error listing all unresolved variables (no default, no env value).
func expandEnv(raw []byte) ([]byte, error) {
	var errs []error

	result := envPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		subs := envPattern.FindSubmatch(match)
		name := string(subs[1])
		hasDefault := len(subs) > 2 && subs[2] != nil

		if value, ok := os.LookupEnv(name); ok {
			return []byte(value)
		}
		if hasDefault {
			return subs[2]
		}

		errs = append(errs, fmt.Errorf("unresolved variable: %s", name))
		return match
	})

	return result, errors.Join(errs...)
}
