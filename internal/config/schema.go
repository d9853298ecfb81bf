// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for recall.
package config

import (
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/recall/internal/telemetry"
	"github.com/flemzord/recall/pkg/memory"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// DataDir overrides the directory holding local state.
	DataDir string `yaml:"data_dir,omitempty"`

	API       APIConfig        `yaml:"api"`
	Chat      ChatConfig       `yaml:"chat"`
	Log       LogConfig        `yaml:"log"`
	Telemetry telemetry.Config `yaml:"telemetry"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "store.sqlite").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// APIConfig points at the Engram memory service.
type APIConfig struct {
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	TenantID string        `yaml:"tenant_id"`
	UserID   string        `yaml:"user_id"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

// ChatConfig tunes conversation behavior.
type ChatConfig struct {
	// RevealInterval is the delay between revealed words. Zero reveals
	// the whole reply at once.
	RevealInterval time.Duration `yaml:"reveal_interval"`

	Temperature float64           `yaml:"temperature"`
	RetrievalK  int               `yaml:"retrieval_k"`
	Modalities  []memory.Modality `yaml:"modalities,omitempty"`
}

// LogConfig selects the root slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SlogLevel maps Level to a slog level. Unknown values map to info.
func (c LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default values applied to fields left empty.
const (
	DefaultBaseURL        = "http://localhost:8000"
	DefaultTenantID       = "default"
	DefaultUserID         = "default"
	DefaultTimeout        = 30 * time.Second
	DefaultRevealInterval = 30 * time.Millisecond
	DefaultTemperature    = 0.7
	DefaultRetrievalK     = 8
	DefaultStoreModule    = "store.file"
)

// Default returns a configuration usable without a config file.
func Default() *Config {
	cfg := &Config{Version: "1"}
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = DefaultBaseURL
	}
	if cfg.API.TenantID == "" {
		cfg.API.TenantID = DefaultTenantID
	}
	if cfg.API.UserID == "" {
		cfg.API.UserID = DefaultUserID
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = DefaultTimeout
	}
	if cfg.Chat.RevealInterval == 0 {
		cfg.Chat.RevealInterval = DefaultRevealInterval
	}
	if cfg.Chat.Temperature == 0 {
		cfg.Chat.Temperature = DefaultTemperature
	}
	if cfg.Chat.RetrievalK == 0 {
		cfg.Chat.RetrievalK = DefaultRetrievalK
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Modules == nil {
		cfg.Modules = make(map[string]yaml.Node)
	}
}
