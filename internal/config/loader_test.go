package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "recall.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsAndDefaults(t *testing.T) {
	t.Setenv("RECALL_TEST_KEY", "ek_from_env")
	path := writeConfig(t, t.TempDir(), `
version: "1"
api:
  api_key: ${RECALL_TEST_KEY}
  tenant_id: ${RECALL_TEST_TENANT:-acme}
chat:
  reveal_interval: 50ms
modules:
  store.sqlite:
    path: /tmp/recall.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.APIKey != "ek_from_env" {
		t.Errorf("api key = %q", cfg.API.APIKey)
	}
	if cfg.API.TenantID != "acme" {
		t.Errorf("tenant = %q, want default from expression", cfg.API.TenantID)
	}
	if cfg.API.BaseURL != DefaultBaseURL || cfg.API.Timeout != DefaultTimeout {
		t.Errorf("api defaults not applied: %+v", cfg.API)
	}
	if cfg.Chat.RevealInterval != 50*time.Millisecond {
		t.Errorf("reveal interval = %v", cfg.Chat.RevealInterval)
	}
	if _, ok := cfg.Modules["store.sqlite"]; !ok {
		t.Error("module config missing")
	}
}

func TestLoad_UnresolvedVariable(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "version: \"1\"\napi:\n  api_key: ${RECALL_TEST_MISSING_VAR}\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "RECALL_TEST_MISSING_VAR") {
		t.Errorf("error should name the variable: %v", err)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("RECALL_API_KEY", "ek_override")
	t.Setenv("RECALL_TIMEOUT", "5s")
	t.Setenv("RECALL_LOG_FORMAT", "json")
	path := writeConfig(t, t.TempDir(), "version: \"1\"\napi:\n  api_key: ek_file\nlog:\n  format: text\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.APIKey != "ek_override" {
		t.Errorf("api key = %q, want env override", cfg.API.APIKey)
	}
	if cfg.API.Timeout != 5*time.Second {
		t.Errorf("timeout = %v", cfg.API.Timeout)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("log format = %q", cfg.Log.Format)
	}
}

func TestLoad_DotEnvNextToConfig(t *testing.T) {
	dir := t.TempDir()
	// Registered for cleanup so godotenv's os.Setenv does not leak.
	t.Setenv("RECALL_TEST_DOTENV", "")
	os.Unsetenv("RECALL_TEST_DOTENV")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("RECALL_TEST_DOTENV=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	path := writeConfig(t, dir, "version: \"1\"\napi:\n  user_id: ${RECALL_TEST_DOTENV}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.UserID != "from-dotenv" {
		t.Errorf("user id = %q", cfg.API.UserID)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestExpandEnv_Default(t *testing.T) {
	t.Parallel()
	out, err := expandEnv([]byte("a: ${RECALL_TEST_NEVER_SET:-fallback}"))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "a: fallback" {
		t.Errorf("got %q", out)
	}
}
