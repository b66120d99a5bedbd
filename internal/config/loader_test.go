package config_test

import (
	"strings"
	"testing"

	"github.com/voxbridge/realtime-bridge/internal/config"
)

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  openai:
    api_key: sk-test
kv:
  addr: localhost:6379
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":9092" {
		t.Errorf("expected default listen_addr, got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogLevelInfo {
		t.Errorf("expected default log level info, got %q", cfg.Server.LogLevel)
	}
	if cfg.Providers.Primary != "openai" {
		t.Errorf("expected default primary provider openai, got %q", cfg.Providers.Primary)
	}
	if cfg.Tools.CallTimeout <= 0 {
		t.Error("expected a non-zero default tool call timeout")
	}
}

func TestLoadFromReader_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
providers:
  openai:
    api_key: sk-test
kv:
  addr: localhost:6379
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestLoadFromReader_MissingPrimaryAPIKey(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  primary: gemini
kv:
  addr: localhost:6379
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing primary provider api_key, got nil")
	}
	if !strings.Contains(err.Error(), "gemini.api_key") {
		t.Errorf("error should mention gemini.api_key, got: %v", err)
	}
}

func TestLoadFromReader_FallbackMustDifferFromPrimary(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  primary: openai
  fallback: openai
  openai:
    api_key: sk-test
kv:
  addr: localhost:6379
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for fallback equal to primary, got nil")
	}
	if !strings.Contains(err.Error(), "must differ") {
		t.Errorf("error should mention 'must differ', got: %v", err)
	}
}

func TestLoadFromReader_MissingKVAddr(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  openai:
    api_key: sk-test
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing kv.addr, got nil")
	}
	if !strings.Contains(err.Error(), "kv.addr") {
		t.Errorf("error should mention kv.addr, got: %v", err)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  openai:
    api_key: sk-test
  made_up_field: true
kv:
  addr: localhost:6379
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BRIDGE_OPENAI_API_KEY", "sk-from-env")
	yaml := `
providers:
  openai:
    api_key: sk-from-file
kv:
  addr: localhost:6379
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.OpenAI.APIKey != "sk-from-env" {
		t.Errorf("expected env override to win, got %q", cfg.Providers.OpenAI.APIKey)
	}
}
