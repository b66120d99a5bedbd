package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// validProviders lists the provider names [ProvidersConfig.Primary] and
// [ProvidersConfig.Fallback] may reference.
var validProviders = map[string]bool{
	"openai":   true,
	"xai":      true,
	"gemini":   true,
	"ultravox": true,
}

// defaultCallTimeout is the tool dispatch deadline used when
// [ToolsConfig.CallTimeout] is left at its zero value.
const defaultCallTimeout = 5 * time.Second

// Load reads the YAML configuration file at path, applies [EnvOverrides], and
// validates the result.
//
// A ".env" file in the working directory is loaded first (if present) via
// godotenv so that secrets referenced by [EnvOverrides] can be kept out of
// both the YAML file and the process's persistent environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies [EnvOverrides], fills
// in defaults, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	EnvOverrides(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EnvOverrides overlays secret fields onto cfg from well-known environment
// variables, taking priority over whatever the YAML file set. This keeps API
// keys and the KV password out of version-controlled config files.
func EnvOverrides(cfg *Config) {
	if v := os.Getenv("BRIDGE_OPENAI_API_KEY"); v != "" {
		cfg.Providers.OpenAI.APIKey = v
	}
	if v := os.Getenv("BRIDGE_XAI_API_KEY"); v != "" {
		cfg.Providers.XAI.APIKey = v
	}
	if v := os.Getenv("BRIDGE_GEMINI_API_KEY"); v != "" {
		cfg.Providers.Gemini.APIKey = v
	}
	if v := os.Getenv("BRIDGE_ULTRAVOX_API_KEY"); v != "" {
		cfg.Providers.Ultravox.APIKey = v
	}
	if v := os.Getenv("BRIDGE_KV_PASSWORD"); v != "" {
		cfg.KV.Password = v
	}
}

// applyDefaults fills zero-value fields with the bridge's operational
// defaults: log level, listen and admin addresses, shutdown grace, tool
// call timeout, provider connect timeouts, KV dial timeout, and the
// primary provider.
func applyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogLevelInfo
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":9092"
	}
	if cfg.Server.AdminAddr == "" {
		cfg.Server.AdminAddr = ":9093"
	}
	if cfg.Server.ShutdownGrace <= 0 {
		cfg.Server.ShutdownGrace = 10 * time.Second
	}
	if cfg.Tools.CallTimeout <= 0 {
		cfg.Tools.CallTimeout = defaultCallTimeout
	}
	for _, entry := range []*ProviderEntry{
		&cfg.Providers.OpenAI, &cfg.Providers.XAI,
		&cfg.Providers.Gemini, &cfg.Providers.Ultravox,
	} {
		if entry.ConnectTimeout <= 0 {
			entry.ConnectTimeout = 5 * time.Second
		}
	}
	if cfg.KV.DialTimeout <= 0 {
		cfg.KV.DialTimeout = 3 * time.Second
	}
	if cfg.Providers.Primary == "" {
		cfg.Providers.Primary = "openai"
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !isValidLogLevel(cfg.Server.LogLevel) {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}

	if !validProviders[cfg.Providers.Primary] {
		errs = append(errs, fmt.Errorf("providers.primary %q is invalid; valid values: openai, xai, gemini, ultravox", cfg.Providers.Primary))
	}
	if cfg.Providers.Fallback != "" && !validProviders[cfg.Providers.Fallback] {
		errs = append(errs, fmt.Errorf("providers.fallback %q is invalid; valid values: openai, xai, gemini, ultravox", cfg.Providers.Fallback))
	}
	if cfg.Providers.Fallback != "" && cfg.Providers.Fallback == cfg.Providers.Primary {
		errs = append(errs, errors.New("providers.fallback must differ from providers.primary"))
	}
	if entryFor(cfg, cfg.Providers.Primary).APIKey == "" {
		errs = append(errs, fmt.Errorf("providers.%s.api_key is required (primary provider)", cfg.Providers.Primary))
	}
	if cfg.Providers.Fallback != "" && entryFor(cfg, cfg.Providers.Fallback).APIKey == "" {
		slog.Warn("fallback provider has no api_key configured; fallback routing will always fail",
			"provider", cfg.Providers.Fallback)
	}

	if cfg.KV.Addr == "" {
		errs = append(errs, errors.New("kv.addr is required"))
	}

	return errors.Join(errs...)
}

func isValidLogLevel(l LogLevel) bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// entryFor returns the [ProviderEntry] named by name, or the zero value if
// name is not recognised.
func entryFor(cfg *Config, name string) ProviderEntry {
	switch name {
	case "openai":
		return cfg.Providers.OpenAI
	case "xai":
		return cfg.Providers.XAI
	case "gemini":
		return cfg.Providers.Gemini
	case "ultravox":
		return cfg.Providers.Ultravox
	default:
		return ProviderEntry{}
	}
}
