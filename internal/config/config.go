// Package config loads and validates the realtime bridge's static
// configuration: the ingress listener, the per-provider credentials and
// model selections, the Redis-backed key/value store, and the outbound
// tool-dispatch endpoints.
//
// Configuration is read from a YAML file via [Load] and may be overridden by
// environment variables for secrets (API keys, the KV password) so that
// credentials never need to live in the file itself.
package config

import "time"

// LogLevel is the minimum severity logged by the process-wide slog logger.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Config is the top-level configuration object produced by [Load].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	KV        KVConfig        `yaml:"kv"`
	Tools     ToolsConfig     `yaml:"tools"`
}

// ServerConfig configures the AudioSocket ingress listener and the admin HTTP
// server that exposes health checks and Prometheus metrics.
type ServerConfig struct {
	// ListenAddr is the host:port the AudioSocket TCP listener binds to.
	ListenAddr string `yaml:"listen_addr"`

	// AdminAddr is the host:port the admin HTTP server (health, readiness,
	// metrics) binds to.
	AdminAddr string `yaml:"admin_addr"`

	// LogLevel is the minimum slog severity. Defaults to [LogLevelInfo].
	LogLevel LogLevel `yaml:"log_level"`

	// ShutdownGrace bounds how long in-flight calls are given to wind down
	// after the process receives a termination signal.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// ProvidersConfig holds one [ProviderEntry] per supported realtime vendor.
type ProvidersConfig struct {
	OpenAI   ProviderEntry `yaml:"openai"`
	XAI      ProviderEntry `yaml:"xai"`
	Gemini   ProviderEntry `yaml:"gemini"`
	Ultravox ProviderEntry `yaml:"ultravox"`

	// Primary names the provider a call uses absent an [AgentConfig]
	// override. Must be one of "openai", "xai", "gemini", "ultravox".
	Primary string `yaml:"primary"`

	// Fallback names the provider routed to when Primary's circuit breaker
	// is open. Empty disables fallback routing.
	Fallback string `yaml:"fallback"`
}

// ProviderEntry holds the credentials and defaults for a single realtime
// provider. The zero value disables the provider.
type ProviderEntry struct {
	// APIKey authenticates with the provider. May be left blank in the YAML
	// file and supplied via an environment variable instead; see
	// [EnvOverrides].
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default WebSocket endpoint. Empty
	// selects the provider adapter's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects the realtime model variant (e.g.
	// "gpt-realtime", "grok-realtime", "gemini-2.0-flash-live-001").
	Model string `yaml:"model"`

	// ConnectTimeout is defaulted to 5s by the loader. The session driver
	// bounds the handshake with its own fixed timeout and does not read
	// this field.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// KVConfig configures the Redis client used to look up per-call
// [AgentConfig] documents and to persist recordings, transcripts, and cost
// ledgers.
type KVConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// DialTimeout bounds the initial connection to Redis.
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// ToolsConfig configures the outbound HTTP tool dispatcher used to resolve
// tool calls the provider session emits mid-call (e.g. "transfer_to_human",
// "capture_lead").
type ToolsConfig struct {
	// WebhookBaseURL is prefixed to a tool's relative path to form the
	// outbound request URL. cmd/bridge also passes it as the base URL of the
	// CRM store behind the built-in tools.
	WebhookBaseURL string `yaml:"webhook_base_url"`

	// CallTimeout bounds a single tool invocation. The spec fixes this at
	// 5s; the field exists so tests can shrink it.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// External lists the operator-defined "external/HTTP tools" class:
	// each entry is registered on the process-wide dispatcher at startup,
	// invoked by POSTing the model's JSON arguments to WebhookBaseURL+Path
	// and forwarding the response body back as the tool result. An agent
	// enables one by naming it in AgentConfig.Tools, same as a built-in.
	External []ExternalToolConfig `yaml:"external"`
}

// ExternalToolConfig describes one externally-hosted tool exposed to the
// model, satisfying spec.md §4.5's "External/HTTP tools" handler class.
type ExternalToolConfig struct {
	// Name is the tool name the model calls and agents list in
	// AgentConfig.Tools to enable it.
	Name string `yaml:"name"`

	// Description is shown to the model in the session's tool schema.
	Description string `yaml:"description"`

	// Path is relative to ToolsConfig.WebhookBaseURL (or an absolute
	// http(s) URL, bypassing WebhookBaseURL entirely).
	Path string `yaml:"path"`

	// Parameters is the tool's JSON-schema parameter object, forwarded to
	// the provider verbatim — the bridge never interprets it.
	Parameters map[string]any `yaml:"parameters"`
}
