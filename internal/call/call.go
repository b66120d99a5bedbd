// Package call holds the bridge's per-call data model: the Call itself, the
// agent configuration loaded from the KV store, the turn-state machine, and
// the per-provider cost accumulator.
package call

import "time"

// Call is the unit of work: one telephone conversation bridged to one
// realtime AI provider session. Created when the ingress handshake
// completes (first UUID frame + agent config lookup); destroyed when either
// peer disconnects.
type Call struct {
	ID         string
	CallerNum  string
	CalleeNum  string
	AgentID    string
	Provider   string
	Voice      string
	Language   string
	CustomerID string
	StartedAt  time.Time
}

// VADMode selects which turn-detection strategy a provider session uses.
type VADMode string

const (
	VADModeServer   VADMode = "server_vad"
	VADModeSemantic VADMode = "semantic_vad"
)

// VADConfig carries the turn-detection tunables spec.md §4.2 lists per
// provider. Not every field applies to every provider; adapters read only
// the fields they understand.
type VADConfig struct {
	Mode              VADMode `json:"mode"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
	SemanticEagerness string  `json:"semantic_eagerness,omitempty"`
}

// AgentConfig is the read-only per-call configuration loaded once from the
// KV store at key voiceai:call:{id}:agent, keyed by the call's agent id.
type AgentConfig struct {
	Prompt          string    `json:"prompt"`
	Provider        string    `json:"provider"`
	Model           string    `json:"model"`
	Voice           string    `json:"voice"`
	Language        string    `json:"language"`
	Temperature     float64   `json:"temperature"`
	VAD             VADConfig `json:"vad"`
	GreetingEnabled bool      `json:"greeting_enabled"`
	GreetingText    string    `json:"greeting_text,omitempty"`
	Tools           []string  `json:"tools"`
	MaxOutputTokens int       `json:"max_output_tokens"`
	RecordCalls     bool      `json:"record_calls"`
}

// AudioChunk is 20ms of signed 16-bit mono PCM at the call's negotiated
// sample rate (24kHz in the primary deployed path; see spec §3 for the
// Ultravox exception, which bypasses the audio path entirely).
type AudioChunk struct {
	Data       []byte
	SampleRate int
	Timestamp  time.Duration
}

// ToolCall records one tool invocation requested by the provider and its
// eventual outcome.
type ToolCall struct {
	ID     string
	Name   string
	Args   []byte // raw JSON arguments
	Result []byte // raw JSON result, set on success
	Err    error
}
