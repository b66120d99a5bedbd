// Package realtime defines the polymorphic adapter interface bridging a
// telephone call to a vendor's realtime voice AI session, and the neutral
// event stream every adapter decodes vendor frames into.
//
// This is a direct generalisation of the teacher's pkg/provider/s2s package:
// the same Connect/Session method shapes, extended with SendText,
// SendToolResult, and a single provider-tagged Events() channel instead of
// separate Audio()/Transcripts() channels, because the bridge needs strict
// ordering across all event kinds for one call (spec.md §4.3).
//
// All implementations must be safe for concurrent use.
package realtime

import (
	"context"
	"time"
)

// VoiceProfile names a synthesised voice a provider offers.
type VoiceProfile string

// ToolDefinition describes one callable tool offered to the model, using the
// JSON-schema shape every provider's session-configuration message expects.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema, provider-neutral
}

// SessionConfig is the initial configuration for a new realtime session,
// assembled from the call's [AgentConfig]-equivalent fields by the session
// driver before calling [Provider.Connect].
type SessionConfig struct {
	Voice        VoiceProfile
	Instructions string
	Language     string
	Temperature  float64
	Tools        []ToolDefinition

	VADMode           string // "server_vad" | "semantic_vad"
	VADThreshold      float64
	PrefixPaddingMs   int
	SilenceDurationMs int

	TranscriptionLanguage string
	MaxOutputTokens       int

	// Greeting carries the agent's opening line when greeting is enabled.
	// None of the adapters in this module send it to the provider, so no
	// opening utterance is injected.
	Greeting string
}

// Capabilities describes static properties of a provider's underlying
// model, mirroring the teacher's S2SCapabilities. Static metadata exposed
// by each adapter; internal/bridge does not read these values.
type Capabilities struct {
	ContextWindow        int
	MaxSessionDuration   time.Duration
	SupportsResumption   bool
	SupportsCancellation bool
	Voices               []VoiceProfile
}

// EventKind discriminates the payload carried by an [Event].
type EventKind int

const (
	EventSessionReady EventKind = iota
	EventUserSpeechStarted
	EventUserSpeechStopped
	EventAgentAudioDelta
	EventAgentTextDelta
	EventUserTranscript
	EventToolCallRequested
	EventResponseDone
	EventProviderError
)

func (k EventKind) String() string {
	switch k {
	case EventSessionReady:
		return "session_ready"
	case EventUserSpeechStarted:
		return "user_speech_started"
	case EventUserSpeechStopped:
		return "user_speech_stopped"
	case EventAgentAudioDelta:
		return "agent_audio_delta"
	case EventAgentTextDelta:
		return "agent_text_delta"
	case EventUserTranscript:
		return "user_transcript"
	case EventToolCallRequested:
		return "tool_call_requested"
	case EventResponseDone:
		return "response_done"
	case EventProviderError:
		return "provider_error"
	default:
		return "unknown"
	}
}

// Usage carries the token/duration accounting a [EventResponseDone] event
// reports, when the provider documents it.
type Usage struct {
	InputTextTokens   int64
	InputAudioTokens  int64
	OutputTextTokens  int64
	OutputAudioTokens int64
	CachedInputTokens int64
}

// Event is the tagged union every adapter's Events() channel emits. Only the
// fields relevant to Kind are populated. Adapters MUST preserve strict event
// ordering within one call (spec.md §4.3).
type Event struct {
	Kind EventKind

	AudioDelta []byte // EventAgentAudioDelta
	TextDelta  string // EventAgentTextDelta

	Transcript      string // EventUserTranscript
	TranscriptFinal bool   // EventUserTranscript

	ToolCallID   string // EventToolCallRequested
	ToolName     string // EventToolCallRequested
	ToolArgsJSON string // EventToolCallRequested

	Usage      Usage  // EventResponseDone
	EndReason  string // EventResponseDone

	ErrorKind    string // EventProviderError
	ErrorMessage string // EventProviderError
	Fatal        bool   // EventProviderError
}

// Session is an open realtime session with a single vendor. Mirrors the
// teacher's SessionHandle: channel-based audio I/O so the hot path never
// blocks and explicit Close idempotency. Tool calls arrive on Events as
// [EventToolCallRequested] and are answered with SendToolResult.
//
// Implementations must be safe for concurrent use. Callers must call Close
// when the session is no longer needed.
type Session interface {
	// SendAudio forwards 20ms of caller PCM16 audio to the provider. For
	// providers whose media path bypasses the bridge entirely (Ultravox),
	// this is a documented no-op — see spec.md §9.
	SendAudio(chunk []byte) error

	// SendText injects a transcript from another source, rarely used.
	SendText(text string) error

	// SendToolResult replies to a tool invocation previously surfaced via an
	// EventToolCallRequested event.
	SendToolResult(callID string, resultJSON string) error

	// RequestCancel asks the provider to stop the current response
	// (barge-in). Providers without cancellation support return
	// [ErrCancelUnsupported]; callers must drop queued output locally
	// instead in that case.
	RequestCancel() error

	// Events returns the channel of neutral events (§4.3). Closed when the
	// session ends; call Err afterward to check whether it ended cleanly.
	Events() <-chan Event

	// Err returns the error that caused the Events channel to close
	// prematurely, or nil if the session ended cleanly.
	Err() error

	// Close terminates the session and releases all resources. Idempotent.
	Close(reason string) error
}

// Provider is the abstraction over a single realtime vendor.
type Provider interface {
	// Connect establishes a new session with the given configuration.
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)

	// Capabilities returns static metadata about the underlying model.
	Capabilities() Capabilities

	// Name returns the provider's short configuration key ("openai", "xai",
	// "gemini", "ultravox").
	Name() string
}
