// Package openai implements the realtime.Provider interface for OpenAI's
// Realtime API, adapted from a telephony bridge perspective: session
// configuration carries VAD thresholds, transcription language, and noise
// reduction instead of NPC voice/personality fields, and RequestCancel sends
// response.cancel as spec.md §4.2's provider table requires.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/voxbridge/realtime-bridge/pkg/provider/realtime"
)

var _ realtime.Provider = (*Provider)(nil)
var _ realtime.Session = (*session)(nil)

const (
	defaultModel   = "gpt-realtime"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the OpenAI model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// Provider implements realtime.Provider for OpenAI's Realtime API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a Provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{apiKey: apiKey, model: defaultModel, baseURL: defaultBaseURL}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) Capabilities() realtime.Capabilities {
	return realtime.Capabilities{
		ContextWindow:        128_000,
		MaxSessionDuration:   30 * 60 * 1e9, // 30 minutes, in time.Duration nanoseconds
		SupportsResumption:   false,
		SupportsCancellation: true,
		Voices: []realtime.VoiceProfile{
			"alloy", "ash", "ballad", "coral", "echo", "sage", "shimmer", "verse",
		},
	}
}

// Connect establishes a new OpenAI Realtime session and sends the initial
// session.update before returning, so the session is immediately ready to
// accept audio.
func (p *Provider) Connect(ctx context.Context, cfg realtime.SessionConfig) (realtime.Session, error) {
	wsURL := fmt.Sprintf("%s?model=%s", p.baseURL, p.model)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + p.apiKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:   conn,
		events: make(chan realtime.Event, 128),
		ctx:    sessCtx,
		cancel: sessCancel,
	}

	if err := sess.sendSessionUpdate(cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "session update failed")
		return nil, fmt.Errorf("openai: session update: %w", err)
	}

	go sess.receiveLoop()

	return sess, nil
}

// ── outgoing protocol messages ──────────────────────────────────────────────

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Voice                  string           `json:"voice,omitempty"`
	Instructions           string           `json:"instructions,omitempty"`
	Modalities             []string         `json:"modalities,omitempty"`
	Tools                  []oaiTool        `json:"tools,omitempty"`
	InputAudioFormat       string           `json:"input_audio_format"`
	OutputAudioFormat      string           `json:"output_audio_format"`
	TurnDetection          *turnDetection   `json:"turn_detection,omitempty"`
	InputAudioTranscription *audioTranscription `json:"input_audio_transcription,omitempty"`
	InputAudioNoiseReduction *noiseReduction `json:"input_audio_noise_reduction,omitempty"`
	MaxResponseOutputTokens int             `json:"max_response_output_tokens,omitempty"`
	Temperature            float64          `json:"temperature,omitempty"`
}

type turnDetection struct {
	Type                string  `json:"type"` // "server_vad" | "semantic_vad"
	Threshold           float64 `json:"threshold,omitempty"`
	PrefixPaddingMs     int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs   int     `json:"silence_duration_ms,omitempty"`
	Eagerness           string  `json:"eagerness,omitempty"`
}

type audioTranscription struct {
	Model    string `json:"model,omitempty"`
	Language string `json:"language,omitempty"`
}

type noiseReduction struct {
	Type string `json:"type"` // "near_field" | "far_field"
}

type oaiTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type createConversationItemMessage struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type    string             `json:"type"`
	Role    string             `json:"role,omitempty"`
	Content []conversationPart `json:"content,omitempty"`
	CallID  string             `json:"call_id,omitempty"`
	Output  string             `json:"output,omitempty"`
}

type conversationPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ── incoming protocol messages ──────────────────────────────────────────────

type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type usageDetail struct {
	InputTokens       int64 `json:"input_tokens"`
	OutputTokens      int64 `json:"output_tokens"`
	InputTokenDetails struct {
		TextTokens   int64 `json:"text_tokens"`
		AudioTokens  int64 `json:"audio_tokens"`
		CachedTokens int64 `json:"cached_tokens"`
	} `json:"input_token_details"`
	OutputTokenDetails struct {
		TextTokens  int64 `json:"text_tokens"`
		AudioTokens int64 `json:"audio_tokens"`
	} `json:"output_token_details"`
}

type serverEvent struct {
	Type string `json:"type"`

	// response.audio.delta / response.audio_transcript.delta /
	// conversation.item.input_audio_transcription.completed
	Delta string `json:"delta,omitempty"`

	// conversation.item.input_audio_transcription.completed
	Transcript string `json:"transcript,omitempty"`

	// response.function_call_arguments.done
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	CallID    string `json:"call_id,omitempty"`

	// response.done
	Response struct {
		Usage usageDetail `json:"usage"`
	} `json:"response,omitempty"`

	// error event
	Error *serverErrorDetail `json:"error,omitempty"`
}

// ── session ──────────────────────────────────────────────────────────────────

type session struct {
	conn   *websocket.Conn
	events chan realtime.Event

	mu     sync.Mutex
	errVal error
	closed bool

	currentTxText string

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (s *session) sendSessionUpdate(cfg realtime.SessionConfig) error {
	params := sessionParams{
		Modalities:        []string{"audio", "text"},
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		Temperature:       cfg.Temperature,
	}
	if cfg.Voice != "" {
		params.Voice = string(cfg.Voice)
	}
	if cfg.Instructions != "" {
		params.Instructions = cfg.Instructions
	}
	if len(cfg.Tools) > 0 {
		params.Tools = toOAITools(cfg.Tools)
	}
	if cfg.VADMode != "" {
		params.TurnDetection = &turnDetection{
			Type:              cfg.VADMode,
			Threshold:         cfg.VADThreshold,
			PrefixPaddingMs:   cfg.PrefixPaddingMs,
			SilenceDurationMs: cfg.SilenceDurationMs,
		}
	}
	if cfg.TranscriptionLanguage != "" {
		params.InputAudioTranscription = &audioTranscription{
			Model:    "whisper-1",
			Language: cfg.TranscriptionLanguage,
		}
	}
	if cfg.MaxOutputTokens > 0 {
		params.MaxResponseOutputTokens = cfg.MaxOutputTokens
	}
	return s.writeJSON(sessionUpdateMessage{Type: "session.update", Session: params})
}

func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("openai: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

func (s *session) receiveLoop() {
	defer s.closeChannels()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.setErr(err)
			s.emit(realtime.Event{Kind: realtime.EventProviderError, ErrorKind: "PROVIDER_TRANSPORT_ERROR", ErrorMessage: err.Error(), Fatal: true})
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}
		s.handleServerEvent(&evt)
	}
}

func (s *session) emit(e realtime.Event) {
	select {
	case s.events <- e:
	case <-s.ctx.Done():
	}
}

func (s *session) handleServerEvent(evt *serverEvent) {
	switch evt.Type {
	case "session.updated", "session.created":
		s.emit(realtime.Event{Kind: realtime.EventSessionReady})

	case "input_audio_buffer.speech_started":
		s.emit(realtime.Event{Kind: realtime.EventUserSpeechStarted})

	case "input_audio_buffer.speech_stopped":
		s.emit(realtime.Event{Kind: realtime.EventUserSpeechStopped})

	case "response.audio.delta":
		if evt.Delta == "" {
			return
		}
		audioData, err := base64.StdEncoding.DecodeString(evt.Delta)
		if err != nil || len(audioData) == 0 {
			return
		}
		s.emit(realtime.Event{Kind: realtime.EventAgentAudioDelta, AudioDelta: audioData})

	case "response.audio_transcript.delta":
		if evt.Delta == "" {
			return
		}
		s.mu.Lock()
		s.currentTxText += evt.Delta
		s.mu.Unlock()
		s.emit(realtime.Event{Kind: realtime.EventAgentTextDelta, TextDelta: evt.Delta})

	case "conversation.item.input_audio_transcription.completed":
		if evt.Transcript == "" {
			return
		}
		s.emit(realtime.Event{Kind: realtime.EventUserTranscript, Transcript: evt.Transcript, TranscriptFinal: true})

	case "response.function_call_arguments.done":
		s.emit(realtime.Event{Kind: realtime.EventToolCallRequested, ToolCallID: evt.CallID, ToolName: evt.Name, ToolArgsJSON: evt.Arguments})

	case "response.done":
		s.mu.Lock()
		s.currentTxText = ""
		s.mu.Unlock()
		u := evt.Response.Usage
		s.emit(realtime.Event{
			Kind:      realtime.EventResponseDone,
			EndReason: "completed",
			Usage: realtime.Usage{
				InputTextTokens:   u.InputTokenDetails.TextTokens,
				InputAudioTokens:  u.InputTokenDetails.AudioTokens,
				OutputTextTokens:  u.OutputTokenDetails.TextTokens,
				OutputAudioTokens: u.OutputTokenDetails.AudioTokens,
				CachedInputTokens: u.InputTokenDetails.CachedTokens,
			},
		})

	case "error":
		msg := "unknown error"
		if evt.Error != nil && evt.Error.Message != "" {
			msg = evt.Error.Message
		}
		s.emit(realtime.Event{Kind: realtime.EventProviderError, ErrorKind: "PROVIDER_ERROR", ErrorMessage: msg})
	}
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

func (s *session) closeChannels() {
	s.closeOnce.Do(func() {
		close(s.events)
	})
}

func toOAITools(tools []realtime.ToolDefinition) []oaiTool {
	out := make([]oaiTool, len(tools))
	for i, t := range tools {
		out[i] = oaiTool{Type: "function", Name: t.Name, Description: t.Description, Parameters: t.Parameters}
	}
	return out
}

// ── realtime.Session methods ─────────────────────────────────────────────────

func (s *session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return realtime.ErrSessionClosed
	}
	s.mu.Unlock()

	return s.writeJSON(appendAudioMessage{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(chunk),
	})
}

func (s *session) SendText(text string) error {
	return s.writeJSON(createConversationItemMessage{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type: "message",
			Role: "user",
			Content: []conversationPart{
				{Type: "input_text", Text: text},
			},
		},
	})
}

func (s *session) SendToolResult(callID string, resultJSON string) error {
	if err := s.writeJSON(createConversationItemMessage{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: resultJSON,
		},
	}); err != nil {
		return err
	}
	return s.writeJSON(map[string]string{"type": "response.create"})
}

func (s *session) RequestCancel() error {
	return s.writeJSON(map[string]string{"type": "response.cancel"})
}

func (s *session) Events() <-chan realtime.Event { return s.events }

func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

func (s *session) Close(reason string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	if reason == "" {
		reason = "session closed"
	}
	s.conn.Close(websocket.StatusNormalClosure, reason)
	return nil
}
