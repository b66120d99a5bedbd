// Package xai implements the realtime.Provider interface for xAI's Grok
// realtime voice API. No xAI SDK exists anywhere in the reference corpus, so
// this adapter is grounded on the structural shape of the sibling openai and
// gemini adapters: the same coder/websocket transport and a session.update
// style JSON protocol. xAI's API does not support mid-call cancellation, so
// RequestCancel reports realtime.ErrCancelUnsupported rather than sending a
// wire message, and its turn detection is server-VAD-only with a single
// threshold knob (no semantic eagerness, no prefix padding control).
package xai

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
	defaultModel   = "grok-realtime"
	defaultBaseURL = "wss://api.x.ai/v1/realtime"
)

type Option func(*Provider)

func WithModel(model string) Option { return func(p *Provider) { p.model = model } }
func WithBaseURL(url string) Option { return func(p *Provider) { p.baseURL = url } }

type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{apiKey: apiKey, model: defaultModel, baseURL: defaultBaseURL}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) Name() string { return "xai" }

func (p *Provider) Capabilities() realtime.Capabilities {
	return realtime.Capabilities{
		ContextWindow:        131_072,
		MaxSessionDuration:   20 * 1e9 * 60,
		SupportsResumption:   false,
		SupportsCancellation: false,
		Voices: []realtime.VoiceProfile{
			"eve", "gojira", "leo",
		},
	}
}

func (p *Provider) Connect(ctx context.Context, cfg realtime.SessionConfig) (realtime.Session, error) {
	conn, _, err := websocket.Dial(ctx, p.baseURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + p.apiKey},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("xai: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:   conn,
		events: make(chan realtime.Event, 128),
		ctx:    sessCtx,
		cancel: sessCancel,
	}

	instructions := realtime.LanguagePreamble("xai", cfg.TranscriptionLanguage, cfg.Instructions)
	if err := sess.sendSessionUpdate(p.model, cfg, instructions); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("xai: session update: %w", err)
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
	Model            string         `json:"model"`
	Voice            string         `json:"voice,omitempty"`
	Instructions     string         `json:"instructions,omitempty"`
	Modalities       []string       `json:"modalities"`
	Tools            []xaiTool      `json:"tools,omitempty"`
	InputAudioFormat string         `json:"input_audio_format"`
	TurnDetection    *turnDetection `json:"turn_detection,omitempty"`
	Temperature      *float64       `json:"temperature,omitempty"`
}

type turnDetection struct {
	Type      string  `json:"type"`
	Threshold float64 `json:"threshold,omitempty"`
}

type xaiTool struct {
	Type     string         `json:"type"`
	Name     string         `json:"name"`
	Desc     string         `json:"description,omitempty"`
	Params   map[string]any `json:"parameters,omitempty"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type createResponseTextMessage struct {
	Type string          `json:"type"`
	Item responseItemMsg `json:"item"`
}

type responseItemMsg struct {
	Type    string       `json:"type"`
	Role    string       `json:"role"`
	Content []itemContent `json:"content"`
}

type itemContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type toolOutputMessage struct {
	Type string         `json:"type"`
	Item toolOutputItem `json:"item"`
}

type toolOutputItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

// ── incoming protocol messages ──────────────────────────────────────────────

type serverEvent struct {
	Type       string          `json:"type"`
	Delta      string          `json:"delta,omitempty"`
	Transcript string          `json:"transcript,omitempty"`
	CallID     string          `json:"call_id,omitempty"`
	Name       string          `json:"name,omitempty"`
	Arguments  string          `json:"arguments,omitempty"`
	Response   *responseDetail `json:"response,omitempty"`
	Error      *errorDetail    `json:"error,omitempty"`
}

type responseDetail struct {
	Status string `json:"status,omitempty"`
}

type errorDetail struct {
	Message string `json:"message"`
}

// ── session ──────────────────────────────────────────────────────────────────

type session struct {
	conn   *websocket.Conn
	events chan realtime.Event

	mu     sync.Mutex
	errVal error
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (s *session) sendSessionUpdate(model string, cfg realtime.SessionConfig, instructions string) error {
	params := sessionParams{
		Model:            model,
		Voice:            string(cfg.Voice),
		Instructions:     instructions,
		Modalities:       []string{"text", "audio"},
		InputAudioFormat: "pcm16",
	}
	if cfg.VADMode != "" {
		params.TurnDetection = &turnDetection{Type: "server_vad", Threshold: cfg.VADThreshold}
	}
	if cfg.Temperature > 0 {
		t := cfg.Temperature
		params.Temperature = &t
	}
	for _, tool := range cfg.Tools {
		params.Tools = append(params.Tools, xaiTool{Type: "function", Name: tool.Name, Desc: tool.Description, Params: tool.Parameters})
	}

	return s.writeJSON(sessionUpdateMessage{Type: "session.update", Session: params})
}

func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("xai: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

func (s *session) receiveLoop() {
	defer s.closeOnce.Do(func() { close(s.events) })

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
	case "session.created", "session.updated":
		s.emit(realtime.Event{Kind: realtime.EventSessionReady})
	case "input_audio_buffer.speech_started":
		s.emit(realtime.Event{Kind: realtime.EventUserSpeechStarted})
	case "input_audio_buffer.speech_stopped":
		s.emit(realtime.Event{Kind: realtime.EventUserSpeechStopped})
	case "response.audio.delta":
		audioData, err := base64.StdEncoding.DecodeString(evt.Delta)
		if err != nil {
			return
		}
		s.emit(realtime.Event{Kind: realtime.EventAgentAudioDelta, AudioDelta: audioData})
	case "response.audio_transcript.delta":
		s.emit(realtime.Event{Kind: realtime.EventAgentTextDelta, TextDelta: evt.Delta})
	case "conversation.item.input_audio_transcription.completed":
		s.emit(realtime.Event{Kind: realtime.EventUserTranscript, Transcript: evt.Transcript, TranscriptFinal: true})
	case "response.function_call_arguments.done":
		s.emit(realtime.Event{Kind: realtime.EventToolCallRequested, ToolCallID: evt.CallID, ToolName: evt.Name, ToolArgsJSON: evt.Arguments})
	case "response.done":
		s.emit(realtime.Event{Kind: realtime.EventResponseDone, EndReason: "completed"})
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

// ── realtime.Session methods ─────────────────────────────────────────────────

func (s *session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return realtime.ErrSessionClosed
	}
	s.mu.Unlock()

	return s.writeJSON(appendAudioMessage{Type: "input_audio_buffer.append", Audio: base64.StdEncoding.EncodeToString(chunk)})
}

func (s *session) SendText(text string) error {
	return s.writeJSON(createResponseTextMessage{
		Type: "conversation.item.create",
		Item: responseItemMsg{Type: "message", Role: "user", Content: []itemContent{{Type: "input_text", Text: text}}},
	})
}

func (s *session) SendToolResult(callID string, resultJSON string) error {
	return s.writeJSON(toolOutputMessage{
		Type: "conversation.item.create",
		Item: toolOutputItem{Type: "function_call_output", CallID: callID, Output: resultJSON},
	})
}

// RequestCancel reports unsupported: xAI's realtime API has no mid-response
// cancellation primitive, per spec.md §4.2's provider table.
func (s *session) RequestCancel() error {
	return realtime.ErrCancelUnsupported
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
