// Package ultravox implements the realtime.Provider interface for Ultravox,
// whose audio path is SIP-native: the PBX speaks media directly to the
// provider and the bridge never sees a PCM sample for these calls. Per
// spec.md §9, the adapter's job reduces to driving a control WebSocket for
// session configuration, tool wiring, and lifecycle, plus accounting. To
// reflect that asymmetry, SendAudio is a documented no-op and cost is not
// derived from a usage event on the neutral stream but from call-duration
// reports (in seconds) taken from the control channel's billing events and
// exposed on a separate CostReports channel.
package ultravox

import (
	"context"
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
	defaultBaseURL = "wss://api.ultravox.ai/api/calls"
)

type Option func(*Provider)

func WithBaseURL(url string) Option { return func(p *Provider) { p.baseURL = url } }

type Provider struct {
	apiKey  string
	baseURL string
}

func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{apiKey: apiKey, baseURL: defaultBaseURL}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) Name() string { return "ultravox" }

func (p *Provider) Capabilities() realtime.Capabilities {
	return realtime.Capabilities{
		ContextWindow:        32_000,
		MaxSessionDuration:   60 * 1e9 * 60,
		SupportsResumption:   false,
		SupportsCancellation: false,
		Voices: []realtime.VoiceProfile{
			"Mark", "Jessica", "Aaron",
		},
	}
}

// Connect dials the control WebSocket only. Media for this call flows
// SIP-direct between the PBX and Ultravox; this session never carries audio.
func (p *Provider) Connect(ctx context.Context, cfg realtime.SessionConfig) (realtime.Session, error) {
	conn, _, err := websocket.Dial(ctx, p.baseURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"X-API-Key": []string{p.apiKey},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ultravox: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:         conn,
		events:       make(chan realtime.Event, 32),
		costReports:  make(chan int64, 8),
		ctx:          sessCtx,
		cancel:       sessCancel,
	}

	if err := sess.sendSessionConfig(cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("ultravox: session config: %w", err)
	}

	go sess.receiveLoop()

	return sess, nil
}

// ── outgoing protocol messages ──────────────────────────────────────────────

type sessionConfigMessage struct {
	Type    string        `json:"type"`
	Voice   string        `json:"voice,omitempty"`
	System  string        `json:"systemPrompt,omitempty"`
	Tools   []ultravoxTool `json:"selectedTools,omitempty"`
}

type ultravoxTool struct {
	Name   string         `json:"name"`
	Desc   string         `json:"description,omitempty"`
	Params map[string]any `json:"parameters,omitempty"`
}

type toolResultMessage struct {
	Type     string `json:"type"`
	ToolID   string `json:"toolId"`
	Response string `json:"response"`
}

// ── incoming protocol messages ──────────────────────────────────────────────

type serverMessage struct {
	Type          string             `json:"type"`
	Role          string             `json:"role,omitempty"`
	Text          string             `json:"text,omitempty"`
	Final         bool               `json:"final,omitempty"`
	ToolID        string             `json:"toolId,omitempty"`
	ToolName      string             `json:"toolName,omitempty"`
	ArgumentsJSON string             `json:"arguments,omitempty"`
	Reason        string             `json:"reason,omitempty"`
	BillingEvent  *billingEventMsg   `json:"billing,omitempty"`
	Error         *ultravoxErrorMsg  `json:"error,omitempty"`
}

// billingEventMsg arrives over the control channel (and, in production, is
// mirrored to the account webhook) reporting call duration for cost accrual.
type billingEventMsg struct {
	DurationSeconds int64 `json:"durationSeconds"`
}

type ultravoxErrorMsg struct {
	Message string `json:"message"`
}

// ── session ──────────────────────────────────────────────────────────────────

type session struct {
	conn        *websocket.Conn
	events      chan realtime.Event
	costReports chan int64

	mu     sync.Mutex
	errVal error
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (s *session) sendSessionConfig(cfg realtime.SessionConfig) error {
	msg := sessionConfigMessage{
		Type:   "session.config",
		Voice:  string(cfg.Voice),
		System: cfg.Instructions,
	}
	for _, tool := range cfg.Tools {
		msg.Tools = append(msg.Tools, ultravoxTool{Name: tool.Name, Desc: tool.Description, Params: tool.Parameters})
	}
	return s.writeJSON(msg)
}

func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ultravox: marshal: %w", err)
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

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		s.handleServerMessage(&msg)
	}
}

func (s *session) emit(e realtime.Event) {
	select {
	case s.events <- e:
	case <-s.ctx.Done():
	}
}

func (s *session) handleServerMessage(msg *serverMessage) {
	switch msg.Type {
	case "session.ready":
		s.emit(realtime.Event{Kind: realtime.EventSessionReady})
	case "transcript":
		if msg.Role == "agent" {
			s.emit(realtime.Event{Kind: realtime.EventAgentTextDelta, TextDelta: msg.Text})
		} else {
			s.emit(realtime.Event{Kind: realtime.EventUserTranscript, Transcript: msg.Text, TranscriptFinal: msg.Final})
		}
	case "tool.invocation":
		s.emit(realtime.Event{Kind: realtime.EventToolCallRequested, ToolCallID: msg.ToolID, ToolName: msg.ToolName, ToolArgsJSON: msg.ArgumentsJSON})
	case "call.ended":
		if msg.BillingEvent != nil {
			select {
			case s.costReports <- msg.BillingEvent.DurationSeconds:
			default:
			}
		}
		s.emit(realtime.Event{Kind: realtime.EventResponseDone, EndReason: msg.Reason})
	case "error":
		m := "unknown error"
		if msg.Error != nil && msg.Error.Message != "" {
			m = msg.Error.Message
		}
		s.emit(realtime.Event{Kind: realtime.EventProviderError, ErrorKind: "PROVIDER_ERROR", ErrorMessage: m})
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

// SendAudio is a no-op: Ultravox's audio path bypasses the bridge entirely,
// the PBX dialplan routes media directly to the provider over SIP.
func (s *session) SendAudio(chunk []byte) error {
	return nil
}

func (s *session) SendText(text string) error {
	return nil
}

func (s *session) SendToolResult(callID string, resultJSON string) error {
	return s.writeJSON(toolResultMessage{Type: "tool.result", ToolID: callID, Response: resultJSON})
}

// RequestCancel reports unsupported: cancellation for Ultravox happens out
// of band at the SIP/media layer, not over this control channel.
func (s *session) RequestCancel() error {
	return realtime.ErrCancelUnsupported
}

func (s *session) Events() <-chan realtime.Event { return s.events }

// CostReports exposes call-duration reports, in whole seconds, as they
// arrive from the control channel's billing events, for the session driver
// to feed into the call's cost accumulator independently of the neutral
// event stream.
func (s *session) CostReports() <-chan int64 { return s.costReports }

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
