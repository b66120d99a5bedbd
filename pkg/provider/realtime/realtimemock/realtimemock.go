// Package realtimemock provides test doubles for the realtime package
// interfaces, modelled on the call-recording mock used for the s2s adapters:
// Provider records Connect invocations and returns a controllable Session;
// Session records every method call so orchestration tests can assert on
// what the bridge driver sent, without dialling a real provider.
//
// Example:
//
//	sess := &realtimemock.Session{EventsCh: make(chan realtime.Event, 8)}
//	p := &realtimemock.Provider{Session: sess}
//	handle, _ := p.Connect(ctx, cfg)
package realtimemock

import (
	"context"
	"sync"

	"github.com/voxbridge/realtime-bridge/pkg/provider/realtime"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	Ctx context.Context
	Cfg realtime.SessionConfig
}

// Provider is a mock implementation of realtime.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the Session returned by Connect. If nil, Connect returns a
	// new default Session with a buffered events channel.
	Session realtime.Session

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ProviderName is returned by Name.
	ProviderName string

	// ProviderCapabilities is returned by Capabilities.
	ProviderCapabilities realtime.Capabilities

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall

	// CapabilitiesCallCount is the number of times Capabilities was called.
	CapabilitiesCallCount int
}

func (p *Provider) Connect(ctx context.Context, cfg realtime.SessionConfig) (realtime.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return &Session{EventsCh: make(chan realtime.Event, 64)}, nil
}

func (p *Provider) Capabilities() realtime.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CapabilitiesCallCount++
	return p.ProviderCapabilities
}

func (p *Provider) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ProviderName
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = nil
	p.CapabilitiesCallCount = 0
}

var _ realtime.Provider = (*Provider)(nil)

// SendAudioCall records a single invocation of Session.SendAudio.
type SendAudioCall struct {
	Chunk []byte
}

// SendToolResultCall records a single invocation of Session.SendToolResult.
type SendToolResultCall struct {
	CallID     string
	ResultJSON string
}

// Session is a mock implementation of realtime.Session. Callers should
// pre-populate EventsCh, then close it to signal end-of-session.
type Session struct {
	mu sync.Mutex

	// EventsCh is the channel returned by Events(). Callers own this channel.
	EventsCh chan realtime.Event

	// --- Configurable errors ---

	SendAudioErr      error
	SendTextErr       error
	SendToolResultErr error
	RequestCancelErr  error
	CloseErr          error
	ErrVal            error

	// --- Call records ---

	SendAudioCalls      []SendAudioCall
	SendTextCalls       []string
	SendToolResultCalls []SendToolResultCall
	RequestCancelCount  int
	CloseCalls          []string
}

func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, SendAudioCall{Chunk: cp})
	return s.SendAudioErr
}

func (s *Session) SendText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendTextCalls = append(s.SendTextCalls, text)
	return s.SendTextErr
}

func (s *Session) SendToolResult(callID string, resultJSON string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendToolResultCalls = append(s.SendToolResultCalls, SendToolResultCall{CallID: callID, ResultJSON: resultJSON})
	return s.SendToolResultErr
}

func (s *Session) RequestCancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RequestCancelCount++
	return s.RequestCancelErr
}

func (s *Session) Events() <-chan realtime.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.EventsCh
}

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ErrVal
}

func (s *Session) Close(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls = append(s.CloseCalls, reason)
	return s.CloseErr
}

// ResetCalls clears all recorded calls. Thread-safe.
func (s *Session) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendAudioCalls = nil
	s.SendTextCalls = nil
	s.SendToolResultCalls = nil
	s.RequestCancelCount = 0
	s.CloseCalls = nil
}

// ToolResultCallsSnapshot returns a copy of the tool-result calls recorded
// so far. Thread-safe, unlike reading SendToolResultCalls directly — tests
// driving the session from one goroutine while asserting from another
// (e.g. a bridge driver dispatching tool calls asynchronously) must use
// this instead of the raw field.
func (s *Session) ToolResultCallsSnapshot() []SendToolResultCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SendToolResultCall, len(s.SendToolResultCalls))
	copy(out, s.SendToolResultCalls)
	return out
}

var _ realtime.Session = (*Session)(nil)
