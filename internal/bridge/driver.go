package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/voxbridge/realtime-bridge/internal/call"
	"github.com/voxbridge/realtime-bridge/internal/ingress"
	"github.com/voxbridge/realtime-bridge/internal/observe"
	"github.com/voxbridge/realtime-bridge/internal/pacer"
	"github.com/voxbridge/realtime-bridge/internal/tools"
	"github.com/voxbridge/realtime-bridge/pkg/kv"
	"github.com/voxbridge/realtime-bridge/pkg/provider/realtime"
)

const (
	// handshakeTimeout bounds the initial provider WebSocket handshake
	// (spec.md §5).
	handshakeTimeout = 10 * time.Second

	// reconnectTimeout bounds the single reconnect attempt permitted after a
	// mid-call transport error (spec.md §7 PROVIDER_TRANSPORT_ERROR).
	reconnectTimeout = 2 * time.Second

	// audioQueueDepth bounds the channel decoupling the ingress socket
	// reader from the (possibly slower) provider send path, giving the
	// ingress side explicit backpressure per spec.md §9.
	audioQueueDepth = 256

	// toolResultQueueDepth bounds concurrently in-flight tool dispatches.
	toolResultQueueDepth = 32

	// defaultSampleRate is the PBX dialplan's negotiated codec in the
	// primary deployed path (spec.md §6: `c(slin24)`).
	defaultSampleRate = 24000
	defaultFrameType  = ingress.TypeAudio24K
)

// Driver owns one call end to end: the ingress socket, the provider
// session, the turn-state machine, the output pacer, and the per-call cost
// accumulator. Modelled on the teacher's engine/s2s.Engine: a mutex guards
// only the session reference, never held across blocking I/O, and a
// WaitGroup drains every background goroutine before run finalizes the
// call.
type Driver struct {
	svc  *Service
	conn net.Conn

	callID      string
	providerName string
	agentCfg    call.AgentConfig
	sessionCfg  realtime.SessionConfig

	mu      sync.Mutex
	session realtime.Session
	cancel  context.CancelFunc

	machine *call.Machine
	costAcc *call.CostAccumulator
	pacer   *pacer.Pacer

	wg sync.WaitGroup
}

// Service holds the process-wide, init-at-start dependencies every call's
// [Driver] shares: the provider registry, the tool dispatcher and its
// schemas, the KV store, and the three sinks. Exactly the "shared
// process-wide state" spec.md §5 permits — never mutated after
// construction.
type Service struct {
	Registry    *Registry
	Calls       *CallRegistry
	Dispatcher  *tools.Dispatcher
	ToolSchemas []realtime.ToolDefinition
	KV          *kv.Store
	Recording   RecordingSink
	Transcripts TranscriptSink
	Costs       CostSink
	Metrics     *observe.Metrics
}

// HandleConn implements [ingress.ConnHandler]. It runs one call to
// completion, logging and closing the connection on any error rather than
// propagating — a single call's failure must never take down the accept
// loop.
func (s *Service) HandleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	d := &Driver{
		svc:     s,
		conn:    conn,
		machine: call.NewMachine(),
	}
	if err := d.run(ctx); err != nil {
		slog.Warn("call ended with error", "call_id", d.callID, "err", err)
	}
}

// run performs the handshake (UUID frame, agent config lookup, provider
// connect) and then drives the call until hangup, cancellation, or an
// unrecoverable provider error.
func (d *Driver) run(ctx context.Context) error {
	reader := ingress.NewReader(d.conn)

	first, err := reader.Read()
	if err != nil {
		return fmt.Errorf("bridge: read first frame: %w", err)
	}
	if first.Type != ingress.TypeUUID {
		return fmt.Errorf("bridge: first frame was %s, expected UUID", first.Type)
	}
	d.callID = string(first.Payload)
	if d.svc.Calls != nil {
		d.svc.Calls.register(d)
		defer d.svc.Calls.unregister(d.callID)
	}

	ctx, span := observe.StartSpan(ctx, "bridge.call", trace.WithAttributes(attribute.String("call_id", d.callID)))
	defer span.End()

	var agentCfg call.AgentConfig
	if err := d.svc.KV.GetAgentConfig(ctx, d.callID, &agentCfg); err != nil {
		d.writeErrorFrame(fmt.Sprintf("agent config: %v", err))
		return fmt.Errorf("bridge: load agent config for call %s: %w", d.callID, err)
	}
	d.agentCfg = agentCfg
	d.sessionCfg = buildSessionConfig(agentCfg, d.svc.ToolSchemas)

	handshakeCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	session, providerName, err := d.svc.Registry.Connect(handshakeCtx, agentCfg.Provider, d.sessionCfg)
	cancel()
	if err != nil {
		d.writeErrorFrame(fmt.Sprintf("provider handshake: %v", err))
		if d.svc.Metrics != nil {
			d.svc.Metrics.RecordProviderError(ctx, agentCfg.Provider, "handshake_failed")
		}
		return fmt.Errorf("bridge: connect provider for call %s: %w", d.callID, err)
	}
	d.providerName = providerName
	d.session = session
	d.costAcc = call.NewCostAccumulator(providerName)

	d.pacer = pacer.New(defaultSampleRate, d.emitEgressFrame)
	defer d.pacer.Close()

	callCtx, cancelCall := context.WithCancel(ctx)
	defer cancelCall()
	d.mu.Lock()
	d.cancel = cancelCall
	d.mu.Unlock()

	// Unblock the ingress socket's blocking Read when cancellation fires for
	// any reason other than hangup (fatal provider error, egress write
	// failure, parent shutdown) — mirrors the teacher's ingress.Server
	// closing its listener on context cancellation.
	go func() {
		<-callCtx.Done()
		d.conn.Close()
	}()

	audioOut := make(chan []byte, audioQueueDepth)

	d.wg.Add(1)
	go d.sendAudioLoop(callCtx, audioOut)

	d.wg.Add(1)
	go d.ingressLoop(callCtx, cancelCall, reader, audioOut)

	d.wg.Add(1)
	go d.providerEventsLoop(callCtx, cancelCall, session)

	d.wg.Wait()

	d.finalizeCall(ctx)
	return nil
}

// currentSession returns the live session under lock, for goroutines that
// must always target the most recently (re)connected session.
func (d *Driver) currentSession() realtime.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session
}

func (d *Driver) setSession(s realtime.Session) {
	d.mu.Lock()
	d.session = s
	d.mu.Unlock()
}

// abort cancels the call's context, which fans out to every task and
// closes the ingress socket. Safe to call multiple times or concurrently.
func (d *Driver) abort() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// ingressLoop reads frames from the PBX socket until hangup, a protocol
// error, or cancellation. Audio frames are forwarded, in order, onto
// audioOut; the sendAudioLoop goroutine is the only caller of
// session.SendAudio, so ordering (testable property 2) holds regardless of
// how slow the provider send is.
func (d *Driver) ingressLoop(ctx context.Context, cancel context.CancelFunc, reader *ingress.Reader, audioOut chan<- []byte) {
	defer d.wg.Done()
	defer close(audioOut)
	defer cancel()

	for {
		frame, err := reader.Read()
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.Debug("ingress read ended", "call_id", d.callID, "err", err)
			}
			return
		}

		switch {
		case frame.Type == ingress.TypeHangup:
			return
		case frame.Type.IsAudio():
			d.svc.Recording.Append(ctx, d.callID, DirectionCaller, frame.Payload)
			select {
			case audioOut <- frame.Payload:
			case <-ctx.Done():
				return
			}
		case frame.Type == ingress.TypeDTMF:
			slog.Debug("dtmf received", "call_id", d.callID, "digit", string(frame.Payload))
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// sendAudioLoop is the sole writer of caller audio into the provider
// session, preserving the exact order ingressLoop observed it in.
func (d *Driver) sendAudioLoop(ctx context.Context, audioIn <-chan []byte) {
	defer d.wg.Done()

	for {
		select {
		case chunk, ok := <-audioIn:
			if !ok {
				return
			}
			sess := d.currentSession()
			if sess == nil {
				continue
			}
			if err := sess.SendAudio(chunk); err != nil {
				// A send failure mid-reconnect drops this chunk rather than
				// blocking or erroring the call — spec.md §8 S5 calls this
				// acceptable ("caller audio buffered during the gap is
				// discarded").
				slog.Debug("send audio failed, dropping chunk", "call_id", d.callID, "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// providerEventsLoop pulls neutral events from sess until its Events
// channel closes, then — unless the call is shutting down — attempts
// exactly one reconnect (spec.md §7 PROVIDER_TRANSPORT_ERROR) before
// giving up and ending the call.
func (d *Driver) providerEventsLoop(ctx context.Context, cancel context.CancelFunc, sess realtime.Session) {
	defer d.wg.Done()
	defer cancel()

	for {
		d.wg.Add(1)
		go func(s realtime.Session) {
			defer d.wg.Done()
			d.drainCostReports(ctx, s)
		}(sess)

		d.drainEvents(ctx, sess)

		if ctx.Err() != nil {
			return
		}
		if sess.Err() == nil {
			// Clean close (hangup elsewhere, explicit Close) — nothing to
			// reconnect.
			return
		}

		slog.Warn("provider session dropped, attempting reconnect",
			"call_id", d.callID, "provider", d.providerName, "err", sess.Err())

		reconnectCtx, rcancel := context.WithTimeout(ctx, reconnectTimeout)
		newSess, _, err := d.svc.Registry.Connect(reconnectCtx, d.providerName, d.sessionCfg)
		rcancel()
		if err != nil {
			slog.Error("reconnect failed, ending call", "call_id", d.callID, "err", err)
			return
		}

		d.setSession(newSess)
		d.machine.Reset()
		d.pacer.Resume()
		sess = newSess
	}
}

// drainEvents processes events from sess.Events() until the channel closes
// or ctx is cancelled.
func (d *Driver) drainEvents(ctx context.Context, sess realtime.Session) {
	for {
		select {
		case ev, ok := <-sess.Events():
			if !ok {
				return
			}
			d.handleEvent(ctx, sess, ev)
		case <-ctx.Done():
			return
		}
	}
}

// costReporter is implemented by sessions that bill on a side channel
// instead of the neutral Event stream — today, only [ultravox]'s session,
// whose duration reports come from billing events on its control channel.
type costReporter interface {
	CostReports() <-chan int64
}

// drainCostReports feeds sess's duration reports (whole seconds), if it
// offers any, into
// the call's cost accumulator until the channel closes or ctx is cancelled.
// A session that doesn't implement costReporter (every vendor but Ultravox)
// returns immediately.
func (d *Driver) drainCostReports(ctx context.Context, sess realtime.Session) {
	reporter, ok := sess.(costReporter)
	if !ok {
		return
	}
	for {
		select {
		case seconds, ok := <-reporter.CostReports():
			if !ok {
				return
			}
			d.costAcc.AddUltravoxSeconds(float64(seconds))
		case <-ctx.Done():
			return
		}
	}
}

func (d *Driver) handleEvent(ctx context.Context, sess realtime.Session, ev realtime.Event) {
	switch ev.Kind {
	case realtime.EventSessionReady:
		// Nothing to do here. No adapter sends SessionConfig.Greeting to
		// the provider, so no opening line is injected on this event.

	case realtime.EventUserSpeechStarted:
		wasSpeaking := d.machine.State() == call.StateAgentSpeaking
		if err := d.machine.Fire(call.TriggerUserSpeechStarted); err != nil {
			slog.Debug("turn state: ignoring trigger", "call_id", d.callID, "err", err)
			return
		}
		if wasSpeaking && d.machine.BargingIn() {
			d.pacer.BargeIn()
			if err := sess.RequestCancel(); err != nil && !errors.Is(err, realtime.ErrCancelUnsupported) {
				slog.Debug("request cancel failed", "call_id", d.callID, "err", err)
			}
			if d.svc.Metrics != nil {
				d.svc.Metrics.RecordProviderRequest(ctx, d.providerName, "barge_in", "ok")
			}
		}

	case realtime.EventUserSpeechStopped:
		_ = d.machine.Fire(call.TriggerUserSpeechStopped)

	case realtime.EventAgentAudioDelta:
		if d.machine.State() == call.StateAgentThinking {
			_ = d.machine.Fire(call.TriggerFirstAgentAudio)
			d.pacer.Resume()
		}
		d.pacer.Emit(ev.AudioDelta)
		d.svc.Recording.Append(ctx, d.callID, DirectionAgent, ev.AudioDelta)

	case realtime.EventAgentTextDelta:
		d.svc.Transcripts.Record(ctx, d.callID, "agent", ev.TextDelta, false)

	case realtime.EventUserTranscript:
		d.svc.Transcripts.Record(ctx, d.callID, "caller", ev.Transcript, ev.TranscriptFinal)

	case realtime.EventToolCallRequested:
		_ = d.machine.Fire(call.TriggerToolCallRequested)
		d.dispatchTool(ctx, sess, ev)

	case realtime.EventResponseDone:
		d.costAcc.AddTokenUsage(call.TokenUsage{
			InputText:   ev.Usage.InputTextTokens,
			InputAudio:  ev.Usage.InputAudioTokens,
			OutputText:  ev.Usage.OutputTextTokens,
			OutputAudio: ev.Usage.OutputAudioTokens,
			CachedInput: ev.Usage.CachedInputTokens,
		})
		_ = d.machine.Fire(call.TriggerResponseDone)

	case realtime.EventProviderError:
		if d.svc.Metrics != nil {
			d.svc.Metrics.RecordProviderError(ctx, d.providerName, ev.ErrorKind)
		}
		if ev.Fatal {
			slog.Error("fatal provider error, ending call",
				"call_id", d.callID, "kind", ev.ErrorKind, "message", ev.ErrorMessage)
			d.abort()
		}
	}
}

// dispatchTool runs the requested tool asynchronously so a slow handler
// (up to the dispatcher's 5s hard timeout) never blocks the event loop from
// observing subsequent events, per spec.md §4.5.
func (d *Driver) dispatchTool(ctx context.Context, sess realtime.Session, ev realtime.Event) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		toolCtx := tools.WithCallID(ctx, d.callID)
		result := d.svc.Dispatcher.Dispatch(toolCtx, ev.ToolName, ev.ToolArgsJSON)

		status := "ok"
		if result.Err != nil {
			status = string(result.ErrKind)
		}
		if d.svc.Metrics != nil {
			d.svc.Metrics.RecordToolCall(ctx, ev.ToolName, status)
		}

		if err := sess.SendToolResult(ev.ToolCallID, result.ResultJSON); err != nil {
			slog.Warn("send tool result failed", "call_id", d.callID, "tool", ev.ToolName, "err", err)
		}
	}()
}

// emitEgressFrame is the pacer's egress callback: it wraps one PCM16 frame
// in the AudioSocket TLV and writes it to the PBX socket.
func (d *Driver) emitEgressFrame(frame []byte) {
	if err := ingress.WriteFrame(d.conn, ingress.Frame{Type: defaultFrameType, Payload: frame}); err != nil {
		slog.Debug("egress write failed", "call_id", d.callID, "err", err)
		d.abort()
	}
}

func (d *Driver) writeErrorFrame(message string) {
	_ = ingress.WriteFrame(d.conn, ingress.Frame{Type: ingress.TypeError, Payload: []byte(message)})
}

// finalizeCall closes the provider session, records the final cost
// snapshot, and marks the xAI call-seconds clock stopped.
func (d *Driver) finalizeCall(ctx context.Context) {
	d.costAcc.MarkStopped()

	if sess := d.currentSession(); sess != nil {
		_ = sess.Close("call ended")
	}

	if f, ok := d.svc.Recording.(Flusher); ok {
		f.Flush(ctx, d.callID)
	}

	if d.svc.Costs != nil {
		d.svc.Costs.Record(ctx, d.callID, d.costAcc.Snapshot())
	}
}

// buildSessionConfig assembles a [realtime.SessionConfig] from the call's
// [call.AgentConfig], filtering the process-wide tool schema set down to
// the names this agent has enabled.
func buildSessionConfig(agentCfg call.AgentConfig, allSchemas []realtime.ToolDefinition) realtime.SessionConfig {
	enabled := make(map[string]bool, len(agentCfg.Tools))
	for _, name := range agentCfg.Tools {
		enabled[name] = true
	}
	var toolSchemas []realtime.ToolDefinition
	for _, schema := range allSchemas {
		if enabled[schema.Name] {
			toolSchemas = append(toolSchemas, schema)
		}
	}

	cfg := realtime.SessionConfig{
		Voice:                 realtime.VoiceProfile(agentCfg.Voice),
		Instructions:          agentCfg.Prompt,
		Language:              agentCfg.Language,
		Temperature:           agentCfg.Temperature,
		Tools:                 toolSchemas,
		VADMode:               string(agentCfg.VAD.Mode),
		VADThreshold:          agentCfg.VAD.Threshold,
		PrefixPaddingMs:       agentCfg.VAD.PrefixPaddingMs,
		SilenceDurationMs:     agentCfg.VAD.SilenceDurationMs,
		TranscriptionLanguage: agentCfg.Language,
		MaxOutputTokens:       agentCfg.MaxOutputTokens,
	}
	if agentCfg.GreetingEnabled {
		cfg.Greeting = agentCfg.GreetingText
	}
	return cfg
}
