package sink

import (
	"context"
	"log/slog"
	"time"

	"github.com/voxbridge/realtime-bridge/internal/bridge"
)

// transcriptEvent is the JSON-line record appended to the per-call
// transcript stream.
type transcriptEvent struct {
	Time  time.Time `json:"time"`
	Role  string    `json:"role"`
	Text  string    `json:"text"`
	Final bool      `json:"final"`
}

// transcriptAppender is the subset of [kv.Store] the transcript sink needs.
type transcriptAppender interface {
	AppendTranscriptEvent(ctx context.Context, callID string, event any) error
}

// TranscriptSink logs caller and agent speech-to-text as structured events
// and durably appends each one to the call's transcript stream in the KV
// store. Implements [bridge.TranscriptSink].
type TranscriptSink struct {
	store transcriptAppender
}

// NewTranscriptSink creates a [TranscriptSink] writing through store.
func NewTranscriptSink(store transcriptAppender) *TranscriptSink {
	return &TranscriptSink{store: store}
}

// Record logs and persists one transcript fragment. A KV write failure is
// logged and dropped — transcripts, like recordings, must never fail the
// call.
func (s *TranscriptSink) Record(ctx context.Context, callID string, role string, text string, final bool) {
	slog.Debug("transcript", "call_id", callID, "role", role, "final", final, "text", text)

	ev := transcriptEvent{Time: time.Now(), Role: role, Text: text, Final: final}
	if err := s.store.AppendTranscriptEvent(ctx, callID, ev); err != nil {
		slog.Warn("transcript sink write failed", "call_id", callID, "err", err)
	}
}

var _ bridge.TranscriptSink = (*TranscriptSink)(nil)
