// Package sink provides the concrete, KV-store-backed implementations of
// the bridge's recording, transcript, and cost sinks (spec.md §4.7). Each
// type implements the corresponding interface from
// github.com/voxbridge/realtime-bridge/internal/bridge; cmd/bridge wires
// them together at startup. internal/bridge itself does not import this
// package, so the dependency runs one way only.
package sink

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voxbridge/realtime-bridge/internal/bridge"
)

// maxBufferedBytes is the flush trigger on size (spec.md §4.7: ≈48 KiB).
const maxBufferedBytes = 48 * 1024

// maxBufferedAge is the flush trigger on age (spec.md §4.7: ≈1 s).
const maxBufferedAge = 1 * time.Second

// maxConsecutiveLoggedFailures bounds how many consecutive flush failures
// are logged per call before further failures are silently dropped
// (spec.md §4.7, §7 RECORDING_SINK_ERROR): recording is best-effort and
// must never fail the call, but an unbounded failure log would itself
// become a liability under a persistent KV outage.
const maxConsecutiveLoggedFailures = 3

// audioAppender is the subset of [kv.Store] the recording sink needs,
// narrowed for testability.
type audioAppender interface {
	AppendAudio(ctx context.Context, callID string, chunk []byte) error
}

// directionTag prefixes each buffered chunk so the single per-call blob
// stream (spec.md §6: key voiceai:call:{id}:audio) preserves which leg —
// caller or agent — produced it, since the external key is not itself
// split by direction.
type directionTag byte

const (
	tagCaller directionTag = 'C'
	tagAgent  directionTag = 'A'
)

// callBuffer accumulates one call's pending audio bytes between flushes.
type callBuffer struct {
	mu               sync.Mutex
	data             []byte
	openedAt         time.Time
	consecutiveFails int
}

// RecordingSink buffers caller and agent audio per call in memory and
// flushes to the KV store's blob stream on a size or age trigger, whichever
// comes first. Implements [bridge.RecordingSink] and [bridge.Flusher].
type RecordingSink struct {
	store audioAppender

	mu      sync.Mutex
	buffers map[string]*callBuffer
}

// NewRecordingSink creates a [RecordingSink] writing through store.
func NewRecordingSink(store audioAppender) *RecordingSink {
	return &RecordingSink{
		store:   store,
		buffers: make(map[string]*callBuffer),
	}
}

func (s *RecordingSink) bufferFor(callID string) *callBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buffers[callID]
	if !ok {
		b = &callBuffer{openedAt: time.Now()}
		s.buffers[callID] = b
	}
	return b
}

// Append records one audio chunk for callID, tagged by direction, flushing
// the buffer to the KV store once it crosses the size or age trigger.
func (s *RecordingSink) Append(ctx context.Context, callID string, direction bridge.AudioDirection, chunk []byte) {
	tag := tagCaller
	if direction == bridge.DirectionAgent {
		tag = tagAgent
	}

	b := s.bufferFor(callID)
	b.mu.Lock()
	if len(b.data) == 0 {
		b.openedAt = time.Now()
	}
	b.data = append(b.data, byte(tag))
	b.data = append(b.data, chunk...)
	due := len(b.data) >= maxBufferedBytes || time.Since(b.openedAt) >= maxBufferedAge
	var toFlush []byte
	if due {
		toFlush = b.data
		b.data = nil
	}
	b.mu.Unlock()

	if due {
		s.flush(ctx, callID, b, toFlush)
	}
}

func (s *RecordingSink) flush(ctx context.Context, callID string, b *callBuffer, data []byte) {
	if len(data) == 0 {
		return
	}
	if err := s.store.AppendAudio(ctx, callID, data); err != nil {
		b.mu.Lock()
		b.consecutiveFails++
		fails := b.consecutiveFails
		b.mu.Unlock()
		if fails <= maxConsecutiveLoggedFailures {
			slog.Warn("recording sink write failed", "call_id", callID, "err", err, "consecutive_failures", fails)
		}
		return
	}
	b.mu.Lock()
	b.consecutiveFails = 0
	b.mu.Unlock()
}

// Flush forces the pending buffer for callID to the KV store and forgets
// the buffer, releasing its memory. Called by the driver at call end.
func (s *RecordingSink) Flush(ctx context.Context, callID string) {
	s.mu.Lock()
	b, ok := s.buffers[callID]
	delete(s.buffers, callID)
	s.mu.Unlock()
	if !ok {
		return
	}

	b.mu.Lock()
	data := b.data
	b.data = nil
	b.mu.Unlock()

	s.flush(ctx, callID, b, data)
}

var _ bridge.RecordingSink = (*RecordingSink)(nil)
var _ bridge.Flusher = (*RecordingSink)(nil)
