package bridge

import (
	"context"

	"github.com/voxbridge/realtime-bridge/internal/call"
)

// AudioDirection discriminates caller audio from agent audio in the
// recording sink, which tags each chunk with its direction in a single
// per-call stream (spec.md §4.7).
type AudioDirection string

const (
	DirectionCaller AudioDirection = "caller"
	DirectionAgent  AudioDirection = "agent"
)

// RecordingSink appends one call's audio frames to durable storage,
// keyed by direction. Implementations must be best-effort: a failing
// sink must never fail the call (spec.md §4.7, §7 RECORDING_SINK_ERROR).
type RecordingSink interface {
	Append(ctx context.Context, callID string, direction AudioDirection, chunk []byte)
}

// TranscriptSink records caller and agent speech-to-text as it streams in.
type TranscriptSink interface {
	Record(ctx context.Context, callID string, role string, text string, final bool)
}

// CostSink persists the final [call.Snapshot] for a completed call.
// Implementations retry with back-off internally (spec.md §7
// COST_SINK_ERROR); Record itself must not block the call past its own
// retry budget.
type CostSink interface {
	Record(ctx context.Context, callID string, snapshot call.Snapshot)
}

// Flusher is an optional capability a [RecordingSink] may implement when it
// buffers audio in memory ahead of its 48 KiB / 1 s flush trigger (spec.md
// §4.7). The driver calls Flush at call end so buffered-but-unflushed audio
// is not lost.
type Flusher interface {
	Flush(ctx context.Context, callID string)
}
