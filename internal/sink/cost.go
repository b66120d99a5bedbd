package sink

import (
	"context"
	"log/slog"
	"time"

	"github.com/voxbridge/realtime-bridge/internal/bridge"
	"github.com/voxbridge/realtime-bridge/internal/call"
)

// costRetryBackoff is the fixed back-off schedule for cost sink write
// failures (spec.md §5: "100 ms / 500 ms / 2 s").
var costRetryBackoff = []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 2 * time.Second}

// costWriter is the subset of [kv.Store] the cost sink needs.
type costWriter interface {
	SetCost(ctx context.Context, callID string, snapshot any) error
}

// CostSink persists the final cost snapshot for a completed call, retrying
// on failure with the fixed back-off schedule before giving up (spec.md §7
// COST_SINK_ERROR). Record returns immediately; the retry loop runs in its
// own goroutine, detached from the call's (already-cancelled) context, so a
// slow or failing KV store never delays call teardown. Implements
// [bridge.CostSink].
type CostSink struct {
	store costWriter
}

// NewCostSink creates a [CostSink] writing through store.
func NewCostSink(store costWriter) *CostSink {
	return &CostSink{store: store}
}

// Record persists snapshot for callID, retrying up to len(costRetryBackoff)
// additional times on failure before logging and dropping it — the
// dead-letter queue spec.md §4.7 describes, realized as a bounded in-process
// retry rather than a durable external queue (no message broker appears
// anywhere in the reference corpus for this purpose).
func (s *CostSink) Record(ctx context.Context, callID string, snapshot call.Snapshot) {
	go s.writeWithRetry(callID, snapshot)
}

func (s *CostSink) writeWithRetry(callID string, snapshot call.Snapshot) {
	ctx := context.Background()

	err := s.store.SetCost(ctx, callID, snapshot)
	if err == nil {
		return
	}
	slog.Warn("cost sink write failed, retrying", "call_id", callID, "err", err)

	for attempt, delay := range costRetryBackoff {
		time.Sleep(delay)
		if err = s.store.SetCost(ctx, callID, snapshot); err == nil {
			slog.Info("cost sink write succeeded after retry", "call_id", callID, "attempt", attempt+1)
			return
		}
		slog.Warn("cost sink retry failed", "call_id", callID, "attempt", attempt+1, "err", err)
	}

	slog.Error("cost sink write abandoned after exhausting retries", "call_id", callID, "provider", snapshot.Provider)
}

var _ bridge.CostSink = (*CostSink)(nil)
