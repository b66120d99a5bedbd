package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voxbridge/realtime-bridge/internal/bridge"
)

type fakeAudioStore struct {
	mu     sync.Mutex
	writes [][]byte
	err    error
}

func (f *fakeAudioStore) AppendAudio(_ context.Context, _ string, chunk []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	f.writes = append(f.writes, cp)
	return nil
}

func (f *fakeAudioStore) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func TestRecordingSink_FlushesOnSize(t *testing.T) {
	store := &fakeAudioStore{}
	s := NewRecordingSink(store)
	ctx := context.Background()

	chunk := make([]byte, 1024)
	for i := 0; i < 48; i++ {
		s.Append(ctx, "call1", bridge.DirectionCaller, chunk)
	}

	if got := store.writeCount(); got != 1 {
		t.Fatalf("write count = %d, want 1", got)
	}
}

func TestRecordingSink_FlushesOnAge(t *testing.T) {
	store := &fakeAudioStore{}
	s := NewRecordingSink(store)
	ctx := context.Background()

	s.Append(ctx, "call1", bridge.DirectionAgent, []byte("tiny"))
	b := s.bufferFor("call1")
	b.mu.Lock()
	b.openedAt = time.Now().Add(-2 * time.Second)
	b.mu.Unlock()

	s.Append(ctx, "call1", bridge.DirectionAgent, []byte("more"))

	if got := store.writeCount(); got != 1 {
		t.Fatalf("write count = %d, want 1", got)
	}
}

func TestRecordingSink_Flush_ForcesPending(t *testing.T) {
	store := &fakeAudioStore{}
	s := NewRecordingSink(store)
	ctx := context.Background()

	s.Append(ctx, "call1", bridge.DirectionCaller, []byte("abc"))
	if got := store.writeCount(); got != 0 {
		t.Fatalf("write count = %d, want 0 before Flush", got)
	}

	s.Flush(ctx, "call1")
	if got := store.writeCount(); got != 1 {
		t.Fatalf("write count = %d, want 1 after Flush", got)
	}

	// A second Flush on a forgotten call must be a no-op.
	s.Flush(ctx, "call1")
	if got := store.writeCount(); got != 1 {
		t.Fatalf("write count = %d, want 1 after redundant Flush", got)
	}
}

func TestRecordingSink_WriteFailure_DoesNotPanic(t *testing.T) {
	store := &fakeAudioStore{err: errors.New("redis down")}
	s := NewRecordingSink(store)
	ctx := context.Background()

	chunk := make([]byte, maxBufferedBytes)
	s.Append(ctx, "call1", bridge.DirectionCaller, chunk)
	s.Flush(ctx, "call1")
}

var _ bridge.RecordingSink = (*RecordingSink)(nil)
