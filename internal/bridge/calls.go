package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// CallRegistry tracks every in-flight [Driver] by call ID so the tool
// dispatcher — a single process-wide instance shared by every call, per
// [Service] — can route end_call and transfer_to_human requests back to
// the specific call that requested them. A [Driver] registers itself in
// run once the leading UUID frame has been read, and a deferred call in
// run deregisters it.
type CallRegistry struct {
	mu    sync.Mutex
	calls map[string]*Driver
}

// NewCallRegistry creates an empty [CallRegistry].
func NewCallRegistry() *CallRegistry {
	return &CallRegistry{calls: make(map[string]*Driver)}
}

func (r *CallRegistry) register(d *Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[d.callID] = d
}

func (r *CallRegistry) unregister(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.calls, callID)
}

func (r *CallRegistry) lookup(callID string) (*Driver, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.calls[callID]
	return d, ok
}

// HangUp ends the named call. It satisfies the end_call built-in tool's
// Store interface (internal/tools/builtin/endcall.Store).
func (r *CallRegistry) HangUp(_ context.Context, callID string, reason string) error {
	d, ok := r.lookup(callID)
	if !ok {
		return fmt.Errorf("bridge: call %s not active", callID)
	}
	slog.Info("end_call requested", "call_id", callID, "reason", reason)
	d.abort()
	return nil
}

// TransferToHuman ends the bridge's involvement in the named call so the
// PBX dialplan can route the SIP leg onward to a live operator queue; the
// actual queue routing is a PBX-side concern outside the AudioSocket
// protocol this package speaks. It satisfies the transfer_to_human
// built-in tool's Store interface (internal/tools/builtin/transfer.Store).
func (r *CallRegistry) TransferToHuman(_ context.Context, callID string, department string) error {
	d, ok := r.lookup(callID)
	if !ok {
		return fmt.Errorf("bridge: call %s not active", callID)
	}
	slog.Info("transfer_to_human requested", "call_id", callID, "department", department)
	d.abort()
	return nil
}
