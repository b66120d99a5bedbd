package realtime

import "errors"

// ErrCancelUnsupported is returned by [Session.RequestCancel] when the
// provider does not support server-side response cancellation (xAI Grok).
// Callers must drop queued output locally instead.
var ErrCancelUnsupported = errors.New("realtime: provider does not support response cancellation")

// ErrSessionClosed is returned by Session methods once Close has been
// called.
var ErrSessionClosed = errors.New("realtime: session is closed")
