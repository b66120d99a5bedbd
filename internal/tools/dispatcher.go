// Package tools holds the bridge's process-wide tool registry and
// dispatcher. It is a direct generalisation of the teacher's
// internal/mcp/bridge.Bridge: a registry mapping tool names to handlers, a
// context.WithTimeout-bounded execution, and the same "handler receives no
// caller context, so derive one with a fixed deadline" shape, tightened from
// the teacher's 30s default to the 5s hard timeout spec.md §4.5/§5 requires.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultTimeout is the hard per-call timeout spec.md §4.5 mandates: a
// handler that does not return within this window is reported to the
// provider as TOOL_TIMEOUT rather than left to run.
const DefaultTimeout = 5 * time.Second

// Handler executes one tool invocation and returns a JSON-serialisable
// result, or an error if the invocation failed. Longer operations must
// return a placeholder result and update the external store asynchronously;
// the dispatcher has no mechanism for a handler to push a later result.
type Handler func(ctx context.Context, argsJSON string) (resultJSON string, err error)

// ErrorKind discriminates the three tool failure modes spec.md §7 names.
type ErrorKind string

const (
	ErrUnknownTool ErrorKind = "TOOL_UNKNOWN"
	ErrTimeout     ErrorKind = "TOOL_TIMEOUT"
	ErrToolFailed  ErrorKind = "TOOL_ERROR"
)

// Result is the outcome the dispatcher hands back to the session driver,
// which forwards ResultJSON to the provider via SendToolResult regardless
// of Err — the agent always gets a result, successful or not, so it can
// speak a fallback.
type Result struct {
	ResultJSON string
	Err        error
	ErrKind    ErrorKind
}

// errorPayload is the JSON shape sent to the provider when a tool call
// fails, so the model has structured data to reason about rather than a
// bare string.
type errorPayload struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// Dispatcher holds the process-wide registry mapping tool names to
// handlers. Initialised once at startup and never reassigned, per spec.md
// §5's "Shared process-wide state" list — Register is expected to be called
// only during wiring, before any call is accepted.
type Dispatcher struct {
	handlers map[string]Handler
	timeout  time.Duration
}

// Option configures a Dispatcher during construction.
type Option func(*Dispatcher)

// WithTimeout overrides DefaultTimeout. Used in tests to keep suites fast.
func WithTimeout(d time.Duration) Option {
	return func(d2 *Dispatcher) { d2.timeout = d }
}

// NewDispatcher creates an empty Dispatcher. Register tool handlers before
// serving any calls.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[string]Handler),
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds or replaces the handler for name.
func (d *Dispatcher) Register(name string, h Handler) {
	d.handlers[name] = h
}

// Dispatch executes the named tool's handler within the dispatcher's hard
// timeout. A name with no registered handler yields ErrUnknownTool without
// running anything or mutating any process-wide state (spec.md §8 scenario
// S6). A handler that exceeds the timeout yields ErrTimeout; its goroutine
// is abandoned (ctx is cancelled, but Go has no handler-preemption
// mechanism) and its eventual result, if any, is discarded.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, argsJSON string) Result {
	handler, ok := d.handlers[name]
	if !ok {
		return errorResult(ErrUnknownTool, fmt.Sprintf("unknown tool %q", name))
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type outcome struct {
		result string
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := handler(callCtx, argsJSON)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return errorResult(ErrToolFailed, o.err.Error())
		}
		return Result{ResultJSON: o.result}
	case <-callCtx.Done():
		return errorResult(ErrTimeout, fmt.Sprintf("tool %q timed out after %s", name, d.timeout))
	}
}

func errorResult(kind ErrorKind, message string) Result {
	payload, _ := json.Marshal(errorPayload{Error: message, Kind: string(kind)})
	return Result{ResultJSON: string(payload), Err: fmt.Errorf("%s: %s", kind, message), ErrKind: kind}
}
