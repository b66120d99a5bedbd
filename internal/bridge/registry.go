// Package bridge drives one telephone call end to end: it owns the ingress
// socket, the provider session, the turn-state machine, the output pacer,
// and the tool dispatcher for the lifetime of a single [Driver].
//
// The provider [Registry] keeps one resilience.CircuitBreaker per configured
// provider and tries the single globally-configured fallback provider when
// the primary's breaker is open, per spec.md §7. Unlike resilience's own
// breaker, which is the only failover primitive this package needs, Registry
// also has to resolve an explicit provider name (an agent override, or a
// reconnect targeting the provider already in use) without necessarily
// consulting the fallback rule at all, so it addresses providers and
// breakers directly by name rather than walking a fixed ordered list.
package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/voxbridge/realtime-bridge/internal/resilience"
	"github.com/voxbridge/realtime-bridge/pkg/provider/realtime"
)

// ErrProviderUnavailable is returned when a provider's circuit breaker is
// open and no fallback is configured (or the fallback's breaker is open
// too). Callers must fail the call fast rather than retry.
var ErrProviderUnavailable = errors.New("bridge: provider unavailable")

// ErrUnknownProvider is returned when an [AgentConfig] names a provider the
// registry was not built with.
var ErrUnknownProvider = errors.New("bridge: unknown provider")

// Registry holds every configured [realtime.Provider], one circuit breaker
// per provider name, and the primary/fallback routing rule spec.md §7
// names. Built once at startup; never mutated afterward (spec.md §5's
// "shared process-wide state" list).
type Registry struct {
	providers map[string]realtime.Provider
	breakers  map[string]*resilience.CircuitBreaker
	primary   string
	fallback  string
}

// NewRegistry creates a [Registry] from the given provider set (keyed by
// "openai", "xai", "gemini", "ultravox"). primary is the provider used when
// an [AgentConfig] leaves Provider blank; fallback is routed to when
// primary's breaker opens. fallback equal to primary is treated as "no
// fallback" to avoid routing a call back to the provider that just tripped.
func NewRegistry(providers map[string]realtime.Provider, primary, fallback string, cbCfg resilience.CircuitBreakerConfig) *Registry {
	if fallback == primary {
		fallback = ""
	}
	breakers := make(map[string]*resilience.CircuitBreaker, len(providers))
	for name := range providers {
		cfg := cbCfg
		cfg.Name = name
		breakers[name] = resilience.NewCircuitBreaker(cfg)
	}
	return &Registry{
		providers: providers,
		breakers:  breakers,
		primary:   primary,
		fallback:  fallback,
	}
}

// Connect opens a session with the named provider, or with the registry's
// configured primary if name is empty. A tripped circuit breaker returns
// [ErrProviderUnavailable] within the breaker's own bookkeeping (no
// WebSocket dial attempted), satisfying testable property 8. When name is
// the primary and its breaker is open, the call is retried once against the
// configured fallback provider before giving up.
//
// Connect returns the provider name actually used alongside the session, so
// callers can remember it for reconnects and cost accounting.
func (r *Registry) Connect(ctx context.Context, name string, cfg realtime.SessionConfig) (realtime.Session, string, error) {
	if name == "" {
		name = r.primary
	}

	provider, ok := r.providers[name]
	if !ok {
		return nil, name, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	breaker := r.breakers[name]

	var session realtime.Session
	err := breaker.Execute(func() error {
		sess, cerr := provider.Connect(ctx, cfg)
		if cerr != nil {
			return cerr
		}
		session = sess
		return nil
	})
	if err == nil {
		return session, name, nil
	}

	if !errors.Is(err, resilience.ErrCircuitOpen) {
		// A genuine handshake failure: do not retry the same call against the
		// same provider (spec.md §7 PROVIDER_HANDSHAKE_FAILED is fatal per call).
		return nil, name, err
	}

	if name == r.primary && r.fallback != "" {
		return r.Connect(ctx, r.fallback, cfg)
	}
	return nil, name, ErrProviderUnavailable
}
