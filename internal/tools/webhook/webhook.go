// Package webhook implements the bridge's external/HTTP tool class
// (spec.md §4.5): a handler that POSTs a tool call's JSON arguments to a
// user-configured URL and forwards the response body back as the tool
// result. Built-in tools (internal/tools/builtin/*) write to the external
// data store directly through a narrow Store adapter instead; this package
// is the other half of the dispatcher's two handler classes.
//
// No HTTP client library appears anywhere in the reference corpus for
// outbound REST calls — every provider adapter dials its own WebSocket
// through github.com/coder/websocket — so this
// package uses net/http directly rather than introducing a new dependency.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/voxbridge/realtime-bridge/internal/tools"
	"github.com/voxbridge/realtime-bridge/pkg/provider/realtime"
)

// maxResponseBytes bounds how much of a webhook's response body is read
// back as the tool result, protecting the call from a misbehaving
// external endpoint returning an unbounded stream.
const maxResponseBytes = 64 * 1024

// Dispatcher invokes a configured tool's webhook endpoint with the agent's
// JSON arguments and returns the response body as the tool result.
type Dispatcher struct {
	baseURL string
	client  *http.Client
}

// Config configures a [Dispatcher].
type Config struct {
	// BaseURL is prefixed to each tool's relative path to form the request
	// URL, e.g. "https://agents.example.com/tools".
	BaseURL string

	// Timeout bounds a single webhook call. Defaults to [tools.DefaultTimeout]
	// when zero; in practice the dispatcher's own per-tool timeout governs
	// first, so this mainly guards against a hung TCP connection outliving
	// that deadline.
	Timeout time.Duration
}

// New creates a [Dispatcher] from cfg.
func New(cfg Config) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = tools.DefaultTimeout
	}
	return &Dispatcher{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Tool builds a [tools.Definition] for an externally-hosted tool named name,
// whose description and parameter schema are supplied by the caller (they
// come from the agent's configuration, not from code — the bridge never
// interprets the schema, only forwards it) and whose handler POSTs to path
// relative to the dispatcher's base URL.
func (d *Dispatcher) Tool(name, description, path string, params map[string]any) tools.Definition {
	return tools.Definition{
		Schema: realtime.ToolDefinition{
			Name:        name,
			Description: description,
			Parameters:  params,
		},
		Handler: func(ctx context.Context, argsJSON string) (string, error) {
			return d.invoke(ctx, path, argsJSON)
		},
	}
}

func (d *Dispatcher) invoke(ctx context.Context, path string, argsJSON string) (string, error) {
	target, err := d.resolve(path)
	if err != nil {
		return "", fmt.Errorf("webhook: resolve url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader([]byte(argsJSON)))
	if err != nil {
		return "", fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("webhook: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("webhook: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("webhook: %s returned status %d: %s", target, resp.StatusCode, string(body))
	}

	return string(body), nil
}

func (d *Dispatcher) resolve(path string) (string, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path, nil
	}
	if d.baseURL == "" {
		return "", fmt.Errorf("no webhook base URL configured for relative path %q", path)
	}
	u, err := url.Parse(d.baseURL + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
