// Package endcall provides the "end_call" built-in tool: the agent's own
// means of terminating the conversation once the caller's goal is met. The
// handler only serialises the request; hanging up the ingress socket is the
// Store's job (an adapter over internal/bridge's per-call cancellation).
package endcall

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/voxbridge/realtime-bridge/internal/tools"
	"github.com/voxbridge/realtime-bridge/pkg/provider/realtime"
)

func toolSchema() realtime.ToolDefinition {
	return realtime.ToolDefinition{
		Name:        "end_call",
		Description: "End the current call. Use once the caller's request has been fully handled.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"reason": map[string]any{"type": "string", "description": "why the call is ending"},
			},
			"required": []string{"reason"},
		},
	}
}

// Store is the call-termination adapter end_call writes through.
type Store interface {
	HangUp(ctx context.Context, callID string, reason string) error
}

type endCallArgs struct {
	Reason string `json:"reason"`
}

type endCallResult struct {
	Ended bool `json:"ended"`
}

// Tools returns the "end_call" Definition bound to store.
func Tools(store Store) []tools.Definition {
	return []tools.Definition{
		{
			Schema: toolSchema(),
			Handler: func(ctx context.Context, argsJSON string) (string, error) {
				var args endCallArgs
				if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
					return "", fmt.Errorf("endcall: decode args: %w", err)
				}
				callID := tools.CallIDFromContext(ctx)
				if err := store.HangUp(ctx, callID, args.Reason); err != nil {
					return "", fmt.Errorf("endcall: hang up: %w", err)
				}
				result, err := json.Marshal(endCallResult{Ended: true})
				if err != nil {
					return "", err
				}
				return string(result), nil
			},
		},
	}
}
