// Package callback provides the "schedule_callback" built-in tool, used
// when the caller asks to be reached again instead of continuing now.
package callback

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/voxbridge/realtime-bridge/internal/tools"
	"github.com/voxbridge/realtime-bridge/pkg/provider/realtime"
)

// Store is the scheduling adapter schedule_callback writes through.
type Store interface {
	ScheduleCallback(ctx context.Context, callID string, phone string, when string) error
}

type callbackArgs struct {
	Phone string `json:"phone"`
	When  string `json:"when"`
}

type callbackResult struct {
	Scheduled bool   `json:"scheduled"`
	When      string `json:"when"`
}

func toolSchema() realtime.ToolDefinition {
	return realtime.ToolDefinition{
		Name:        "schedule_callback",
		Description: "Schedule a callback to the caller's phone number at the requested time.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"phone": map[string]any{"type": "string"},
				"when":  map[string]any{"type": "string", "description": "ISO 8601 date-time"},
			},
			"required": []string{"phone", "when"},
		},
	}
}

// Tools returns the "schedule_callback" Definition bound to store.
func Tools(store Store) []tools.Definition {
	return []tools.Definition{
		{
			Schema: toolSchema(),
			Handler: func(ctx context.Context, argsJSON string) (string, error) {
				var args callbackArgs
				if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
					return "", fmt.Errorf("callback: decode args: %w", err)
				}
				callID := tools.CallIDFromContext(ctx)
				if err := store.ScheduleCallback(ctx, callID, args.Phone, args.When); err != nil {
					return "", fmt.Errorf("callback: %w", err)
				}
				result, err := json.Marshal(callbackResult{Scheduled: true, When: args.When})
				if err != nil {
					return "", err
				}
				return string(result), nil
			},
		},
	}
}
