// Package appointment provides the "confirm_appointment" built-in tool.
package appointment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/voxbridge/realtime-bridge/internal/tools"
	"github.com/voxbridge/realtime-bridge/pkg/provider/realtime"
)

// Store is the scheduling adapter confirm_appointment writes through.
type Store interface {
	ConfirmAppointment(ctx context.Context, callID string, date string) (id int64, err error)
}

type confirmArgs struct {
	Date string `json:"date"`
}

type confirmResult struct {
	OK bool  `json:"ok"`
	ID int64 `json:"id"`
}

func toolSchema() realtime.ToolDefinition {
	return realtime.ToolDefinition{
		Name:        "confirm_appointment",
		Description: "Confirm a booked appointment for the caller on the given date.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"date": map[string]any{"type": "string", "description": "ISO 8601 date"},
			},
			"required": []string{"date"},
		},
	}
}

// Tools returns the "confirm_appointment" Definition bound to store.
func Tools(store Store) []tools.Definition {
	return []tools.Definition{
		{
			Schema: toolSchema(),
			Handler: func(ctx context.Context, argsJSON string) (string, error) {
				var args confirmArgs
				if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
					return "", fmt.Errorf("appointment: decode args: %w", err)
				}
				callID := tools.CallIDFromContext(ctx)
				id, err := store.ConfirmAppointment(ctx, callID, args.Date)
				if err != nil {
					return "", fmt.Errorf("appointment: %w", err)
				}
				result, err := json.Marshal(confirmResult{OK: true, ID: id})
				if err != nil {
					return "", err
				}
				return string(result), nil
			},
		},
	}
}
