// Package lead provides the "capture_lead" built-in tool for recording a
// caller's contact details when they express interest beyond the current
// call's purpose.
package lead

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/voxbridge/realtime-bridge/internal/tools"
	"github.com/voxbridge/realtime-bridge/pkg/provider/realtime"
)

// Store is the CRM adapter capture_lead writes through.
type Store interface {
	CaptureLead(ctx context.Context, callID string, name string, phone string, interest string) (id int64, err error)
}

type captureArgs struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Interest string `json:"interest"`
}

type captureResult struct {
	OK bool  `json:"ok"`
	ID int64 `json:"id"`
}

func toolSchema() realtime.ToolDefinition {
	return realtime.ToolDefinition{
		Name:        "capture_lead",
		Description: "Record a caller's contact details and stated interest as a sales lead.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":     map[string]any{"type": "string"},
				"phone":    map[string]any{"type": "string"},
				"interest": map[string]any{"type": "string"},
			},
			"required": []string{"name", "phone"},
		},
	}
}

// Tools returns the "capture_lead" Definition bound to store.
func Tools(store Store) []tools.Definition {
	return []tools.Definition{
		{
			Schema: toolSchema(),
			Handler: func(ctx context.Context, argsJSON string) (string, error) {
				var args captureArgs
				if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
					return "", fmt.Errorf("lead: decode args: %w", err)
				}
				callID := tools.CallIDFromContext(ctx)
				id, err := store.CaptureLead(ctx, callID, args.Name, args.Phone, args.Interest)
				if err != nil {
					return "", fmt.Errorf("lead: %w", err)
				}
				result, err := json.Marshal(captureResult{OK: true, ID: id})
				if err != nil {
					return "", err
				}
				return string(result), nil
			},
		},
	}
}
