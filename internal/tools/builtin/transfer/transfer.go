// Package transfer provides the "transfer_to_human" built-in tool, used
// when the agent determines the caller needs a live operator. The handler
// only serialises the request; routing the SIP leg is the Store's job.
package transfer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/voxbridge/realtime-bridge/internal/tools"
	"github.com/voxbridge/realtime-bridge/pkg/provider/realtime"
)

// Store is the human-handoff adapter transfer_to_human writes through.
type Store interface {
	TransferToHuman(ctx context.Context, callID string, department string) error
}

type transferArgs struct {
	Department string `json:"department"`
}

type transferResult struct {
	Transferred bool   `json:"transferred"`
	Department  string `json:"department"`
}

func toolSchema() realtime.ToolDefinition {
	return realtime.ToolDefinition{
		Name:        "transfer_to_human",
		Description: "Transfer the caller to a live operator in the given department.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"department": map[string]any{"type": "string", "description": "target department queue"},
			},
			"required": []string{"department"},
		},
	}
}

// Tools returns the "transfer_to_human" Definition bound to store.
func Tools(store Store) []tools.Definition {
	return []tools.Definition{
		{
			Schema: toolSchema(),
			Handler: func(ctx context.Context, argsJSON string) (string, error) {
				var args transferArgs
				if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
					return "", fmt.Errorf("transfer: decode args: %w", err)
				}
				callID := tools.CallIDFromContext(ctx)
				if err := store.TransferToHuman(ctx, callID, args.Department); err != nil {
					return "", fmt.Errorf("transfer: %w", err)
				}
				result, err := json.Marshal(transferResult{Transferred: true, Department: args.Department})
				if err != nil {
					return "", err
				}
				return string(result), nil
			},
		},
	}
}
