// Package surveyanswer provides the "save_answer" built-in tool for
// recording a caller's answer to a survey question posed during the call.
package surveyanswer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/voxbridge/realtime-bridge/internal/tools"
	"github.com/voxbridge/realtime-bridge/pkg/provider/realtime"
)

// Store is the survey-answer adapter save_answer writes through.
type Store interface {
	SaveAnswer(ctx context.Context, callID string, question string, answer string) error
}

type saveAnswerArgs struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type saveAnswerResult struct {
	Saved bool `json:"saved"`
}

func toolSchema() realtime.ToolDefinition {
	return realtime.ToolDefinition{
		Name:        "save_answer",
		Description: "Record the caller's answer to a survey question.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"question": map[string]any{"type": "string"},
				"answer":   map[string]any{"type": "string"},
			},
			"required": []string{"question", "answer"},
		},
	}
}

// Tools returns the "save_answer" Definition bound to store.
func Tools(store Store) []tools.Definition {
	return []tools.Definition{
		{
			Schema: toolSchema(),
			Handler: func(ctx context.Context, argsJSON string) (string, error) {
				var args saveAnswerArgs
				if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
					return "", fmt.Errorf("surveyanswer: decode args: %w", err)
				}
				callID := tools.CallIDFromContext(ctx)
				if err := store.SaveAnswer(ctx, callID, args.Question, args.Answer); err != nil {
					return "", fmt.Errorf("surveyanswer: %w", err)
				}
				result, err := json.Marshal(saveAnswerResult{Saved: true})
				if err != nil {
					return "", err
				}
				return string(result), nil
			},
		},
	}
}
