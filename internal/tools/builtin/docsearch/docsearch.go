// Package docsearch provides the "search_documents" built-in tool, letting
// the agent ground its answers in a caller-facing knowledge base.
package docsearch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/voxbridge/realtime-bridge/internal/tools"
	"github.com/voxbridge/realtime-bridge/pkg/provider/realtime"
)

// Result is one matched document snippet.
type Result struct {
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// Store is the document-search adapter search_documents queries.
type Store interface {
	SearchDocuments(ctx context.Context, query string, limit int) ([]Result, error)
}

const defaultLimit = 3

type searchArgs struct {
	Query string `json:"query"`
}

type searchResult struct {
	Results []Result `json:"results"`
}

func toolSchema() realtime.ToolDefinition {
	return realtime.ToolDefinition{
		Name:        "search_documents",
		Description: "Search the knowledge base for documents relevant to the caller's question.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
			},
			"required": []string{"query"},
		},
	}
}

// Tools returns the "search_documents" Definition bound to store.
func Tools(store Store) []tools.Definition {
	return []tools.Definition{
		{
			Schema: toolSchema(),
			Handler: func(ctx context.Context, argsJSON string) (string, error) {
				var args searchArgs
				if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
					return "", fmt.Errorf("docsearch: decode args: %w", err)
				}
				results, err := store.SearchDocuments(ctx, args.Query, defaultLimit)
				if err != nil {
					return "", fmt.Errorf("docsearch: %w", err)
				}
				result, err := json.Marshal(searchResult{Results: results})
				if err != nil {
					return "", err
				}
				return string(result), nil
			},
		},
	}
}
