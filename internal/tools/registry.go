package tools

import "github.com/voxbridge/realtime-bridge/pkg/provider/realtime"

// Definition pairs a tool's provider-facing schema with the Handler invoked
// when the agent calls it. Each internal/tools/builtin sub-package exports a
// constructor returning a slice of Definition, mirroring the teacher's
// per-package Tools() convention.
type Definition struct {
	// Schema is the tool's provider-facing name/description/parameters,
	// passed to realtime.SessionConfig.Tools at session setup.
	Schema realtime.ToolDefinition

	// Handler executes the tool. Safe for concurrent use; must respect
	// context cancellation.
	Handler Handler
}

// RegisterAll registers every Definition's handler on d under its schema
// name, and returns the schemas for inclusion in a SessionConfig.
func RegisterAll(d *Dispatcher, defs []Definition) []realtime.ToolDefinition {
	schemas := make([]realtime.ToolDefinition, 0, len(defs))
	for _, def := range defs {
		d.Register(def.Schema.Name, def.Handler)
		schemas = append(schemas, def.Schema)
	}
	return schemas
}
