package core

import "context"

// ToolRunner executes named tools on behalf of an agent step.
//
// Execute returns the tool's result as text. Failures inside a tool are not
// Go errors: they come back as result text prefixed with "[TOOL ERROR] " so
// the model can read and react to them. Only infrastructure problems
// (unknown tool with no registry, ctx cancellation) surface as errors.
type ToolRunner interface {
	Execute(ctx context.Context, name string, args map[string]any) (string, error)

	// Definitions returns tool schemas for the model. A nil or empty
	// allowed list means every registered tool.
	Definitions(allowed []string) []ToolDefinition
}
