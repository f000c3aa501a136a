package tool

import (
	"context"

	"github.com/agentforge/agentforge/internal/util"
)

// FunctionTool adapts a plain Go function into a Tool. It validates
// arguments against its schema before execution and normalizes failures
// into *ToolError with consistent codes:
//
//	VALIDATION_ERROR -> schema / argument mismatch
//	EXECUTION_ERROR  -> underlying function returned an error
//	(custom codes are preserved when the function returns *ToolError)
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(ctx context.Context, args map[string]any) (any, error)
}

// NewFunctionTool constructs a FunctionTool from an explicit schema and function.
//
// Example:
//
//	sumTool := tool.NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(ctx context.Context, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(ctx context.Context, args map[string]any) (any, error),
) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct via
// reflection, equivalent to util.CreateSchema(structType).
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(ctx context.Context, args map[string]any) (any, error),
) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn)
}

// Name returns the unique tool name.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the tool description shown to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema for the tool's arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call validates args against the schema and invokes the wrapped function.
func (t *FunctionTool) Call(ctx context.Context, args map[string]any) (any, error) {
	if err := util.ValidateParameters(args, t.parameters); err != nil {
		return nil, &ToolError{Tool: t.name, Message: err.Error(), Code: "VALIDATION_ERROR"}
	}
	result, err := t.fn(ctx, args)
	if err != nil {
		if te, ok := err.(*ToolError); ok {
			return nil, te
		}
		return nil, &ToolError{Tool: t.name, Message: err.Error(), Code: "EXECUTION_ERROR"}
	}
	return result, nil
}
