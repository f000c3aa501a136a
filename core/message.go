package core

// MessageRole identifies who authored a chat message.
type MessageRole string

const (
	// RoleSystem marks instructions for the model.
	RoleSystem MessageRole = "system"
	// RoleUser marks task input.
	RoleUser MessageRole = "user"
	// RoleAssistant marks model output.
	RoleAssistant MessageRole = "assistant"
	// RoleTool marks a tool execution result.
	RoleTool MessageRole = "tool"
)

// Message is a single entry in a conversation transcript.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`

	// ToolCalls is set on assistant messages that request tool executions.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool result message back to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Name is the tool name on tool result messages.
	Name string `json:"name,omitempty"`
}

// SystemMessage builds a system message.
func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

// UserMessage builds a user message.
func UserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

// AssistantMessage builds an assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolResultMessage builds a tool result message answering callID.
func ToolResultMessage(callID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID, Name: name}
}

// ToolCall is a structured tool invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON object
}

// ToolDefinition describes a callable tool to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}
