package core

// AgentRole describes a reusable agent persona: its system prompt, model
// preferences and the tools it is allowed to call. Roles are attached to
// graph nodes; the same role may appear on several nodes.
type AgentRole struct {
	// ID is a stable identifier for the role (snake_case recommended).
	ID string `json:"id"`

	// Name is the human readable role name ("Backend Developer", "QA Lead").
	// Topology helpers also inspect it to classify managers, workers and
	// reviewers in hierarchical runs.
	Name string `json:"name"`

	// SystemPrompt is prepended to every step the role executes.
	SystemPrompt string `json:"system_prompt"`

	// Provider optionally names the preferred provider for this role.
	// Empty means the invocation layer's default chain order applies.
	Provider string `json:"provider,omitempty"`

	// Model optionally pins a model; empty uses the provider default.
	Model string `json:"model,omitempty"`

	// Temperature for this role's invocations.
	Temperature float64 `json:"temperature,omitempty"`

	// MaxTokens caps the output length of this role's invocations.
	// Zero leaves the provider default in place.
	MaxTokens int `json:"max_tokens,omitempty"`

	// CanDelegate marks roles allowed to decompose work for others,
	// e.g. a hierarchical manager.
	CanDelegate bool `json:"can_delegate,omitempty"`

	// CanVeto lets the role's output markers block a run. Veto markers
	// emitted by roles without it are ignored.
	CanVeto bool `json:"can_veto,omitempty"`

	// CanApprove lets the role sign work off in review loops.
	CanApprove bool `json:"can_approve,omitempty"`

	// AllowedTools restricts which registered tools the role may call.
	// Nil or empty means all registered tools are available when tool
	// calling is enabled for the step.
	AllowedTools []string `json:"allowed_tools,omitempty"`
}
