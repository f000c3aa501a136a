package llm

import (
	"context"
	"time"

	"github.com/agentforge/agentforge/core"
)

// Request is a normalized chat completion request. Provider optionally
// names the preferred provider; the client still falls back to the rest of
// the chain when it is unavailable.
type Request struct {
	Provider    string                `json:"provider,omitempty"`
	Model       string                `json:"model,omitempty"`
	Messages    []core.Message        `json:"messages"`
	Tools       []core.ToolDefinition `json:"tools,omitempty"`
	Temperature float64               `json:"temperature,omitempty"`
	MaxTokens   int64                 `json:"max_tokens,omitempty"`
}

// Result is a normalized chat completion response.
type Result struct {
	Content      string          `json:"content"`
	ToolCalls    []core.ToolCall `json:"tool_calls,omitempty"`
	Provider     string          `json:"provider"`
	Model        string          `json:"model"`
	TokensIn     int             `json:"tokens_in"`
	TokensOut    int             `json:"tokens_out"`
	FinishReason string          `json:"finish_reason,omitempty"`
	Cached       bool            `json:"cached,omitempty"`
	Duration     time.Duration   `json:"duration,omitempty"`
}

// Chunk is one streamed delta of a response.
type Chunk struct {
	Delta string `json:"delta"`
	Done  bool   `json:"done,omitempty"`
}

// Invoker is the interface the executor and guard depend on. *Client is
// the production implementation; tests substitute scripted fakes.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Result, error)
	Stream(ctx context.Context, req Request) (<-chan Chunk, <-chan error)
}
