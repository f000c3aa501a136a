package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/agentforge/agentforge/core"
)

// anthropicAdapter speaks the Anthropic Messages API.
type anthropicAdapter struct {
	client *anthropic.Client
	cfg    ProviderConfig
}

func newAnthropicAdapter(cfg ProviderConfig) *anthropicAdapter {
	var reqOpts []option.RequestOption
	if key := cfg.ResolveKey(); key != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(key))
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(reqOpts...)
	return &anthropicAdapter{client: &client, cfg: cfg}
}

// Send executes a non-streaming message.
func (a *anthropicAdapter) Send(ctx context.Context, req Request) (*Result, error) {
	params := a.buildParams(req)
	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, a.wrapError(err)
	}
	res := &Result{
		Model:        string(resp.Model),
		TokensIn:     int(resp.Usage.InputTokens),
		TokensOut:    int(resp.Usage.OutputTokens),
		FinishReason: string(resp.StopReason),
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			res.Content += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()
			args := ""
			if tu.Input != nil {
				if raw, err := json.Marshal(tu.Input); err == nil {
					args = string(raw)
				}
			}
			res.ToolCalls = append(res.ToolCalls, core.ToolCall{
				ID:        tu.ID,
				Name:      tu.Name,
				Arguments: args,
			})
		}
	}
	return res, nil
}

// Stream executes a streaming message, forwarding text deltas.
func (a *anthropicAdapter) Stream(ctx context.Context, req Request) (<-chan Chunk, <-chan error) {
	out := make(chan Chunk, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		params := a.buildParams(req)
		stream := a.client.Messages.NewStreaming(ctx, params)
		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch delta := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if delta.Text != "" {
						out <- Chunk{Delta: delta.Text}
					}
				}
			case anthropic.MessageStopEvent:
				out <- Chunk{Done: true}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- a.wrapError(err)
		}
	}()
	return out, errCh
}

func (a *anthropicAdapter) buildParams(req Request) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = a.cfg.MaxTokens
	}
	if maxTokens == 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  buildAnthropicMessages(req.Messages),
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if system := collectSystemText(req.Messages); len(system) > 0 {
		params.System = system
	}
	if len(req.Tools) > 0 {
		params.Tools = buildAnthropicTools(req.Tools)
	}
	return params
}

func collectSystemText(messages []core.Message) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for _, m := range messages {
		if m.Role == core.RoleSystem && m.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: m.Content})
		}
	}
	return blocks
}

func buildAnthropicMessages(messages []core.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem:
			continue // carried separately in params.System
		case core.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				content = append(content, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input interface{}
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
						input = tc.Arguments
					}
				}
				content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(content) > 0 {
				out = append(out, anthropic.NewAssistantMessage(content...))
			}
		case core.RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))
		default:
			if m.Content != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		}
	}
	return out
}

func buildAnthropicTools(tools []core.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
		if t.Parameters != nil {
			if properties, ok := t.Parameters["properties"]; ok {
				inputSchema.Properties = properties
			}
			switch required := t.Parameters["required"].(type) {
			case []string:
				inputSchema.Required = required
			case []interface{}:
				for _, r := range required {
					if s, ok := r.(string); ok {
						inputSchema.Required = append(inputSchema.Required, s)
					}
				}
			}
		}
		out[i] = anthropic.ToolUnionParamOfTool(inputSchema, t.Name)
	}
	return out
}

func (a *anthropicAdapter) wrapError(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		wrapped := err
		if apierr.StatusCode == http.StatusTooManyRequests {
			wrapped = fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return &ProviderError{Provider: a.cfg.Name, StatusCode: apierr.StatusCode, Err: wrapped}
	}
	return &ProviderError{Provider: a.cfg.Name, Err: err}
}
