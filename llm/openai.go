package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/agentforge/agentforge/core"
)

// openAIAdapter speaks the Chat Completions protocol. With a custom
// BaseURL it also covers the OpenAI-compatible endpoints of other vendors,
// modulo the quirks declared on the provider config.
type openAIAdapter struct {
	client *openai.Client
	cfg    ProviderConfig
}

func newOpenAIAdapter(cfg ProviderConfig) *openAIAdapter {
	var reqOpts []option.RequestOption
	if key := cfg.ResolveKey(); key != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(key))
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(reqOpts...)
	return &openAIAdapter{client: &client, cfg: cfg}
}

// Send executes a non-streaming completion.
func (a *openAIAdapter) Send(ctx context.Context, req Request) (*Result, error) {
	params := a.buildParams(req)
	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, a.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("provider %s: no choices returned", a.cfg.Name)
	}
	choice := resp.Choices[0]
	res := &Result{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		TokensIn:     int(resp.Usage.PromptTokens),
		TokensOut:    int(resp.Usage.CompletionTokens),
		FinishReason: string(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		res.ToolCalls = append(res.ToolCalls, core.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return res, nil
}

// Stream executes a streaming completion, forwarding text deltas.
func (a *openAIAdapter) Stream(ctx context.Context, req Request) (<-chan Chunk, <-chan error) {
	out := make(chan Chunk, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		params := a.buildParams(req)
		stream := a.client.Chat.Completions.NewStreaming(ctx, params)
		for stream.Next() {
			ck := stream.Current()
			for _, ch := range ck.Choices {
				if ch.Delta.Content != "" {
					out <- Chunk{Delta: ch.Delta.Content}
				}
				if ch.FinishReason != "" {
					out <- Chunk{Done: true}
				}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- a.wrapError(err)
		}
	}()
	return out, errCh
}

func (a *openAIAdapter) buildParams(req Request) openai.ChatCompletionNewParams {
	messages := req.Messages
	if a.cfg.InlineSystemAfterFirst {
		messages = demoteSystemMessages(messages)
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: buildOpenAIMessages(messages),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = a.cfg.MaxTokens
	}
	if maxTokens > 0 {
		if a.cfg.MaxTokensParam == "max_completion_tokens" {
			params.MaxCompletionTokens = openai.Int(maxTokens)
		} else {
			params.MaxTokens = openai.Int(maxTokens)
		}
	}
	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
		for i, t := range req.Tools {
			tools[i] = openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        t.Name,
					Description: openai.String(t.Description),
					Parameters:  t.Parameters,
				},
			}
		}
		params.Tools = tools
	}
	return params
}

func buildOpenAIMessages(messages []core.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case core.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				toolCalls[i] = openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				}
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: toolCalls,
				},
			})
		case core.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func (a *openAIAdapter) wrapError(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		wrapped := err
		if apierr.StatusCode == http.StatusTooManyRequests {
			wrapped = fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return &ProviderError{Provider: a.cfg.Name, StatusCode: apierr.StatusCode, Err: wrapped}
	}
	return &ProviderError{Provider: a.cfg.Name, Err: err}
}
