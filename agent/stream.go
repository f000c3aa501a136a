package agent

import (
	"context"

	"github.com/agentforge/agentforge/core"
	"github.com/agentforge/agentforge/llm"
)

// Event is one streamed occurrence during a step: a content delta, a tool
// call announcement, or the terminal result.
type Event struct {
	// Delta is a piece of the final answer as it is produced.
	Delta string

	// ToolCall announces a tool execution before it runs.
	ToolCall *core.ToolCall

	// Result is set exactly once, on the final event.
	Result *StepResult
}

// RunStepStream executes a step, streaming the final answer. Tool rounds
// run non-streaming (their outcome is announced as ToolCall events); when
// tool calling is disabled the answer is forwarded delta by delta from the
// provider.
func (e *StepExecutor) RunStepStream(ctx context.Context, step Step) (<-chan Event, <-chan error) {
	out := make(chan Event, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)

		if step.ToolsEnabled && e.opts.Tools != nil {
			// Tool loop first; the synthesized answer arrives whole.
			result, err := e.RunStep(ctx, step)
			if err != nil {
				errCh <- err
				return
			}
			for _, name := range result.UsedTools {
				out <- Event{ToolCall: &core.ToolCall{Name: name}}
			}
			out <- Event{Delta: result.Content}
			out <- Event{Result: result}
			return
		}

		messages, err := e.buildPrompt(ctx, step)
		if err != nil {
			errCh <- err
			return
		}
		req := llm.Request{
			Provider:    step.Role.Provider,
			Model:       step.Role.Model,
			Temperature: step.Role.Temperature,
			MaxTokens:   int64(step.Role.MaxTokens),
			Messages:    messages,
		}
		chunks, errs := e.invoker.Stream(ctx, req)
		var content string
		for ck := range chunks {
			if ck.Delta != "" {
				content += ck.Delta
				out <- Event{Delta: ck.Delta}
			}
		}
		if err := <-errs; err != nil {
			errCh <- err
			return
		}
		result := &StepResult{Content: content}
		if e.opts.Sessions != nil && step.RunID != "" {
			if err := e.opts.Sessions.Append(ctx, step.RunID,
				core.UserMessage(composeTask(step)),
				core.AssistantMessage(content),
			); err != nil {
				e.logger.Warn("transcript append failed", "run_id", step.RunID, "error", err)
			}
		}
		out <- Event{Result: result}
	}()
	return out, errCh
}
