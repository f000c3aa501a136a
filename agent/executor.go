package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/agentforge/agentforge/core"
	"github.com/agentforge/agentforge/internal/util"
	"github.com/agentforge/agentforge/llm"
	"github.com/agentforge/agentforge/logging"
	"github.com/agentforge/agentforge/session"
)

// Step describes one unit of agent work.
type Step struct {
	// RunID threads the step into a run transcript. Empty disables
	// history threading.
	RunID string

	// Role is the agent persona executing the step.
	Role core.AgentRole

	// Task is the instruction for this step.
	Task string

	// Context carries compressed output from upstream nodes.
	Context string

	// Feedback carries reviewer or guard issues to address.
	Feedback string

	// ToolsEnabled turns the tool-calling loop on.
	ToolsEnabled bool
}

// StepResult is the outcome of a step.
type StepResult struct {
	Content   string        `json:"content"`
	UsedTools []string      `json:"used_tools,omitempty"`
	ToolCalls int           `json:"tool_calls"`
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	TokensIn  int           `json:"tokens_in"`
	TokensOut int           `json:"tokens_out"`
	Duration  time.Duration `json:"duration"`
}

// Options configure a StepExecutor.
type Options struct {
	// MaxToolRounds bounds the tool-calling loop.
	MaxToolRounds int

	// ToolResultLimit truncates tool results before they enter the
	// conversation.
	ToolResultLimit int

	// HistoryWindow triggers transcript trimming beyond this many
	// messages; KeepHead and KeepTail select what survives.
	HistoryWindow int
	KeepHead      int
	KeepTail      int

	// MemoryRecallLimit caps recalled facts per step.
	MemoryRecallLimit int

	// RetryWaitMin/Max bound the single jittered retry taken when the
	// provider chain is exhausted.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// Tools executes tool calls. Nil disables tool calling.
	Tools core.ToolRunner

	// Memory recalls facts into the system prompt. Optional.
	Memory core.MemoryStore

	// Sessions threads transcripts across steps of a run. Optional.
	Sessions session.Store

	// Logger receives executor telemetry.
	Logger logging.Logger
}

// WithTools sets the tool runner.
func WithTools(tools core.ToolRunner) func(o *Options) {
	return func(o *Options) { o.Tools = tools }
}

// WithMemory sets the memory store.
func WithMemory(mem core.MemoryStore) func(o *Options) {
	return func(o *Options) { o.Memory = mem }
}

// WithSessions sets the transcript store.
func WithSessions(s session.Store) func(o *Options) {
	return func(o *Options) { o.Sessions = s }
}

// WithLogger sets the executor logger.
func WithLogger(logger logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = logger }
}

// StepExecutor runs steps against the invocation layer.
type StepExecutor struct {
	invoker llm.Invoker
	opts    Options
	logger  logging.Logger
}

// NewStepExecutor builds an executor over the given invoker.
func NewStepExecutor(invoker llm.Invoker, optFns ...func(o *Options)) *StepExecutor {
	opts := Options{
		MaxToolRounds:     8,
		ToolResultLimit:   2000,
		HistoryWindow:     20,
		KeepHead:          2,
		KeepTail:          15,
		MemoryRecallLimit: 5,
		RetryWaitMin:      30 * time.Second,
		RetryWaitMax:      60 * time.Second,
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &StepExecutor{invoker: invoker, opts: opts, logger: opts.Logger}
}

// RunStep executes the step's tool loop and returns the final answer.
func (e *StepExecutor) RunStep(ctx context.Context, step Step) (*StepResult, error) {
	start := time.Now()
	messages, err := e.buildPrompt(ctx, step)
	if err != nil {
		return nil, err
	}

	result := &StepResult{}
	toolsActive := step.ToolsEnabled && e.opts.Tools != nil

	var content string
	for round := 0; round < e.opts.MaxToolRounds; round++ {
		req := llm.Request{
			Provider:    step.Role.Provider,
			Model:       step.Role.Model,
			Temperature: step.Role.Temperature,
			MaxTokens:   int64(step.Role.MaxTokens),
			Messages:    messages,
		}
		lastRound := round == e.opts.MaxToolRounds-1
		if toolsActive && !lastRound {
			req.Tools = e.opts.Tools.Definitions(step.Role.AllowedTools)
		}
		if toolsActive && lastRound {
			messages = append(messages, core.SystemMessage(
				"All tool rounds are used. Synthesize your final answer now without calling more tools."))
			req.Messages = messages
		}

		res, err := e.invokeWithRetry(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("step %s/%s: %w", step.Role.Name, step.RunID, err)
		}
		result.Provider = res.Provider
		result.Model = res.Model
		result.TokensIn += res.TokensIn
		result.TokensOut += res.TokensOut

		calls := res.ToolCalls
		if toolsActive && len(calls) == 0 {
			calls = ParseInlineToolCalls(res.Content)
		}
		if !toolsActive || len(calls) == 0 || lastRound {
			content = res.Content
			break
		}

		messages = append(messages, core.Message{
			Role:      core.RoleAssistant,
			Content:   res.Content,
			ToolCalls: calls,
		})
		for _, call := range calls {
			messages = append(messages, e.executeCall(ctx, step, call))
			result.UsedTools = append(result.UsedTools, call.Name)
			result.ToolCalls++
		}
		messages = e.trim(messages)
		content = res.Content
	}

	if content == "" {
		content = "(max tool rounds reached)"
	}
	result.Content = content
	result.Duration = time.Since(start)

	if e.opts.Sessions != nil && step.RunID != "" {
		if err := e.opts.Sessions.Append(ctx, step.RunID,
			core.UserMessage(composeTask(step)),
			core.AssistantMessage(result.Content),
		); err != nil {
			e.logger.Warn("transcript append failed", "run_id", step.RunID, "error", err)
		}
	}
	return result, nil
}

// invokeWithRetry gives the provider chain one more chance after a full
// exhaustion, waiting a jittered interval for upstream quotas to recover.
func (e *StepExecutor) invokeWithRetry(ctx context.Context, req llm.Request) (*llm.Result, error) {
	res, err := e.invoker.Invoke(ctx, req)
	if err == nil || !errors.Is(err, llm.ErrAllProvidersExhausted) {
		return res, err
	}
	wait := e.opts.RetryWaitMin
	if span := e.opts.RetryWaitMax - e.opts.RetryWaitMin; span > 0 {
		wait += time.Duration(rand.Int63n(int64(span)))
	}
	e.logger.Warn("provider chain exhausted, retrying once", "wait", wait)
	timer := time.NewTimer(wait)
	select {
	case <-ctx.Done():
		timer.Stop()
		return nil, ctx.Err()
	case <-timer.C:
	}
	return e.invoker.Invoke(ctx, req)
}

// executeCall runs one tool call and converts its output into a tool
// result message, truncated to the configured limit.
func (e *StepExecutor) executeCall(ctx context.Context, step Step, call core.ToolCall) core.Message {
	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return core.ToolResultMessage(call.ID, call.Name,
				fmt.Sprintf("[TOOL ERROR] invalid arguments for %s: %v", call.Name, err))
		}
	}
	start := time.Now()
	out, err := e.opts.Tools.Execute(ctx, call.Name, args)
	if err != nil {
		e.logger.Error("tool execution aborted", "tool", call.Name, "error", err)
		out = "[TOOL ERROR] " + err.Error()
	}
	e.logger.Debug("tool call executed", "tool", call.Name, "duration", time.Since(start))
	return core.ToolResultMessage(call.ID, call.Name, util.Truncate(out, e.opts.ToolResultLimit))
}

// trim keeps the conversation inside the history window: the leading
// KeepHead messages (system prompt and opening task) plus the last
// KeepTail, dropping tool results orphaned at the cut.
func (e *StepExecutor) trim(messages []core.Message) []core.Message {
	if len(messages) <= e.opts.HistoryWindow {
		return messages
	}
	head := messages[:e.opts.KeepHead]
	tail := messages[len(messages)-e.opts.KeepTail:]
	for len(tail) > 0 && tail[0].Role == core.RoleTool {
		tail = tail[1:]
	}
	out := make([]core.Message, 0, len(head)+len(tail))
	out = append(out, head...)
	out = append(out, tail...)
	return out
}

// buildPrompt assembles the system prompt (with memory recall), prior
// transcript and the composed task message.
func (e *StepExecutor) buildPrompt(ctx context.Context, step Step) ([]core.Message, error) {
	system := step.Role.SystemPrompt
	if system == "" {
		system = fmt.Sprintf("You are %s.", step.Role.Name)
	}
	system += capabilityNote(step.Role)
	if e.opts.Memory != nil {
		entries, err := e.opts.Memory.Search(ctx, step.Task, e.opts.MemoryRecallLimit)
		if err != nil {
			e.logger.Warn("memory recall failed", "error", err)
		} else if len(entries) > 0 {
			var sb strings.Builder
			sb.WriteString("\n\n## Known facts from earlier work\n")
			for _, entry := range entries {
				fmt.Fprintf(&sb, "- [%s] %s\n", entry.Category, entry.Fact)
			}
			system += sb.String()
		}
	}
	messages := []core.Message{core.SystemMessage(system)}

	if e.opts.Sessions != nil && step.RunID != "" {
		history, err := e.opts.Sessions.History(ctx, step.RunID)
		if err != nil {
			return nil, fmt.Errorf("load transcript: %w", err)
		}
		messages = append(messages, history...)
	}
	messages = append(messages, core.UserMessage(composeTask(step)))
	return messages, nil
}

// capabilityNote spells out the run-control permissions a role holds so
// decision markers come only from roles entitled to emit them.
func capabilityNote(role core.AgentRole) string {
	var lines []string
	if role.CanDelegate {
		lines = append(lines, "- You may decompose the task and delegate subtasks to other agents.")
	}
	if role.CanVeto {
		lines = append(lines, "- You may block delivery with a [VETO] marker when the work is unacceptable.")
	}
	if role.CanApprove {
		lines = append(lines, "- You may sign work off with an [APPROVE] marker.")
	}
	if len(lines) == 0 {
		return ""
	}
	return "\n\n## Permissions\n" + strings.Join(lines, "\n")
}

func composeTask(step Step) string {
	var sb strings.Builder
	if step.Context != "" {
		sb.WriteString("## Context from previous work\n")
		sb.WriteString(step.Context)
		sb.WriteString("\n\n")
	}
	sb.WriteString(step.Task)
	if step.Feedback != "" {
		sb.WriteString("\n\n## Feedback to address\n")
		sb.WriteString(step.Feedback)
	}
	return sb.String()
}
