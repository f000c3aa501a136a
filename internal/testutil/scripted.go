package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/agentforge/agentforge/core"
	"github.com/agentforge/agentforge/llm"
)

// Response is one canned invocation outcome.
type Response struct {
	Content   string
	ToolCalls []core.ToolCall
	Err       error
}

// Match selects which requests a script rule applies to.
type Match func(req llm.Request) bool

// SystemContains matches requests whose system prompt contains substr.
func SystemContains(substr string) Match {
	return func(req llm.Request) bool {
		for _, m := range req.Messages {
			if m.Role == core.RoleSystem && strings.Contains(m.Content, substr) {
				return true
			}
		}
		return false
	}
}

// UserContains matches requests with a user message containing substr.
func UserContains(substr string) Match {
	return func(req llm.Request) bool {
		for _, m := range req.Messages {
			if m.Role == core.RoleUser && strings.Contains(m.Content, substr) {
				return true
			}
		}
		return false
	}
}

// Always matches every request.
func Always() Match { return func(llm.Request) bool { return true } }

type rule struct {
	match     Match
	responses []Response
	served    int
}

// ScriptedInvoker is an llm.Invoker that replays canned responses. Rules
// are checked in registration order; within a rule responses are consumed
// one per call and the last one repeats once the queue is exhausted.
type ScriptedInvoker struct {
	mu    sync.Mutex
	rules []*rule
	calls []llm.Request
}

// NewScriptedInvoker creates an empty invoker. Requests that match no rule
// return an error, which usually means the test script is incomplete.
func NewScriptedInvoker() *ScriptedInvoker { return &ScriptedInvoker{} }

// On registers a rule.
func (s *ScriptedInvoker) On(match Match, responses ...Response) *ScriptedInvoker {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, &rule{match: match, responses: responses})
	return s
}

// Invoke replays the next response of the first matching rule.
func (s *ScriptedInvoker) Invoke(_ context.Context, req llm.Request) (*llm.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	for _, r := range s.rules {
		if !r.match(req) {
			continue
		}
		idx := r.served
		if idx >= len(r.responses) {
			idx = len(r.responses) - 1
		}
		r.served++
		resp := r.responses[idx]
		if resp.Err != nil {
			return nil, resp.Err
		}
		return &llm.Result{
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
			Provider:  "scripted",
			Model:     "scripted-model",
			TokensIn:  10,
			TokensOut: 20,
		}, nil
	}
	return nil, fmt.Errorf("scripted invoker: no rule matches request (system=%q)", firstSystem(req))
}

// Stream replays the matched response as a single delta.
func (s *ScriptedInvoker) Stream(ctx context.Context, req llm.Request) (<-chan llm.Chunk, <-chan error) {
	out := make(chan llm.Chunk, 2)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		res, err := s.Invoke(ctx, req)
		if err != nil {
			errCh <- err
			return
		}
		out <- llm.Chunk{Delta: res.Content}
		out <- llm.Chunk{Done: true}
	}()
	return out, errCh
}

// Calls returns a snapshot of every request seen so far.
func (s *ScriptedInvoker) Calls() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Request, len(s.calls))
	copy(out, s.calls)
	return out
}

// CountWhere counts recorded requests matching the predicate.
func (s *ScriptedInvoker) CountWhere(match Match) int {
	n := 0
	for _, req := range s.Calls() {
		if match(req) {
			n++
		}
	}
	return n
}

func firstSystem(req llm.Request) string {
	for _, m := range req.Messages {
		if m.Role == core.RoleSystem {
			return m.Content
		}
	}
	return ""
}
