package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentforge/agentforge/core"
	"github.com/agentforge/agentforge/llm"
)

const reviewerPrompt = `You are an adversarial code and content reviewer. You are shown a task and the output another agent produced for it. Find real problems: fabricated claims, content that answers a different stack or framework than the task names (category "stack_mismatch"), invented facts (category "fabrication"), stubs, or output that ignores the task.

Respond with ONLY a JSON object, no prose:
{"score": <0-10, 0 is flawless and 10 is unusable>, "issues": [{"category": "<one word>", "description": "<short>"}]}`

type semanticVerdict struct {
	Score      int
	Issues     []string
	Categories []string
}

func (g *Gate) semanticReview(ctx context.Context, input Input) (*semanticVerdict, error) {
	provider := g.opts.SemanticProvider
	if provider == input.Provider {
		// Never let a provider grade its own work.
		provider = ""
	}
	res, err := g.opts.Semantic.Invoke(ctx, llm.Request{
		Provider: provider,
		Model:    g.opts.SemanticModel,
		Messages: []core.Message{
			core.SystemMessage(reviewerPrompt),
			core.UserMessage(fmt.Sprintf("## Task\n%s\n\n## Output under review\n%s", input.Task, input.Output)),
		},
	})
	if err != nil {
		return nil, err
	}
	return parseReviewerJSON(res.Content)
}

func parseReviewerJSON(content string) (*semanticVerdict, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("reviewer returned no JSON object")
	}
	var payload struct {
		Score  int `json:"score"`
		Issues []struct {
			Category    string `json:"category"`
			Description string `json:"description"`
		} `json:"issues"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("parse reviewer verdict: %w", err)
	}
	if payload.Score < 0 {
		payload.Score = 0
	}
	if payload.Score > 10 {
		payload.Score = 10
	}
	v := &semanticVerdict{Score: payload.Score}
	for _, issue := range payload.Issues {
		if issue.Description != "" {
			v.Issues = append(v.Issues, issue.Description)
		}
		if issue.Category != "" {
			v.Categories = append(v.Categories, strings.ToLower(issue.Category))
		}
	}
	return v, nil
}
