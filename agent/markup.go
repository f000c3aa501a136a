package agent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/agentforge/agentforge/core"
	"github.com/agentforge/agentforge/internal/util"
)

// Some models emit tool calls as inline markup in the content instead of
// the structured tool_calls field. Two shapes are accepted:
//
//	<tool name="tool_name">{"arg": "value"}</tool>
//	<tool_call>{"name": "tool_name", "arguments": {"arg": "value"}}</tool_call>
var (
	inlineToolRe     = regexp.MustCompile(`(?s)<tool\s+name="([^"]+)"\s*>(.*?)</tool>`)
	inlineToolCallRe = regexp.MustCompile(`(?s)<tool_call>(.*?)</tool_call>`)
)

// ParseInlineToolCalls extracts tool calls embedded in content markup.
// Malformed blocks are skipped; a nil slice means no calls were found.
func ParseInlineToolCalls(content string) []core.ToolCall {
	var calls []core.ToolCall

	for _, m := range inlineToolRe.FindAllStringSubmatch(content, -1) {
		name := m[1]
		args := strings.TrimSpace(m[2])
		if args == "" {
			args = "{}"
		}
		if !json.Valid([]byte(args)) {
			continue
		}
		calls = append(calls, core.ToolCall{ID: util.NewID(), Name: name, Arguments: args})
	}

	for _, m := range inlineToolCallRe.FindAllStringSubmatch(content, -1) {
		var payload struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &payload); err != nil || payload.Name == "" {
			continue
		}
		args := "{}"
		if len(payload.Arguments) > 0 {
			args = string(payload.Arguments)
		}
		calls = append(calls, core.ToolCall{ID: util.NewID(), Name: payload.Name, Arguments: args})
	}

	return calls
}
