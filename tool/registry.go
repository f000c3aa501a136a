package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/agentforge/agentforge/core"
	"github.com/agentforge/agentforge/logging"
)

// ErrorPrefix marks tool failures that are reported back to the model as
// text rather than surfaced as Go errors.
const ErrorPrefix = "[TOOL ERROR] "

// RegistryOptions configure a Registry.
type RegistryOptions struct {
	// Timeout bounds a single tool execution. Zero means no bound beyond
	// the caller's ctx.
	Timeout time.Duration
	// Logger receives per-call telemetry.
	Logger logging.Logger
}

// Registry holds the available tools and implements core.ToolRunner.
//
// Tool failures come back as result text prefixed with ErrorPrefix so the
// model can read them and correct its call. Only an unknown tool name is
// also reported that way, keeping the executor loop alive.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	opts   RegistryOptions
	logger logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{Timeout: 60 * time.Second, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{tools: map[string]Tool{}, opts: opts, logger: opts.Logger}
}

// Register adds a tool, replacing any previous tool of the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions implements core.ToolRunner. A nil or empty allowed list
// exposes every registered tool.
func (r *Registry) Definitions(allowed []string) []core.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	permit := map[string]bool{}
	for _, name := range allowed {
		permit[name] = true
	}
	var defs []core.ToolDefinition
	for _, name := range r.sortedNamesLocked() {
		if len(permit) > 0 && !permit[name] {
			continue
		}
		t := r.tools[name]
		defs = append(defs, core.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

func (r *Registry) sortedNamesLocked() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute implements core.ToolRunner.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	t, ok := r.Get(name)
	if !ok {
		return fmt.Sprintf("%sunknown tool %q", ErrorPrefix, name), nil
	}
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := t.Call(ctx, args)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		r.logger.Warn("tool call failed", "tool", name, "duration", time.Since(start), "error", err)
		return ErrorPrefix + err.Error(), nil
	}
	r.logger.Debug("tool call completed", "tool", name, "duration", time.Since(start))
	return renderResult(result), nil
}

// renderResult flattens a tool result into the text the model sees.
func renderResult(result any) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}
