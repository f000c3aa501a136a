package pattern

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agentforge/agentforge/agent"
	"github.com/agentforge/agentforge/core"
	"github.com/agentforge/agentforge/guard"
	"github.com/agentforge/agentforge/internal/util"
)

// nodeExec carries the per-invocation parameters of one node execution.
type nodeExec struct {
	node       core.Node
	task       string
	context    string
	feedback   string
	discussion bool
}

// executeNode runs one node through the step executor and the quality
// gate. Rejections re-execute the step with the issues folded in as
// feedback; once the retry budget is spent, the output is force-accepted
// with a warning banner and the rejection becomes an incident. The node's
// terminal status also reflects explicit veto markers in its output.
func (e *Engine) executeNode(ctx context.Context, state *core.RunState, run nodeExec) (string, error) {
	state.MarkRunning(run.node.ID)

	feedback := run.feedback
	var result *agent.StepResult
	var verdict *core.GuardVerdict

	for attempt := 0; attempt <= e.opts.GuardRetries; attempt++ {
		res, err := e.runner.RunStep(ctx, agent.Step{
			RunID:        state.ID,
			Role:         run.node.Role,
			Task:         run.task,
			Context:      run.context,
			Feedback:     feedback,
			ToolsEnabled: e.opts.EnableTools && !run.discussion,
		})
		if err != nil {
			state.MarkFailed(run.node.ID, err)
			return "", fmt.Errorf("node %s: %w", run.node.ID, err)
		}
		result = res

		if e.opts.Gate == nil {
			break
		}
		v, err := e.opts.Gate.Review(ctx, guard.Input{
			Role:       run.node.Role.ID,
			Task:       run.task,
			Output:     res.Content,
			UsedTools:  res.UsedTools,
			Provider:   res.Provider,
			Discussion: run.discussion,
		})
		if err != nil {
			state.MarkFailed(run.node.ID, err)
			return "", fmt.Errorf("node %s review: %w", run.node.ID, err)
		}
		verdict = v
		if v.Passed {
			break
		}
		feedback = "A reviewer rejected your previous answer. Issues:\n- " + strings.Join(v.Issues, "\n- ")
		e.logger.Warn("guard rejected node output",
			"run_id", state.ID, "node", run.node.ID, "score", v.Score, "attempt", attempt+1)
	}

	output := result.Content
	switch {
	case verdict != nil && !verdict.Passed:
		// Forward progress beats perfection: accept, flag loudly.
		output = fmt.Sprintf("[QUALITY WARNING - score %d/10] output force-accepted after %d review attempts\n\n%s",
			verdict.Score, e.opts.GuardRetries+1, output)
		inc := core.Incident{
			ID:        util.NewID(),
			RunID:     state.ID,
			NodeID:    run.node.ID,
			Category:  "guard_force_accept",
			Detail:    strings.Join(verdict.Issues, "; "),
			CreatedAt: time.Now(),
		}
		state.AddIncident(inc)
		if err := e.opts.Usage.RecordIncident(ctx, inc); err != nil {
			e.logger.Warn("incident recording failed", "error", err)
		}
	case verdict != nil && verdict.Warning != "":
		output = verdict.Warning + "\n\n" + output
	}

	if run.node.Role.CanVeto && e.opts.Markers.Detect(output) == DecisionVeto {
		state.MarkVetoed(run.node.ID, output)
	} else {
		state.MarkCompleted(run.node.ID, output, result.Provider, result.Model)
	}
	e.storeFact(ctx, run.node, output)
	return output, nil
}

// storeFact persists a digest of the node's output so later steps and
// runs can recall it.
func (e *Engine) storeFact(ctx context.Context, node core.Node, output string) {
	if e.opts.Memory == nil {
		return
	}
	category := node.Role.ID
	if category == "" {
		category = node.ID
	}
	if err := e.opts.Memory.Store(ctx, category, Compress(output, e.opts.CompressedSize)); err != nil {
		e.logger.Warn("memory store failed", "node", node.ID, "error", err)
	}
}
