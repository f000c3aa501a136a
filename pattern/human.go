package pattern

import (
	"context"

	"github.com/agentforge/agentforge/core"
)

// runHuman executes nodes sequentially, treating nodes tagged
// "checkpoint" as pause points: the run parks with status paused until an
// operator delivers input via Engine.Resume, and that input flows
// downstream exactly like agent output would.
func (e *Engine) runHuman(ctx context.Context, state *core.RunState, graph *core.TaskGraph, initialTask string) error {
	order := graph.NodeIDs()
	if len(graph.Edges) > 0 {
		order = TopoOrder(graph)
	}

	var outputs []string
	for _, id := range order {
		node, _ := graph.Node(id)

		if node.Meta["checkpoint"] == "true" || node.Kind() == "checkpoint" {
			input, err := e.awaitHuman(ctx, state, node)
			if err != nil {
				return err
			}
			outputs = append(outputs, input)
			continue
		}

		out, err := e.executeNode(ctx, state, nodeExec{
			node:    node,
			task:    taskFor(node, initialTask),
			context: BuildContext(outputs, e.opts.ContextBudget),
		})
		if err != nil {
			return err
		}
		outputs = append(outputs, out)
	}
	if len(outputs) > 0 {
		state.FinalOutput = outputs[len(outputs)-1]
	}
	return nil
}

// awaitHuman parks the run at a checkpoint until resumed or cancelled.
// Cancellation marks the checkpoint failed so the run never sticks in
// running state.
func (e *Engine) awaitHuman(ctx context.Context, state *core.RunState, node core.Node) (string, error) {
	state.MarkRunning(node.ID)
	ch := e.park(state.ID)
	defer e.unpark(state.ID)

	state.SetStatus(core.RunStatusPaused)
	e.logger.Info("run paused for human input", "run_id", state.ID, "node", node.ID)

	select {
	case <-ctx.Done():
		state.MarkFailed(node.ID, ctx.Err())
		return "", ctx.Err()
	case input := <-ch:
		state.SetStatus(core.RunStatusRunning)
		state.MarkCompleted(node.ID, input, "human", "")
		e.logger.Info("run resumed", "run_id", state.ID, "node", node.ID)
		return input, nil
	}
}
