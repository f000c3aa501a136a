package pattern

import (
	"context"

	"github.com/agentforge/agentforge/core"
)

// runSequential executes nodes one after another, each receiving a
// compressed digest of everything produced before it. A node failure
// fails the run; downstream nodes stay pending.
func (e *Engine) runSequential(ctx context.Context, state *core.RunState, graph *core.TaskGraph, initialTask string) error {
	order := graph.NodeIDs()
	if len(graph.Edges) > 0 {
		order = TopoOrder(graph)
	}

	var outputs []string
	for _, id := range order {
		node, _ := graph.Node(id)
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
