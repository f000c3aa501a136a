package pattern

import (
	"context"

	"github.com/agentforge/agentforge/core"
)

func (e *Engine) runSolo(ctx context.Context, state *core.RunState, graph *core.TaskGraph, initialTask string) error {
	node := graph.Nodes[0]
	out, err := e.executeNode(ctx, state, nodeExec{
		node: node,
		task: taskFor(node, initialTask),
	})
	if err != nil {
		return err
	}
	state.FinalOutput = out
	return nil
}
