package pattern

import (
	"context"
	"fmt"

	"github.com/agentforge/agentforge/core"
)

// runNetwork holds an open discussion: every node speaks once per round
// and sees a running digest of the conversation so far. Discussion output
// skips the semantic quality layer; opinions are not deliverables.
func (e *Engine) runNetwork(ctx context.Context, state *core.RunState, graph *core.TaskGraph, initialTask string) error {
	rounds := e.opts.NetworkRounds
	if rounds < 1 {
		rounds = 1
	}

	var transcript []string
	for round := 1; round <= rounds; round++ {
		for _, node := range graph.Nodes {
			task := taskFor(node, initialTask)
			if round > 1 {
				task = fmt.Sprintf("Round %d of the discussion. Respond to the other participants.\n\n%s", round, task)
			}
			out, err := e.executeNode(ctx, state, nodeExec{
				node:       node,
				task:       task,
				context:    BuildContext(transcript, e.opts.ContextBudget),
				discussion: true,
			})
			if err != nil {
				return err
			}
			transcript = append(transcript, fmt.Sprintf("[%s] %s", node.Role.Name, out))
		}
	}
	state.FinalOutput = BuildContext(transcript, e.opts.ContextBudget)
	return nil
}
