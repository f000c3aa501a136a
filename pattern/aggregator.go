package pattern

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/agentforge/agentforge/core"
)

// runAggregator collects independent proposals in parallel and hands them
// to a synthesizer node (the one tagged "synthesizer", or the last node).
func (e *Engine) runAggregator(ctx context.Context, state *core.RunState, graph *core.TaskGraph, initialTask string) error {
	if len(graph.Nodes) < 2 {
		return fmt.Errorf("%w: aggregator topology needs proposers and a synthesizer", core.ErrInvalidGraph)
	}

	synthIdx := len(graph.Nodes) - 1
	for i, n := range graph.Nodes {
		if n.Kind() == "synthesizer" {
			synthIdx = i
			break
		}
	}
	synthesizer := graph.Nodes[synthIdx]
	var proposers []core.Node
	for i, n := range graph.Nodes {
		if i != synthIdx {
			proposers = append(proposers, n)
		}
	}

	proposals := make([]string, len(proposers))
	errCh := make(chan error, len(proposers))
	var wg sync.WaitGroup
	for i, node := range proposers {
		wg.Add(1)
		go func(i int, node core.Node) {
			defer wg.Done()
			out, err := e.executeNode(ctx, state, nodeExec{
				node: node,
				task: taskFor(node, initialTask),
			})
			if err != nil {
				errCh <- err
				return
			}
			proposals[i] = out
		}(i, node)
	}
	wg.Wait()
	close(errCh)
	if err := <-errCh; err != nil {
		return err
	}

	tagged := make([]string, 0, len(proposals))
	for i, p := range proposals {
		tagged = append(tagged, fmt.Sprintf("[Agent %d]:\n%s", i+1, p))
	}

	out, err := e.executeNode(ctx, state, nodeExec{
		node:    synthesizer,
		task:    taskFor(synthesizer, initialTask),
		context: BuildContext([]string{strings.Join(tagged, "\n\n---\n\n")}, e.opts.ContextBudget),
	})
	if err != nil {
		return err
	}
	state.FinalOutput = out
	return nil
}
