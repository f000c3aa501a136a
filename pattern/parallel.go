package pattern

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/agentforge/agentforge/core"
)

// runParallel fans worker nodes out concurrently. A node tagged
// "dispatcher" runs first and seeds the workers' context; a node tagged
// "aggregator" runs last over the combined worker output. All branches
// run to completion before errors are evaluated, and the run succeeds as
// long as at least one worker produced output.
func (e *Engine) runParallel(ctx context.Context, state *core.RunState, graph *core.TaskGraph, initialTask string) error {
	var dispatcher, aggregator *core.Node
	var workers []core.Node
	for i := range graph.Nodes {
		n := graph.Nodes[i]
		switch n.Kind() {
		case "dispatcher":
			dispatcher = &graph.Nodes[i]
		case "aggregator":
			aggregator = &graph.Nodes[i]
		default:
			workers = append(workers, n)
		}
	}

	workerContext := ""
	if dispatcher != nil {
		out, err := e.executeNode(ctx, state, nodeExec{
			node: *dispatcher,
			task: taskFor(*dispatcher, initialTask),
		})
		if err != nil {
			return err
		}
		workerContext = Compress(out, e.opts.ContextBudget)
	}

	outputs := make([]string, len(workers))
	errCh := make(chan error, len(workers))
	var wg sync.WaitGroup
	for i, node := range workers {
		wg.Add(1)
		go func(i int, node core.Node) {
			defer wg.Done()
			out, err := e.executeNode(ctx, state, nodeExec{
				node:    node,
				task:    taskFor(node, initialTask),
				context: workerContext,
			})
			if err != nil {
				errCh <- err
				return
			}
			outputs[i] = out
		}(i, node)
	}
	wg.Wait()
	close(errCh)

	var produced []string
	for _, out := range outputs {
		if strings.TrimSpace(out) != "" {
			produced = append(produced, out)
		}
	}
	if len(produced) == 0 {
		if err := <-errCh; err != nil {
			return fmt.Errorf("all parallel branches failed: %w", err)
		}
		return fmt.Errorf("parallel run produced no output")
	}

	if aggregator != nil {
		out, err := e.executeNode(ctx, state, nodeExec{
			node:    *aggregator,
			task:    taskFor(*aggregator, initialTask),
			context: BuildContext(produced, e.opts.ContextBudget),
		})
		if err != nil {
			return err
		}
		state.FinalOutput = out
		return nil
	}
	state.FinalOutput = strings.Join(produced, "\n\n---\n\n")
	return nil
}
