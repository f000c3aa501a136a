package pattern

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentforge/agentforge/core"
)

// runWave executes dependency waves: nodes within a wave run concurrently,
// waves run strictly in sequence, and each wave sees a compressed digest
// of everything earlier waves produced. Sibling failures do not cancel
// each other; the wave's first error is evaluated after the whole group
// has finished.
func (e *Engine) runWave(ctx context.Context, state *core.RunState, graph *core.TaskGraph, initialTask string) error {
	waves := ComputeWaves(graph)

	var outputs []string
	for i, wave := range waves {
		waveContext := BuildContext(outputs, e.opts.ContextBudget)
		waveOutputs := make([]string, len(wave))
		errCh := make(chan error, len(wave))

		var wg sync.WaitGroup
		for j, id := range wave {
			node, _ := graph.Node(id)
			wg.Add(1)
			go func(j int, node core.Node) {
				defer wg.Done()
				out, err := e.executeNode(ctx, state, nodeExec{
					node:    node,
					task:    taskFor(node, initialTask),
					context: waveContext,
				})
				if err != nil {
					errCh <- err
					return
				}
				waveOutputs[j] = out
			}(j, node)
		}
		wg.Wait()
		close(errCh)
		if err := <-errCh; err != nil {
			return fmt.Errorf("wave %d: %w", i+1, err)
		}
		outputs = append(outputs, waveOutputs...)
	}
	if len(outputs) > 0 {
		state.FinalOutput = outputs[len(outputs)-1]
	}
	return nil
}
