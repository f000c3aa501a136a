package pattern

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentforge/agentforge/core"
)

const reviewerInstruction = "Review the work above against the original task. " +
	"End your review with [APPROVE] if it is acceptable, or [VETO] followed by concrete issues to fix."

// runLoop alternates a producer and its reviewers until every reviewer
// approves or the iteration budget runs out. Veto feedback is folded into
// the producer's next attempt. Running out of iterations is not a hard
// failure; the unresolved veto surfaces as a nogo run.
func (e *Engine) runLoop(ctx context.Context, state *core.RunState, graph *core.TaskGraph, initialTask string) error {
	if len(graph.Nodes) < 2 {
		return fmt.Errorf("%w: loop topology needs a producer and at least one reviewer", core.ErrInvalidGraph)
	}
	producer := graph.Nodes[0]
	reviewers := graph.Nodes[1:]

	feedback := ""
	for iteration := 1; iteration <= e.opts.MaxIterations; iteration++ {
		work, err := e.executeNode(ctx, state, nodeExec{
			node:     producer,
			task:     taskFor(producer, initialTask),
			feedback: feedback,
		})
		if err != nil {
			return err
		}

		var vetoes []string
		approved := 0
		for _, reviewer := range reviewers {
			review, err := e.executeNode(ctx, state, nodeExec{
				node:       reviewer,
				task:       taskFor(reviewer, reviewerInstruction),
				context:    Compress(work, e.opts.ContextBudget),
				discussion: true,
			})
			if err != nil {
				return err
			}
			switch e.opts.Markers.Detect(review) {
			case DecisionVeto:
				if reviewer.Role.CanVeto {
					vetoes = append(vetoes, review)
				}
			case DecisionApprove:
				approved++
			}
		}

		if len(vetoes) == 0 && approved > 0 {
			state.FinalOutput = work
			return nil
		}
		if len(vetoes) == 0 {
			// No explicit marker either way; take silence as consent
			// rather than burning iterations on an undecided reviewer.
			state.FinalOutput = work
			return nil
		}
		feedback = strings.Join(vetoes, "\n\n")
		state.FinalOutput = work
		e.logger.Info("loop iteration vetoed",
			"run_id", state.ID, "iteration", iteration, "vetoes", len(vetoes))
	}
	// Iterations exhausted with standing vetoes; Finish will grade it nogo.
	return nil
}
