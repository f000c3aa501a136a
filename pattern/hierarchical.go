package pattern

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/agentforge/agentforge/core"
	"github.com/agentforge/agentforge/internal/util"
)

var subtaskRe = regexp.MustCompile(`(?m)^\[SUBTASK\s*(\d+)\]\s*`)

const (
	completeMarker   = "[COMPLETE]"
	incompleteMarker = "[INCOMPLETE]"
)

func decomposeInstruction(task string, workers int) string {
	return fmt.Sprintf("Decompose the following task into exactly %d sub-tasks, one per worker. "+
		"Mark each with [SUBTASK N] on its own line.\n\n%s", workers, task)
}

func completenessInstruction() string {
	return "Judge whether the workers' combined output fully covers your plan. " +
		"Answer with [COMPLETE], or [INCOMPLETE] followed by what is missing per worker."
}

func qaInstruction(task string) string {
	return fmt.Sprintf("Validate the delivered work against the original task:\n\n%s\n\n"+
		"End with [APPROVE] if it ships, or [VETO] followed by the blocking problems.", task)
}

// parseSubtasks splits a manager plan on [SUBTASK N] markers. When the
// plan yields fewer sub-tasks than workers, the remaining workers receive
// the whole plan, which keeps a sloppy decomposition from idling anyone.
func parseSubtasks(plan string, workers int) []string {
	matches := subtaskRe.FindAllStringIndex(plan, -1)
	var parts []string
	for i, m := range matches {
		end := len(plan)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		if text := strings.TrimSpace(plan[m[1]:end]); text != "" {
			parts = append(parts, text)
		}
	}
	out := make([]string, workers)
	for i := range out {
		if i < len(parts) {
			out[i] = parts[i]
		} else {
			out[i] = strings.TrimSpace(plan)
		}
	}
	return out
}

// splitHierarchy classifies nodes by their meta kind, falling back to
// position (first node manages) and role naming for QA.
func splitHierarchy(graph *core.TaskGraph) (manager core.Node, workers, qas []core.Node) {
	assigned := false
	for _, n := range graph.Nodes {
		switch {
		case n.Kind() == "manager":
			manager = n
			assigned = true
		case n.Kind() == "qa" || strings.EqualFold(n.Role.ID, "qa"):
			qas = append(qas, n)
		default:
			workers = append(workers, n)
		}
	}
	if !assigned && len(workers) > 0 {
		manager = workers[0]
		workers = workers[1:]
		assigned = true
	}
	if !assigned {
		manager = core.Node{}
	}
	return manager, workers, qas
}

// runHierarchical drives manager decomposition, parallel worker execution
// with bounded completeness re-briefs, a build preflight gate, and QA
// validation with bounded veto loops. A build that never passes within the
// outer budget is a hard run failure; an unresolved QA veto over a passing
// build ends the run nogo instead.
func (e *Engine) runHierarchical(ctx context.Context, state *core.RunState, graph *core.TaskGraph, initialTask string) error {
	manager, workers, qas := splitHierarchy(graph)
	if manager.ID == "" || len(workers) == 0 {
		return fmt.Errorf("%w: hierarchical topology needs a manager and at least one worker", core.ErrInvalidGraph)
	}

	buildPassed := false
	vetoFeedback := ""
	managerContext := ""
	var workerOutputs []string

	for outer := 1; outer <= e.opts.MaxOuter; outer++ {
		plan, err := e.executeNode(ctx, state, nodeExec{
			node:     manager,
			task:     decomposeInstruction(taskFor(manager, initialTask), len(workers)),
			context:  managerContext,
			feedback: vetoFeedback,
		})
		if err != nil {
			return err
		}
		subtasks := parseSubtasks(plan, len(workers))

		rebrief := ""
		for inner := 0; ; inner++ {
			outputs, err := e.runWorkers(ctx, state, workers, subtasks, Compress(plan, e.opts.ContextBudget), rebrief)
			if err != nil {
				return err
			}
			workerOutputs = outputs

			if inner >= e.opts.MaxInner {
				break
			}
			review, err := e.executeNode(ctx, state, nodeExec{
				node:       manager,
				task:       completenessInstruction(),
				context:    BuildContext(outputs, e.opts.ContextBudget),
				discussion: true,
			})
			if err != nil {
				return err
			}
			if !strings.Contains(strings.ToUpper(review), incompleteMarker) {
				break
			}
			rebrief = review
			e.logger.Info("manager re-briefing workers",
				"run_id", state.ID, "outer", outer, "inner", inner+1)
		}

		report, err := e.opts.Preflight.Check(ctx)
		if err != nil {
			return fmt.Errorf("preflight: %w", err)
		}
		if !report.Passed {
			inc := core.Incident{
				ID:        util.NewID(),
				RunID:     state.ID,
				Category:  "preflight_failure",
				Detail:    util.Truncate(report.Output, 1000),
				CreatedAt: time.Now(),
			}
			state.AddIncident(inc)
			if err := e.opts.Usage.RecordIncident(ctx, inc); err != nil {
				e.logger.Warn("incident recording failed", "error", err)
			}
			managerContext = "The build/test preflight failed. Output:\n" + report.Output
			e.logger.Warn("preflight failed", "run_id", state.ID, "outer", outer)
			continue
		}
		buildPassed = true

		vetoFeedback = ""
		for _, qa := range qas {
			review, err := e.executeNode(ctx, state, nodeExec{
				node:    qa,
				task:    qaInstruction(initialTask),
				context: BuildContext(workerOutputs, e.opts.ContextBudget),
			})
			if err != nil {
				return err
			}
			if qa.Role.CanVeto && e.opts.Markers.Detect(review) == DecisionVeto {
				vetoFeedback += review + "\n\n"
			}
		}
		if vetoFeedback == "" {
			state.FinalOutput = strings.Join(workerOutputs, "\n\n---\n\n")
			return nil
		}
		managerContext = ""
		e.logger.Info("qa vetoed delivery", "run_id", state.ID, "outer", outer)
	}

	if !buildPassed {
		return fmt.Errorf("preflight never passed after %d attempts", e.opts.MaxOuter)
	}
	// Build is green but QA never signed off; the run ends nogo.
	state.FinalOutput = strings.Join(workerOutputs, "\n\n---\n\n")
	return nil
}

func (e *Engine) runWorkers(ctx context.Context, state *core.RunState, workers []core.Node, subtasks []string, planDigest, rebrief string) ([]string, error) {
	outputs := make([]string, len(workers))
	errCh := make(chan error, len(workers))
	var wg sync.WaitGroup
	for i, worker := range workers {
		wg.Add(1)
		go func(i int, worker core.Node) {
			defer wg.Done()
			out, err := e.executeNode(ctx, state, nodeExec{
				node:     worker,
				task:     subtasks[i],
				context:  planDigest,
				feedback: rebrief,
			})
			if err != nil {
				errCh <- err
				return
			}
			outputs[i] = out
		}(i, worker)
	}
	wg.Wait()
	close(errCh)
	if err := <-errCh; err != nil {
		return nil, err
	}
	return outputs, nil
}
