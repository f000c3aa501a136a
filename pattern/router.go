package pattern

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentforge/agentforge/core"
)

// runRouter lets a classifier node pick the specialist best suited for
// the task and forwards the task to that one node. Specialists that were
// not chosen simply stay pending. An unparseable classification falls
// back to the first specialist instead of failing the run.
func (e *Engine) runRouter(ctx context.Context, state *core.RunState, graph *core.TaskGraph, initialTask string) error {
	if len(graph.Nodes) < 2 {
		return fmt.Errorf("%w: router topology needs a classifier and at least one specialist", core.ErrInvalidGraph)
	}
	classifier := graph.Nodes[0]
	specialists := graph.Nodes[1:]

	var names []string
	for _, s := range specialists {
		names = append(names, s.Role.Name)
	}
	classifyTask := fmt.Sprintf("Pick the single best suited specialist for this task and answer with their name only.\nSpecialists: %s\n\nTask:\n%s",
		strings.Join(names, ", "), taskFor(classifier, initialTask))

	choice, err := e.executeNode(ctx, state, nodeExec{
		node:       classifier,
		task:       classifyTask,
		discussion: true,
	})
	if err != nil {
		return err
	}

	chosen := pickSpecialist(specialists, choice)
	e.logger.Info("router selected specialist",
		"run_id", state.ID, "node", chosen.ID, "role", chosen.Role.Name)

	out, err := e.executeNode(ctx, state, nodeExec{
		node:    chosen,
		task:    taskFor(chosen, initialTask),
		context: Compress(choice, e.opts.CompressedSize),
	})
	if err != nil {
		return err
	}
	state.FinalOutput = out
	return nil
}

// pickSpecialist fuzzy-matches the classifier's answer against specialist
// role names and node IDs.
func pickSpecialist(specialists []core.Node, choice string) core.Node {
	c := strings.ToLower(choice)
	for _, s := range specialists {
		if name := strings.ToLower(s.Role.Name); name != "" && strings.Contains(c, name) {
			return s
		}
	}
	for _, s := range specialists {
		if id := strings.ToLower(s.Role.ID); id != "" && strings.Contains(c, id) {
			return s
		}
		if strings.Contains(c, strings.ToLower(s.ID)) {
			return s
		}
	}
	return specialists[0]
}
