package pattern

import (
	"sort"

	"github.com/agentforge/agentforge/core"
)

// ComputeWaves partitions the graph into dependency waves. A node joins a
// wave once every dependency sits in an earlier wave, so independent nodes
// share a wave and run concurrently. Nodes caught in a dependency cycle
// cannot be scheduled cleanly; rather than dropping them they are all
// thrown into one final wave.
func ComputeWaves(graph *core.TaskGraph) [][]string {
	deps := graph.Dependencies()
	done := make(map[string]bool, len(graph.Nodes))
	remaining := len(graph.Nodes)

	var waves [][]string
	for remaining > 0 {
		var wave []string
		for _, id := range graph.NodeIDs() {
			if done[id] {
				continue
			}
			ready := true
			for _, dep := range deps[id] {
				if !done[dep] {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, id)
			}
		}
		if len(wave) == 0 {
			// Cycle: schedule whatever is left together.
			for _, id := range graph.NodeIDs() {
				if !done[id] {
					wave = append(wave, id)
				}
			}
		}
		sort.Strings(wave)
		for _, id := range wave {
			done[id] = true
		}
		remaining -= len(wave)
		waves = append(waves, wave)
	}
	return waves
}

// TopoOrder flattens the dependency waves into a single sequence.
func TopoOrder(graph *core.TaskGraph) []string {
	var order []string
	for _, wave := range ComputeWaves(graph) {
		order = append(order, wave...)
	}
	return order
}
