package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge/agentforge/core"
)

func graphWithEdges(topology core.Topology, ids []string, edges []core.Edge) *core.TaskGraph {
	g := &core.TaskGraph{ID: "g", Topology: topology, Edges: edges}
	for _, id := range ids {
		g.Nodes = append(g.Nodes, core.Node{ID: id, Role: core.AgentRole{ID: id, Name: id}})
	}
	return g
}

func TestComputeWavesDiamond(t *testing.T) {
	g := graphWithEdges(core.TopologyWave, []string{"a", "b", "c", "d"}, []core.Edge{
		{From: "a", To: "b"},
		{From: "a", To: "c"},
		{From: "b", To: "d"},
		{From: "c", To: "d"},
	})
	waves := ComputeWaves(g)
	require.Len(t, waves, 3)
	assert.Equal(t, []string{"a"}, waves[0])
	assert.Equal(t, []string{"b", "c"}, waves[1])
	assert.Equal(t, []string{"d"}, waves[2])
}

func TestComputeWavesSkipCheckpointEdges(t *testing.T) {
	g := graphWithEdges(core.TopologyWave, []string{"a", "b", "c"}, []core.Edge{
		{From: "a", To: "b"},
		{From: "a", To: "c", Kind: core.EdgeCheckpoint},
	})
	waves := ComputeWaves(g)
	require.Len(t, waves, 2)
	assert.Equal(t, []string{"a", "c"}, waves[0], "a checkpoint edge does not delay its target")
	assert.Equal(t, []string{"b"}, waves[1])
}

func TestComputeWavesNoEdgesIsOneWave(t *testing.T) {
	g := graphWithEdges(core.TopologyWave, []string{"x", "y", "z"}, nil)
	waves := ComputeWaves(g)
	require.Len(t, waves, 1)
	assert.Equal(t, []string{"x", "y", "z"}, waves[0])
}

func TestComputeWavesCycleLandsInFinalWave(t *testing.T) {
	g := graphWithEdges(core.TopologyWave, []string{"a", "b", "c"}, []core.Edge{
		{From: "a", To: "b"},
		{From: "b", To: "c"},
		{From: "c", To: "b"},
	})
	waves := ComputeWaves(g)
	require.Len(t, waves, 2)
	assert.Equal(t, []string{"a"}, waves[0])
	assert.Equal(t, []string{"b", "c"}, waves[1])
}

func TestComputeWavesEveryNodeScheduledOnce(t *testing.T) {
	g := graphWithEdges(core.TopologyWave, []string{"a", "b", "c", "d", "e"}, []core.Edge{
		{From: "a", To: "c"},
		{From: "b", To: "c"},
		{From: "c", To: "d"},
	})
	seen := map[string]int{}
	for _, wave := range ComputeWaves(g) {
		for _, id := range wave {
			seen[id]++
		}
	}
	assert.Len(t, seen, 5)
	for id, n := range seen {
		assert.Equal(t, 1, n, "node %s scheduled %d times", id, n)
	}
}

func TestTopoOrderRespectsDependencies(t *testing.T) {
	g := graphWithEdges(core.TopologyWave, []string{"build", "test", "deploy"}, []core.Edge{
		{From: "build", To: "test"},
		{From: "test", To: "deploy"},
	})
	assert.Equal(t, []string{"build", "test", "deploy"}, TopoOrder(g))
}
