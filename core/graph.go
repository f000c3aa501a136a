package core

import (
	"fmt"
	"sort"
)

// Topology enumerates the supported execution shapes. The set is closed:
// the pattern engine dispatches over these values and rejects anything else.
type Topology string

const (
	// TopologySolo runs a single node.
	TopologySolo Topology = "solo"
	// TopologySequential runs nodes in order, piping digests forward.
	TopologySequential Topology = "sequential"
	// TopologyParallel fans all nodes out concurrently.
	TopologyParallel Topology = "parallel"
	// TopologyLoop alternates a producer and its reviewers until approval.
	TopologyLoop Topology = "loop"
	// TopologyWave executes dependency waves concurrently.
	TopologyWave Topology = "wave"
	// TopologyHierarchical runs manager decomposition, workers, preflight and QA.
	TopologyHierarchical Topology = "hierarchical"
	// TopologyNetwork runs open discussion rounds among all nodes.
	TopologyNetwork Topology = "network"
	// TopologyRouter classifies the task and forwards it to one specialist.
	TopologyRouter Topology = "router"
	// TopologyAggregator gathers parallel proposals and synthesizes them.
	TopologyAggregator Topology = "aggregator"
	// TopologyHuman pauses at checkpoint nodes until externally resumed.
	TopologyHuman Topology = "human"
)

// Topologies lists every supported topology, in a stable order.
func Topologies() []Topology {
	return []Topology{
		TopologySolo, TopologySequential, TopologyParallel, TopologyLoop,
		TopologyWave, TopologyHierarchical, TopologyNetwork, TopologyRouter,
		TopologyAggregator, TopologyHuman,
	}
}

// Valid reports whether t is one of the supported topologies.
func (t Topology) Valid() bool {
	for _, k := range Topologies() {
		if t == k {
			return true
		}
	}
	return false
}

// Node is a unit of work in a task graph: one agent role applied to one task.
type Node struct {
	ID   string    `json:"id"`
	Role AgentRole `json:"role"`

	// Task is the node level instruction. Empty nodes inherit the run's
	// initial task.
	Task string `json:"task,omitempty"`

	// Meta carries topology specific hints, e.g. "kind": "manager" for
	// hierarchical graphs or "checkpoint": "true" for human topologies.
	Meta map[string]string `json:"meta,omitempty"`
}

// Kind returns the node's meta "kind" hint, or "".
func (n Node) Kind() string {
	if n.Meta == nil {
		return ""
	}
	return n.Meta["kind"]
}

// EdgeKind classifies how an edge constrains execution.
type EdgeKind string

const (
	// EdgeSequential orders To strictly after From. The zero value of
	// Edge.Kind means sequential.
	EdgeSequential EdgeKind = "sequential"
	// EdgeParallel marks a fan-out data edge; To still waits for From.
	EdgeParallel EdgeKind = "parallel"
	// EdgeCheckpoint routes output past a human checkpoint. Checkpoint
	// edges carry data but impose no ordering constraint, so they never
	// appear in Dependencies or wave computation.
	EdgeCheckpoint EdgeKind = "checkpoint"
)

// Edge is a directed connection: To consumes From's output. Sequential
// and parallel edges are hard ordering constraints; checkpoint edges are
// not.
type Edge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Kind EdgeKind `json:"kind,omitempty"`
}

// Ordering reports whether the edge constrains execution order.
func (e Edge) Ordering() bool {
	return e.Kind != EdgeCheckpoint
}

// TaskGraph is the declarative description of a run: nodes, dependency
// edges and the topology the pattern engine should execute them under.
type TaskGraph struct {
	ID       string   `json:"id"`
	Topology Topology `json:"topology"`
	Nodes    []Node   `json:"nodes"`
	Edges    []Edge   `json:"edges,omitempty"`
}

// Node returns the node with the given ID.
func (g *TaskGraph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// NodeIDs returns the graph's node IDs in declaration order.
func (g *TaskGraph) NodeIDs() []string {
	ids := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		ids[i] = n.ID
	}
	return ids
}

// Dependencies returns, for every node, the sorted list of node IDs it
// depends on. Only ordering edges count; checkpoint edges route data
// without constraining the schedule.
func (g *TaskGraph) Dependencies() map[string][]string {
	deps := make(map[string][]string, len(g.Nodes))
	for _, n := range g.Nodes {
		deps[n.ID] = nil
	}
	for _, e := range g.Edges {
		if !e.Ordering() {
			continue
		}
		deps[e.To] = append(deps[e.To], e.From)
	}
	for id := range deps {
		sort.Strings(deps[id])
	}
	return deps
}

// Validate checks structural integrity: a known topology, at least one
// node, unique node IDs, non-empty roles and edges that reference nodes.
func (g *TaskGraph) Validate() error {
	if !g.Topology.Valid() {
		return fmt.Errorf("%w: unknown topology %q", ErrInvalidGraph, g.Topology)
	}
	if len(g.Nodes) == 0 {
		return fmt.Errorf("%w: graph has no nodes", ErrInvalidGraph)
	}
	seen := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == "" {
			return fmt.Errorf("%w: node with empty id", ErrInvalidGraph)
		}
		if seen[n.ID] {
			return fmt.Errorf("%w: duplicate node id %q", ErrInvalidGraph, n.ID)
		}
		seen[n.ID] = true
		if n.Role.Name == "" && n.Role.ID == "" {
			return fmt.Errorf("%w: node %q has no role", ErrInvalidGraph, n.ID)
		}
	}
	for _, e := range g.Edges {
		if !seen[e.From] {
			return fmt.Errorf("%w: edge references unknown node %q", ErrInvalidGraph, e.From)
		}
		if !seen[e.To] {
			return fmt.Errorf("%w: edge references unknown node %q", ErrInvalidGraph, e.To)
		}
		if e.From == e.To {
			return fmt.Errorf("%w: self edge on node %q", ErrInvalidGraph, e.From)
		}
		switch e.Kind {
		case "", EdgeSequential, EdgeParallel, EdgeCheckpoint:
		default:
			return fmt.Errorf("%w: unknown edge kind %q", ErrInvalidGraph, e.Kind)
		}
	}
	return nil
}
