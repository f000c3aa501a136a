package core

import (
	"sync"
	"time"
)

// NodeStatus tracks a node through its lifecycle.
type NodeStatus string

const (
	// NodeStatusPending means the node has not started.
	NodeStatusPending NodeStatus = "pending"
	// NodeStatusRunning means the node is executing.
	NodeStatusRunning NodeStatus = "running"
	// NodeStatusCompleted means the node produced accepted output.
	NodeStatusCompleted NodeStatus = "completed"
	// NodeStatusVetoed means a reviewer rejected the node's output.
	NodeStatusVetoed NodeStatus = "vetoed"
	// NodeStatusFailed means the node errored.
	NodeStatusFailed NodeStatus = "failed"
)

// RunStatus tracks the overall run.
type RunStatus string

const (
	// RunStatusRunning marks an in-flight run.
	RunStatusRunning RunStatus = "running"
	// RunStatusPaused marks a run parked at a human checkpoint.
	RunStatusPaused RunStatus = "paused"
	// RunStatusSucceeded marks a run whose nodes all completed without
	// unresolved vetoes.
	RunStatusSucceeded RunStatus = "succeeded"
	// RunStatusNoGo marks a run that finished with unresolved vetoes.
	RunStatusNoGo RunStatus = "nogo"
	// RunStatusFailed marks a hard failure.
	RunStatusFailed RunStatus = "failed"
)

// NodeState is the mutable execution record of one graph node.
type NodeState struct {
	NodeID     string     `json:"node_id"`
	Status     NodeStatus `json:"status"`
	Output     string     `json:"output,omitempty"`
	Attempts   int        `json:"attempts"`
	Error      string     `json:"error,omitempty"`
	Provider   string     `json:"provider,omitempty"`
	Model      string     `json:"model,omitempty"`
	StartedAt  time.Time  `json:"started_at,omitempty"`
	FinishedAt time.Time  `json:"finished_at,omitempty"`
}

// Incident records a quality or infrastructure event worth persisting:
// force-accepted output, preflight failures, provider exhaustion.
type Incident struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	NodeID    string    `json:"node_id,omitempty"`
	Category  string    `json:"category"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// RunState is the live record of a pattern run. Topology executors mutate
// it from multiple goroutines, so all access goes through its methods.
type RunState struct {
	mu sync.RWMutex

	ID          string
	GraphID     string
	Topology    Topology
	Status      RunStatus
	FinalOutput string
	StartedAt   time.Time
	FinishedAt  time.Time

	nodes     map[string]*NodeState
	incidents []Incident
}

// NewRunState initializes a RunState with pending entries for every node.
func NewRunState(id string, graph *TaskGraph) *RunState {
	rs := &RunState{
		ID:        id,
		GraphID:   graph.ID,
		Topology:  graph.Topology,
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
		nodes:     make(map[string]*NodeState, len(graph.Nodes)),
	}
	for _, n := range graph.Nodes {
		rs.nodes[n.ID] = &NodeState{NodeID: n.ID, Status: NodeStatusPending}
	}
	return rs
}

// Node returns a snapshot copy of the node's state.
func (r *RunState) Node(id string) (NodeState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ns, ok := r.nodes[id]
	if !ok {
		return NodeState{}, false
	}
	return *ns, true
}

// Nodes returns a snapshot of all node states keyed by node ID.
func (r *RunState) Nodes() map[string]NodeState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]NodeState, len(r.nodes))
	for id, ns := range r.nodes {
		out[id] = *ns
	}
	return out
}

// MarkRunning flips a node to running and stamps its start time.
func (r *RunState) MarkRunning(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ns, ok := r.nodes[id]; ok {
		ns.Status = NodeStatusRunning
		ns.StartedAt = time.Now()
		ns.Attempts++
	}
}

// MarkCompleted records accepted output for a node.
func (r *RunState) MarkCompleted(id, output, provider, model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ns, ok := r.nodes[id]; ok {
		ns.Status = NodeStatusCompleted
		ns.Output = output
		ns.Provider = provider
		ns.Model = model
		ns.FinishedAt = time.Now()
	}
}

// MarkVetoed records rejected output for a node.
func (r *RunState) MarkVetoed(id, output string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ns, ok := r.nodes[id]; ok {
		ns.Status = NodeStatusVetoed
		ns.Output = output
		ns.FinishedAt = time.Now()
	}
}

// MarkFailed records a node error.
func (r *RunState) MarkFailed(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ns, ok := r.nodes[id]; ok {
		ns.Status = NodeStatusFailed
		if err != nil {
			ns.Error = err.Error()
		}
		ns.FinishedAt = time.Now()
	}
}

// AddIncident appends an incident to the run record.
func (r *RunState) AddIncident(inc Incident) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.incidents = append(r.incidents, inc)
}

// Incidents returns a snapshot of recorded incidents.
func (r *RunState) Incidents() []Incident {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Incident, len(r.incidents))
	copy(out, r.incidents)
	return out
}

// SetStatus sets the run status.
func (r *RunState) SetStatus(s RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = s
}

// CurrentStatus returns the run status under the read lock.
func (r *RunState) CurrentStatus() RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Status
}

// Finish stamps the end time and computes the final status: failed nodes
// fail the run, vetoed nodes end it nogo, otherwise it succeeded.
func (r *RunState) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = time.Now()
	if r.Status != RunStatusRunning {
		return
	}
	status := RunStatusSucceeded
	for _, ns := range r.nodes {
		switch ns.Status {
		case NodeStatusFailed:
			r.Status = RunStatusFailed
			return
		case NodeStatusVetoed:
			status = RunStatusNoGo
		}
	}
	r.Status = status
}
