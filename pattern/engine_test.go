package pattern

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge/agentforge/agent"
	"github.com/agentforge/agentforge/core"
	"github.com/agentforge/agentforge/guard"
	"github.com/agentforge/agentforge/internal/testutil"
	"github.com/agentforge/agentforge/memory"
)

func roleNode(id, roleID, roleName string) core.Node {
	return core.Node{ID: id, Role: core.AgentRole{
		ID:           roleID,
		Name:         roleName,
		SystemPrompt: "You are the " + roleName + ".",
	}}
}

// reviewerNode is a roleNode holding the sign-off permissions.
func reviewerNode(id, roleID, roleName string) core.Node {
	n := roleNode(id, roleID, roleName)
	n.Role.CanVeto = true
	n.Role.CanApprove = true
	return n
}

func newEngine(invoker *testutil.ScriptedInvoker, optFns ...func(o *Options)) *Engine {
	return New(agent.NewStepExecutor(invoker), optFns...)
}

func TestRunPatternRejectsInvalidGraph(t *testing.T) {
	e := newEngine(testutil.NewScriptedInvoker())
	_, err := e.RunPattern(context.Background(), &core.TaskGraph{Topology: "spiral"}, "task")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidGraph)
}

func TestRunPatternSolo(t *testing.T) {
	invoker := testutil.NewScriptedInvoker().On(testutil.Always(),
		testutil.Response{Content: "the answer"})
	mem := memory.NewInMemoryStore()
	e := newEngine(invoker, WithMemory(mem))

	graph := &core.TaskGraph{
		ID:       "solo",
		Topology: core.TopologySolo,
		Nodes:    []core.Node{roleNode("n1", "analyst", "Analyst")},
	}
	state, err := e.RunPattern(context.Background(), graph, "analyze this")
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusSucceeded, state.CurrentStatus())
	assert.Equal(t, "the answer", state.FinalOutput)

	ns, ok := state.Node("n1")
	require.True(t, ok)
	assert.Equal(t, core.NodeStatusCompleted, ns.Status)
	assert.Equal(t, 1, ns.Attempts)
	assert.Equal(t, 1, mem.Len(), "completed node output is remembered")
}

func TestRunPatternSequentialThreadsDigests(t *testing.T) {
	invoker := testutil.NewScriptedInvoker().
		On(testutil.SystemContains("Architect"), testutil.Response{Content: "Plan: build the API first"}).
		On(testutil.SystemContains("Developer"), testutil.Response{Content: "implemented per plan"})
	e := newEngine(invoker)

	graph := &core.TaskGraph{
		ID:       "seq",
		Topology: core.TopologySequential,
		Nodes: []core.Node{
			roleNode("arch", "architecture", "Architect"),
			roleNode("dev", "dev", "Developer"),
		},
	}
	state, err := e.RunPattern(context.Background(), graph, "ship the feature")
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusSucceeded, state.CurrentStatus())
	assert.Equal(t, "implemented per plan", state.FinalOutput)
	assert.Equal(t, 1,
		invoker.CountWhere(testutil.UserContains("Plan: build the API first")),
		"developer sees the architect's output")
}

func TestRunPatternSequentialFailureStopsDownstream(t *testing.T) {
	invoker := testutil.NewScriptedInvoker().
		On(testutil.SystemContains("Architect"), testutil.Response{Err: context.DeadlineExceeded})
	e := newEngine(invoker)

	graph := &core.TaskGraph{
		ID:       "seq",
		Topology: core.TopologySequential,
		Nodes: []core.Node{
			roleNode("arch", "architecture", "Architect"),
			roleNode("dev", "dev", "Developer"),
		},
	}
	state, err := e.RunPattern(context.Background(), graph, "ship it")
	require.Error(t, err)
	assert.Equal(t, core.RunStatusFailed, state.CurrentStatus())

	arch, _ := state.Node("arch")
	dev, _ := state.Node("dev")
	assert.Equal(t, core.NodeStatusFailed, arch.Status)
	assert.Equal(t, core.NodeStatusPending, dev.Status)
}

func TestRunPatternParallelJoinsWorkerOutput(t *testing.T) {
	invoker := testutil.NewScriptedInvoker().On(testutil.Always(),
		testutil.Response{Content: "worker output"})
	e := newEngine(invoker)

	graph := &core.TaskGraph{
		ID:       "par",
		Topology: core.TopologyParallel,
		Nodes: []core.Node{
			roleNode("w1", "dev", "Developer"),
			roleNode("w2", "dev", "Developer"),
			roleNode("w3", "dev", "Developer"),
		},
	}
	state, err := e.RunPattern(context.Background(), graph, "fan out")
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusSucceeded, state.CurrentStatus())
	assert.Equal(t, 3, strings.Count(state.FinalOutput, "worker output"))
	for _, id := range []string{"w1", "w2", "w3"} {
		ns, _ := state.Node(id)
		assert.Equal(t, core.NodeStatusCompleted, ns.Status, "node %s", id)
	}
}

func TestRunPatternLoopUntilApproval(t *testing.T) {
	invoker := testutil.NewScriptedInvoker().
		On(testutil.SystemContains("Writer"), testutil.Response{Content: "draft of the post"}).
		On(testutil.SystemContains("Reviewer"),
			testutil.Response{Content: "[VETO] needs a stronger intro"},
			testutil.Response{Content: "[VETO] still too weak"},
			testutil.Response{Content: "[APPROVE] good to publish"},
		)
	e := newEngine(invoker)

	graph := &core.TaskGraph{
		ID:       "loop",
		Topology: core.TopologyLoop,
		Nodes: []core.Node{
			roleNode("writer", "writer", "Writer"),
			reviewerNode("reviewer", "qa", "Reviewer"),
		},
	}
	state, err := e.RunPattern(context.Background(), graph, "write the post")
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusSucceeded, state.CurrentStatus())
	assert.Equal(t, "draft of the post", state.FinalOutput)
	assert.Equal(t, 3, invoker.CountWhere(testutil.SystemContains("Writer")))
	assert.Equal(t, 3, invoker.CountWhere(testutil.SystemContains("Reviewer")))
	assert.Equal(t, 1,
		invoker.CountWhere(testutil.UserContains("[VETO] needs a stronger intro")),
		"veto feedback reaches the writer")
}

func TestRunPatternLoopExhaustedEndsNoGo(t *testing.T) {
	invoker := testutil.NewScriptedInvoker().
		On(testutil.SystemContains("Writer"), testutil.Response{Content: "stubborn draft"}).
		On(testutil.SystemContains("Reviewer"), testutil.Response{Content: "[VETO] never good enough"})
	e := newEngine(invoker, func(o *Options) { o.MaxIterations = 2 })

	graph := &core.TaskGraph{
		ID:       "loop",
		Topology: core.TopologyLoop,
		Nodes: []core.Node{
			roleNode("writer", "writer", "Writer"),
			reviewerNode("reviewer", "qa", "Reviewer"),
		},
	}
	state, err := e.RunPattern(context.Background(), graph, "write it")
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusNoGo, state.CurrentStatus())
	assert.Equal(t, 2, invoker.CountWhere(testutil.SystemContains("Writer")))

	reviewer, _ := state.Node("reviewer")
	assert.Equal(t, core.NodeStatusVetoed, reviewer.Status)
}

func TestRunPatternWaveDiamond(t *testing.T) {
	invoker := testutil.NewScriptedInvoker().On(testutil.Always(),
		testutil.Response{Content: "wave node done"})
	e := newEngine(invoker)

	graph := graphWithEdges(core.TopologyWave, []string{"a", "b", "c", "d"}, []core.Edge{
		{From: "a", To: "b"},
		{From: "a", To: "c"},
		{From: "b", To: "d"},
		{From: "c", To: "d"},
	})
	state, err := e.RunPattern(context.Background(), graph, "wave it")
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusSucceeded, state.CurrentStatus())
	for _, id := range []string{"a", "b", "c", "d"} {
		ns, _ := state.Node(id)
		assert.Equal(t, core.NodeStatusCompleted, ns.Status, "node %s", id)
	}
	assert.Len(t, invoker.Calls(), 4)
}

func TestRunPatternNetworkRounds(t *testing.T) {
	invoker := testutil.NewScriptedInvoker().
		On(testutil.SystemContains("Optimist"), testutil.Response{Content: "it will work"}).
		On(testutil.SystemContains("Skeptic"), testutil.Response{Content: "it will not scale"})
	e := newEngine(invoker, func(o *Options) { o.NetworkRounds = 2 })

	graph := &core.TaskGraph{
		ID:       "net",
		Topology: core.TopologyNetwork,
		Nodes: []core.Node{
			roleNode("opt", "optimist", "Optimist"),
			roleNode("skep", "skeptic", "Skeptic"),
		},
	}
	state, err := e.RunPattern(context.Background(), graph, "debate the design")
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusSucceeded, state.CurrentStatus())
	assert.Equal(t, 2, invoker.CountWhere(testutil.SystemContains("Optimist")))
	assert.Equal(t, 2, invoker.CountWhere(testutil.SystemContains("Skeptic")))
	assert.Equal(t, 3,
		invoker.CountWhere(testutil.UserContains("it will work")),
		"every speaker after the first sees the contribution")
}

func TestRunPatternRouterPicksSpecialist(t *testing.T) {
	invoker := testutil.NewScriptedInvoker().
		On(testutil.SystemContains("Router"), testutil.Response{Content: "Database Expert"}).
		On(testutil.SystemContains("Database Expert"), testutil.Response{Content: "added the index"}).
		On(testutil.SystemContains("Frontend"), testutil.Response{Content: "should not run"})
	e := newEngine(invoker)

	graph := &core.TaskGraph{
		ID:       "route",
		Topology: core.TopologyRouter,
		Nodes: []core.Node{
			roleNode("router", "router", "Router"),
			roleNode("fe", "frontend", "Frontend Dev"),
			roleNode("db", "db_expert", "Database Expert"),
		},
	}
	state, err := e.RunPattern(context.Background(), graph, "the users query is slow")
	require.NoError(t, err)
	assert.Equal(t, "added the index", state.FinalOutput)

	db, _ := state.Node("db")
	fe, _ := state.Node("fe")
	assert.Equal(t, core.NodeStatusCompleted, db.Status)
	assert.Equal(t, core.NodeStatusPending, fe.Status, "unrouted specialist stays pending")
	assert.Equal(t, core.RunStatusSucceeded, state.CurrentStatus())
}

func TestRunPatternAggregatorSynthesizesProposals(t *testing.T) {
	invoker := testutil.NewScriptedInvoker().
		On(testutil.SystemContains("Synthesizer"), testutil.Response{Content: "merged proposal"}).
		On(testutil.Always(), testutil.Response{Content: "a proposal"})
	e := newEngine(invoker)

	synth := roleNode("synth", "synth", "Synthesizer")
	synth.Meta = map[string]string{"kind": "synthesizer"}
	graph := &core.TaskGraph{
		ID:       "agg",
		Topology: core.TopologyAggregator,
		Nodes: []core.Node{
			roleNode("p1", "dev", "Proposer One"),
			roleNode("p2", "dev", "Proposer Two"),
			synth,
		},
	}
	state, err := e.RunPattern(context.Background(), graph, "propose a design")
	require.NoError(t, err)
	assert.Equal(t, "merged proposal", state.FinalOutput)
	assert.Equal(t, 1, invoker.CountWhere(testutil.UserContains("[Agent 1]:")),
		"synthesizer sees tagged proposals")
	assert.Equal(t, 1, invoker.CountWhere(testutil.UserContains("---")))
}

func TestRunPatternHumanCheckpointPausesAndResumes(t *testing.T) {
	invoker := testutil.NewScriptedInvoker().
		On(testutil.SystemContains("Drafter"), testutil.Response{Content: "draft for signoff"}).
		On(testutil.SystemContains("Finisher"), testutil.Response{Content: "finished after signoff"})
	e := newEngine(invoker)

	checkpoint := roleNode("cp", "operator", "Operator")
	checkpoint.Meta = map[string]string{"checkpoint": "true"}
	graph := &core.TaskGraph{
		ID:       "human",
		Topology: core.TopologyHuman,
		Nodes: []core.Node{
			roleNode("draft", "writer", "Drafter"),
			checkpoint,
			roleNode("finish", "writer", "Finisher"),
		},
	}

	type outcome struct {
		state *core.RunState
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		state, err := e.RunPattern(context.Background(), graph, "draft the release notes")
		done <- outcome{state, err}
	}()

	var runID string
	deadline := time.After(2 * time.Second)
	for runID == "" {
		select {
		case <-deadline:
			t.Fatal("run never paused")
		default:
		}
		if ids := e.PausedRuns(); len(ids) > 0 {
			runID = ids[0]
		} else {
			time.Sleep(5 * time.Millisecond)
		}
	}

	require.NoError(t, e.Resume(runID, "ship it, signed: the operator"))
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, core.RunStatusSucceeded, res.state.CurrentStatus())
	assert.Equal(t, "finished after signoff", res.state.FinalOutput)

	cp, _ := res.state.Node("cp")
	assert.Equal(t, core.NodeStatusCompleted, cp.Status)
	assert.Equal(t, "ship it, signed: the operator", cp.Output)
	assert.Equal(t, 1,
		invoker.CountWhere(testutil.UserContains("ship it, signed")),
		"operator input flows downstream")
}

func TestRunPatternHumanCancelledWhilePaused(t *testing.T) {
	invoker := testutil.NewScriptedInvoker()
	e := newEngine(invoker)

	checkpoint := roleNode("cp", "operator", "Operator")
	checkpoint.Meta = map[string]string{"checkpoint": "true"}
	graph := &core.TaskGraph{
		ID:       "human",
		Topology: core.TopologyHuman,
		Nodes:    []core.Node{checkpoint},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	var state *core.RunState
	go func() {
		s, err := e.RunPattern(ctx, graph, "wait forever")
		state = s
		done <- err
	}()
	for len(e.PausedRuns()) == 0 {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	err := <-done
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, core.RunStatusFailed, state.CurrentStatus())

	cp, _ := state.Node("cp")
	assert.Equal(t, core.NodeStatusFailed, cp.Status, "no node left running after abort")
}

// scriptedGate replays canned verdicts.
type scriptedGate struct {
	verdicts []*core.GuardVerdict
	inputs   []guard.Input
}

func (g *scriptedGate) Review(_ context.Context, input guard.Input) (*core.GuardVerdict, error) {
	g.inputs = append(g.inputs, input)
	idx := len(g.inputs) - 1
	if idx >= len(g.verdicts) {
		idx = len(g.verdicts) - 1
	}
	return g.verdicts[idx], nil
}

func TestRunPatternGuardRetryThenAccept(t *testing.T) {
	invoker := testutil.NewScriptedInvoker().On(testutil.Always(),
		testutil.Response{Content: "first try"},
		testutil.Response{Content: "second try"},
	)
	gate := &scriptedGate{verdicts: []*core.GuardVerdict{
		{Passed: false, Score: 8, Level: core.GuardReject, Issues: []string{"claims an untested deploy"}},
		{Passed: true, Score: 1, Level: core.GuardPass},
	}}
	e := newEngine(invoker, WithGate(gate))

	graph := &core.TaskGraph{
		ID:       "solo",
		Topology: core.TopologySolo,
		Nodes:    []core.Node{roleNode("n1", "dev", "Developer")},
	}
	state, err := e.RunPattern(context.Background(), graph, "do the work")
	require.NoError(t, err)
	assert.Equal(t, "second try", state.FinalOutput, "retry output accepted cleanly")
	assert.Len(t, invoker.Calls(), 2)
	assert.Empty(t, state.Incidents())
	assert.Equal(t, 1,
		invoker.CountWhere(testutil.UserContains("claims an untested deploy")),
		"rejection issues are fed back")
}

func TestRunPatternGuardForceAcceptAfterRetries(t *testing.T) {
	invoker := testutil.NewScriptedInvoker().On(testutil.Always(),
		testutil.Response{Content: "still bad output"})
	gate := &scriptedGate{verdicts: []*core.GuardVerdict{
		{Passed: false, Score: 9, Level: core.GuardReject, Issues: []string{"fabricated results"}},
	}}
	e := newEngine(invoker, WithGate(gate))

	graph := &core.TaskGraph{
		ID:       "solo",
		Topology: core.TopologySolo,
		Nodes:    []core.Node{roleNode("n1", "dev", "Developer")},
	}
	state, err := e.RunPattern(context.Background(), graph, "do the work")
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusSucceeded, state.CurrentStatus(),
		"force-accept keeps the run moving")
	assert.Contains(t, state.FinalOutput, "[QUALITY WARNING - score 9/10]")
	assert.Contains(t, state.FinalOutput, "still bad output")
	assert.Len(t, invoker.Calls(), 2, "one retry, then force-accept")

	incidents := state.Incidents()
	require.Len(t, incidents, 1)
	assert.Equal(t, "guard_force_accept", incidents[0].Category)
	assert.Contains(t, incidents[0].Detail, "fabricated results")
}

func TestRunPatternVetoFromUnauthorizedRoleIsIgnored(t *testing.T) {
	invoker := testutil.NewScriptedInvoker().On(testutil.Always(),
		testutil.Response{Content: "[VETO] I object to all of this"})
	e := newEngine(invoker)

	graph := &core.TaskGraph{
		ID:       "solo",
		Topology: core.TopologySolo,
		Nodes:    []core.Node{roleNode("n1", "dev", "Developer")},
	}
	state, err := e.RunPattern(context.Background(), graph, "build it")
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusSucceeded, state.CurrentStatus())

	ns, _ := state.Node("n1")
	assert.Equal(t, core.NodeStatusCompleted, ns.Status, "only roles with veto power can block a run")
}

func TestRunPatternSoloVetoEndsNoGo(t *testing.T) {
	invoker := testutil.NewScriptedInvoker().On(testutil.Always(),
		testutil.Response{Content: "DECISION: NOGO the data contract is broken"})
	e := newEngine(invoker)

	graph := &core.TaskGraph{
		ID:       "solo",
		Topology: core.TopologySolo,
		Nodes:    []core.Node{reviewerNode("n1", "qa", "QA Lead")},
	}
	state, err := e.RunPattern(context.Background(), graph, "sign off the release")
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusNoGo, state.CurrentStatus())

	ns, _ := state.Node("n1")
	assert.Equal(t, core.NodeStatusVetoed, ns.Status)
}
