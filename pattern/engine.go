package pattern

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentforge/agentforge/agent"
	"github.com/agentforge/agentforge/core"
	"github.com/agentforge/agentforge/guard"
	"github.com/agentforge/agentforge/internal/util"
	"github.com/agentforge/agentforge/logging"
)

// StepRunner executes one agent step. *agent.StepExecutor satisfies it.
type StepRunner interface {
	RunStep(ctx context.Context, step agent.Step) (*agent.StepResult, error)
}

// Reviewer gates step output. *guard.Gate satisfies it.
type Reviewer interface {
	Review(ctx context.Context, input guard.Input) (*core.GuardVerdict, error)
}

// Options configure an Engine.
type Options struct {
	// ContextBudget bounds the upstream context block passed to a node.
	ContextBudget int

	// CompressedSize bounds digests of individual node outputs.
	CompressedSize int

	// GuardRetries is how many re-executions a rejection buys before the
	// output is force-accepted.
	GuardRetries int

	// MaxIterations bounds loop topology writer/reviewer alternation.
	MaxIterations int

	// MaxOuter and MaxInner bound the hierarchical topology's
	// decomposition and worker re-brief loops.
	MaxOuter int
	MaxInner int

	// NetworkRounds is the number of discussion rounds in network runs.
	NetworkRounds int

	// Markers is the veto/approve vocabulary.
	Markers MarkerPolicy

	// Preflight gates hierarchical runs between workers and QA.
	Preflight Preflight

	// Gate reviews node output. Nil disables quality gating.
	Gate Reviewer

	// Memory persists per-node decision digests. Optional.
	Memory core.MemoryStore

	// Usage receives incidents. Best effort.
	Usage core.UsageRecorder

	// EnableTools turns on tool calling for non-discussion steps.
	EnableTools bool

	// Logger receives engine telemetry.
	Logger logging.Logger
}

// WithGate sets the quality gate.
func WithGate(gate Reviewer) func(o *Options) {
	return func(o *Options) { o.Gate = gate }
}

// WithMemory sets the decision memory store.
func WithMemory(mem core.MemoryStore) func(o *Options) {
	return func(o *Options) { o.Memory = mem }
}

// WithUsage sets the incident recorder.
func WithUsage(rec core.UsageRecorder) func(o *Options) {
	return func(o *Options) { o.Usage = rec }
}

// WithPreflight sets the hierarchical build gate.
func WithPreflight(p Preflight) func(o *Options) {
	return func(o *Options) { o.Preflight = p }
}

// WithLogger sets the engine logger.
func WithLogger(logger logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = logger }
}

// Engine executes task graphs.
type Engine struct {
	runner StepRunner
	opts   Options
	logger logging.Logger

	mu     sync.Mutex
	parked map[string]chan string
}

// New builds an engine over the given step runner.
func New(runner StepRunner, optFns ...func(o *Options)) *Engine {
	opts := Options{
		ContextBudget:  6000,
		CompressedSize: 400,
		GuardRetries:   1,
		MaxIterations:  5,
		MaxOuter:       5,
		MaxInner:       2,
		NetworkRounds:  3,
		Markers:        DefaultMarkerPolicy(),
		Preflight:      NoPreflight{},
		Usage:          core.NopUsageRecorder{},
		EnableTools:    true,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{
		runner: runner,
		opts:   opts,
		logger: opts.Logger,
		parked: make(map[string]chan string),
	}
}

// RunPattern validates the graph, executes it under its topology and
// returns the final run state. The state is returned even on error so the
// caller can inspect which node failed.
func (e *Engine) RunPattern(ctx context.Context, graph *core.TaskGraph, initialTask string) (*core.RunState, error) {
	if err := graph.Validate(); err != nil {
		return nil, err
	}

	state := core.NewRunState(util.NewID(), graph)
	start := time.Now()
	e.logger.Info("pattern run started",
		"run_id", state.ID, "topology", string(graph.Topology), "nodes", len(graph.Nodes))

	var err error
	switch graph.Topology {
	case core.TopologySolo:
		err = e.runSolo(ctx, state, graph, initialTask)
	case core.TopologySequential:
		err = e.runSequential(ctx, state, graph, initialTask)
	case core.TopologyParallel:
		err = e.runParallel(ctx, state, graph, initialTask)
	case core.TopologyLoop:
		err = e.runLoop(ctx, state, graph, initialTask)
	case core.TopologyWave:
		err = e.runWave(ctx, state, graph, initialTask)
	case core.TopologyHierarchical:
		err = e.runHierarchical(ctx, state, graph, initialTask)
	case core.TopologyNetwork:
		err = e.runNetwork(ctx, state, graph, initialTask)
	case core.TopologyRouter:
		err = e.runRouter(ctx, state, graph, initialTask)
	case core.TopologyAggregator:
		err = e.runAggregator(ctx, state, graph, initialTask)
	case core.TopologyHuman:
		err = e.runHuman(ctx, state, graph, initialTask)
	default:
		err = fmt.Errorf("%w: unknown topology %q", core.ErrInvalidGraph, graph.Topology)
	}

	if err != nil {
		state.SetStatus(core.RunStatusFailed)
	}
	state.Finish()

	e.logger.Info("pattern run finished",
		"run_id", state.ID, "topology", string(graph.Topology),
		"status", string(state.CurrentStatus()), "duration", time.Since(start),
		"incidents", len(state.Incidents()))
	return state, err
}

// Resume delivers operator input to a run parked at a human checkpoint.
func (e *Engine) Resume(runID, input string) error {
	e.mu.Lock()
	ch, ok := e.parked[runID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("run %s is not waiting for input", runID)
	}
	select {
	case ch <- input:
		return nil
	default:
		return fmt.Errorf("run %s already received input", runID)
	}
}

// PausedRuns lists run IDs currently parked at a human checkpoint.
func (e *Engine) PausedRuns() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.parked))
	for id := range e.parked {
		ids = append(ids, id)
	}
	return ids
}

// park registers a checkpoint channel for the run. The caller must call
// unpark when it stops listening.
func (e *Engine) park(runID string) chan string {
	ch := make(chan string, 1)
	e.mu.Lock()
	e.parked[runID] = ch
	e.mu.Unlock()
	return ch
}

func (e *Engine) unpark(runID string) {
	e.mu.Lock()
	delete(e.parked, runID)
	e.mu.Unlock()
}

// taskFor resolves a node's instruction: its own task, or the run's.
func taskFor(node core.Node, initialTask string) string {
	if node.Task != "" {
		return node.Task
	}
	return initialTask
}
