// Package agentforge wires the full orchestration stack together: the
// resilient LLM invocation layer, the agent step executor, the adversarial
// quality gate and the pattern engine, configured from a single Config.
//
// Typical use:
//
//	cfg, err := config.Load("agentforge.yaml")
//	forge, err := agentforge.New(cfg)
//	defer forge.Close()
//	state, err := forge.RunPattern(ctx, graph, "ship the feature")
package agentforge

import (
	"context"
	"fmt"

	"github.com/agentforge/agentforge/agent"
	"github.com/agentforge/agentforge/artifact"
	"github.com/agentforge/agentforge/config"
	"github.com/agentforge/agentforge/core"
	"github.com/agentforge/agentforge/guard"
	"github.com/agentforge/agentforge/llm"
	"github.com/agentforge/agentforge/logging"
	"github.com/agentforge/agentforge/memory"
	"github.com/agentforge/agentforge/pattern"
	"github.com/agentforge/agentforge/session"
	"github.com/agentforge/agentforge/store"
	"github.com/agentforge/agentforge/tool"
)

// Options allow swapping pieces of the default wiring.
type Options struct {
	// Logger replaces the logger built from the config.
	Logger logging.Logger

	// Memory replaces the in-memory fact store.
	Memory core.MemoryStore

	// Sessions replaces the in-memory transcript store.
	Sessions session.Store

	// Tools seeds the registry. More can be added via RegisterTool.
	Tools []tool.Tool

	// Artifacts replaces the in-memory deliverable store.
	Artifacts artifact.Store

	// Preflight gates hierarchical runs. Defaults to the exec preflight
	// over cfg.Pattern.PreflightDir when that is set, otherwise none.
	Preflight pattern.Preflight
}

// WithLogger overrides the configured logger.
func WithLogger(logger logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = logger }
}

// WithMemory overrides the fact store.
func WithMemory(mem core.MemoryStore) func(o *Options) {
	return func(o *Options) { o.Memory = mem }
}

// WithSessions overrides the transcript store.
func WithSessions(s session.Store) func(o *Options) {
	return func(o *Options) { o.Sessions = s }
}

// WithTools seeds the tool registry.
func WithTools(tools ...tool.Tool) func(o *Options) {
	return func(o *Options) { o.Tools = append(o.Tools, tools...) }
}

// WithPreflight sets the hierarchical build gate.
func WithPreflight(p pattern.Preflight) func(o *Options) {
	return func(o *Options) { o.Preflight = p }
}

// WithArtifacts overrides the deliverable store.
func WithArtifacts(s artifact.Store) func(o *Options) {
	return func(o *Options) { o.Artifacts = s }
}

// Forge is the assembled orchestration stack.
type Forge struct {
	cfg       *config.Config
	logger    logging.Logger
	client    *llm.Client
	registry  *tool.Registry
	executor  *agent.StepExecutor
	engine    *pattern.Engine
	store     *store.Store
	artifacts artifact.Store
}

// New assembles a Forge from the configuration. The config must name at
// least one provider.
func New(cfg *config.Config, optFns ...func(o *Options)) (*Forge, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("agentforge: no providers configured")
	}
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewSlogLogger(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format, false)
	}

	var (
		db    *store.Store
		cache llm.Cache
		usage core.UsageRecorder = core.NopUsageRecorder{}
	)
	if cfg.Store.Enabled {
		s, err := store.Open(cfg.Store.Path, func(o *store.Options) {
			o.CacheTTL = cfg.Client.CacheTTL
			o.CacheMaxEntries = cfg.Client.CacheMaxEntries
			o.Logger = logger
		})
		if err != nil {
			return nil, fmt.Errorf("agentforge: open store: %w", err)
		}
		db = s
		cache = s
		usage = s
	} else {
		cache = llm.NewMemoryCache(func(o *llm.MemoryCacheOptions) {
			o.TTL = cfg.Client.CacheTTL
			o.MaxEntries = cfg.Client.CacheMaxEntries
		})
	}

	client, err := llm.NewClient(cfg.Providers,
		llm.WithLogger(logger),
		llm.WithCache(cache),
		llm.WithUsageRecorder(usage),
		func(o *llm.Options) {
			o.MaxAttempts = cfg.Client.MaxAttempts
			o.Cooldown = cfg.Client.Cooldown
			o.LimiterWindow = cfg.Client.LimiterWindow
			o.LimiterMaxWait = cfg.Client.LimiterMaxWait
			o.BreakerFailThreshold = cfg.Client.BreakerFailThreshold
			o.BreakerWindow = cfg.Client.BreakerWindow
			o.BreakerOpenFor = cfg.Client.BreakerOpenFor
		})
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("agentforge: build llm client: %w", err)
	}

	registry := tool.NewRegistry(func(o *tool.RegistryOptions) {
		o.Logger = logger
	})
	for _, t := range opts.Tools {
		registry.Register(t)
	}

	mem := opts.Memory
	if mem == nil {
		mem = memory.NewInMemoryStore()
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = session.NewInMemoryStore()
	}
	artifacts := opts.Artifacts
	if artifacts == nil {
		artifacts = artifact.NewInMemoryStore()
	}

	executor := agent.NewStepExecutor(client,
		agent.WithTools(registry),
		agent.WithMemory(mem),
		agent.WithSessions(sessions),
		agent.WithLogger(logger),
		func(o *agent.Options) {
			o.MaxToolRounds = cfg.Executor.MaxToolRounds
			o.ToolResultLimit = cfg.Executor.ToolResultLimit
			o.HistoryWindow = cfg.Executor.HistoryWindow
			o.RetryWaitMin = cfg.Executor.RetryWaitMin
			o.RetryWaitMax = cfg.Executor.RetryWaitMax
		})

	var gate pattern.Reviewer
	if cfg.Guard.Enabled {
		gateOpts := []func(o *guard.Options){
			guard.WithLogger(logger),
			func(o *guard.Options) {
				o.RejectAt = cfg.Guard.RejectAt
				o.SoftPassMax = cfg.Guard.SoftPassMax
				for role, n := range cfg.Guard.MinLength {
					o.MinLength[role] = n
				}
			},
		}
		if cfg.Guard.SemanticProvider != "" {
			gateOpts = append(gateOpts,
				guard.WithSemantic(client, cfg.Guard.SemanticProvider, cfg.Guard.SemanticModel))
		}
		gate = guard.NewGate(gateOpts...)
	}

	preflight := opts.Preflight
	if preflight == nil {
		if cfg.Pattern.PreflightDir != "" {
			preflight = &pattern.ExecPreflight{Dir: cfg.Pattern.PreflightDir}
		} else {
			preflight = pattern.NoPreflight{}
		}
	}

	engine := pattern.New(executor,
		pattern.WithGate(gate),
		pattern.WithMemory(mem),
		pattern.WithUsage(usage),
		pattern.WithPreflight(preflight),
		pattern.WithLogger(logger),
		func(o *pattern.Options) {
			o.ContextBudget = cfg.Pattern.ContextBudget
			o.CompressedSize = cfg.Pattern.CompressedSize
			o.GuardRetries = cfg.Pattern.GuardRetries
			o.MaxIterations = cfg.Pattern.MaxIterations
			o.MaxOuter = cfg.Pattern.MaxOuter
			o.MaxInner = cfg.Pattern.MaxInner
			o.NetworkRounds = cfg.Pattern.NetworkRounds
		})

	return &Forge{
		cfg:       cfg,
		logger:    logger,
		client:    client,
		registry:  registry,
		executor:  executor,
		engine:    engine,
		store:     db,
		artifacts: artifacts,
	}, nil
}

// RunPattern executes a task graph and returns the final run state. The
// final output of a successful run is recorded as the "final_output"
// artifact of that run.
func (f *Forge) RunPattern(ctx context.Context, graph *core.TaskGraph, initialTask string) (*core.RunState, error) {
	state, err := f.engine.RunPattern(ctx, graph, initialTask)
	if err != nil {
		return state, err
	}
	if state != nil && state.FinalOutput != "" {
		saveErr := f.artifacts.Save(ctx, artifact.Artifact{
			RunID:    state.ID,
			Name:     "final_output",
			Data:     []byte(state.FinalOutput),
			MimeType: "text/plain",
		})
		if saveErr != nil {
			f.logger.Warn("saving final output artifact failed", "run_id", state.ID, "error", saveErr)
		}
	}
	return state, nil
}

// Resume delivers operator input to a run paused at a human checkpoint.
func (f *Forge) Resume(runID, input string) error {
	return f.engine.Resume(runID, input)
}

// Invoke sends a single request through the invocation layer, bypassing
// agents and patterns.
func (f *Forge) Invoke(ctx context.Context, req llm.Request) (*llm.Result, error) {
	return f.client.Invoke(ctx, req)
}

// RegisterTool adds a tool to the registry shared by every agent step.
func (f *Forge) RegisterTool(t tool.Tool) {
	f.registry.Register(t)
}

// Client exposes the invocation layer, e.g. for health inspection.
func (f *Forge) Client() *llm.Client { return f.client }

// Artifacts exposes the deliverable store.
func (f *Forge) Artifacts() artifact.Store { return f.artifacts }

// Close releases the persistence layer, when one is open.
func (f *Forge) Close() error {
	if f.store != nil {
		return f.store.Close()
	}
	return nil
}
