package guard

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentforge/agentforge/core"
	"github.com/agentforge/agentforge/llm"
	"github.com/agentforge/agentforge/logging"
)

// Input is one step output under review.
type Input struct {
	// Role is the producing agent's role ID (used for length thresholds).
	Role string

	// Task is the instruction the output answers.
	Task string

	// Output is the text under review.
	Output string

	// UsedTools lists the tool names the step actually executed.
	UsedTools []string

	// Provider identifies who produced the output, so the semantic
	// reviewer can be routed to a different one.
	Provider string

	// Discussion marks debate-style output, which skips the semantic
	// layer (opinions are not gradeable the way deliverables are).
	Discussion bool
}

// Options configure a Gate.
type Options struct {
	// RejectAt is the lowest score that is no longer a clean pass.
	RejectAt int

	// SoftPassMax is the highest score that may still pass, with a
	// warning banner, when no critical category was flagged.
	SoftPassMax int

	// MinLength maps role IDs to the minimum acceptable output length in
	// characters. The "default" key covers unlisted roles.
	MinLength map[string]int

	// CriticalCategories always reject regardless of score.
	CriticalCategories []string

	// Semantic, when set, enables the L1 adversarial review.
	Semantic llm.Invoker

	// SemanticProvider overrides provider selection for L1. Empty lets
	// the invocation layer pick, excluding nothing; the gate only insists
	// it differ from the output's producer when one is named.
	SemanticProvider string

	// SemanticModel is the reviewer model. Empty uses the provider default.
	SemanticModel string

	// Logger receives review telemetry.
	Logger logging.Logger
}

// WithSemantic enables the L1 review through the given invoker.
func WithSemantic(invoker llm.Invoker, provider, model string) func(o *Options) {
	return func(o *Options) {
		o.Semantic = invoker
		o.SemanticProvider = provider
		o.SemanticModel = model
	}
}

// WithLogger sets the gate logger.
func WithLogger(logger logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = logger }
}

// Gate reviews step outputs.
type Gate struct {
	opts   Options
	logger logging.Logger
}

// NewGate builds a quality gate with production defaults.
func NewGate(optFns ...func(o *Options)) *Gate {
	opts := Options{
		RejectAt:    5,
		SoftPassMax: 6,
		MinLength: map[string]int{
			"dev":          200,
			"qa":           150,
			"devops":       150,
			"architecture": 200,
			"default":      80,
		},
		CriticalCategories: []string{"fabrication", "stack_mismatch"},
		Logger:             logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Gate{opts: opts, logger: opts.Logger}
}

// Review scores the input and returns the verdict. The returned error is
// reserved for context cancellation; review failures degrade to a verdict,
// they never abort the caller.
func (g *Gate) Review(ctx context.Context, input Input) (*core.GuardVerdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	score, issues, categories := g.heuristics(input)

	if g.opts.Semantic != nil && !input.Discussion {
		l1, err := g.semanticReview(ctx, input)
		if err != nil {
			g.logger.Warn("semantic review unavailable, heuristic score stands", "error", err)
		} else {
			if l1.Score > score {
				score = l1.Score
			}
			issues = append(issues, l1.Issues...)
			categories = append(categories, l1.Categories...)
		}
	}
	if score > 10 {
		score = 10
	}

	verdict := &core.GuardVerdict{
		Score:      score,
		Issues:     issues,
		Categories: dedup(categories),
	}
	critical := g.firstCritical(verdict.Categories)

	switch {
	case critical != "":
		verdict.Level = core.GuardReject
	case score < g.opts.RejectAt:
		verdict.Passed = true
		verdict.Level = core.GuardPass
	case score <= g.opts.SoftPassMax:
		verdict.Passed = true
		verdict.Level = core.GuardWarn
		verdict.Warning = fmt.Sprintf("[QUALITY WARNING - score %d/10]", score)
	default:
		verdict.Level = core.GuardReject
	}
	if critical != "" && len(verdict.Issues) == 0 {
		verdict.Issues = append(verdict.Issues, "critical category flagged: "+critical)
	}

	g.logger.Debug("guard review",
		"role", input.Role, "score", verdict.Score,
		"passed", verdict.Passed, "level", string(verdict.Level))
	return verdict, nil
}

func (g *Gate) firstCritical(categories []string) string {
	for _, c := range categories {
		for _, crit := range g.opts.CriticalCategories {
			if c == crit {
				return c
			}
		}
	}
	return ""
}

func (g *Gate) minLengthFor(role string) int {
	if n, ok := g.opts.MinLength[strings.ToLower(role)]; ok {
		return n
	}
	return g.opts.MinLength["default"]
}

func dedup(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
