package guard

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge/agentforge/core"
	"github.com/agentforge/agentforge/internal/testutil"
)

func solidOutput() string {
	return strings.Repeat("The handler validates the payload, persists it and returns 201. ", 10)
}

func TestReviewCleanPass(t *testing.T) {
	g := NewGate()
	v, err := g.Review(context.Background(), Input{
		Role:   "architecture",
		Task:   "design the API",
		Output: solidOutput(),
	})
	require.NoError(t, err)
	assert.True(t, v.Passed)
	assert.Equal(t, core.GuardPass, v.Level)
	assert.Zero(t, v.Score)
	assert.Empty(t, v.Warning)
}

func TestReviewRejectsStubbedOutput(t *testing.T) {
	g := NewGate()
	out := solidOutput() + "\nTODO: implement the persistence layer with mock data for now."
	v, err := g.Review(context.Background(), Input{Role: "dev", Task: "build it", Output: out})
	require.NoError(t, err)
	// stub (+4) alone soft-passes; with slop it must reject.
	assert.True(t, v.Passed)
	assert.Equal(t, core.GuardPass, v.Level)

	out += "\nSee example.com for details, rest is TBD."
	v, err = g.Review(context.Background(), Input{Role: "dev", Task: "build it", Output: out})
	require.NoError(t, err)
	assert.False(t, v.Passed)
	assert.Equal(t, core.GuardReject, v.Level)
	assert.GreaterOrEqual(t, v.Score, 7)
	assert.NotEmpty(t, v.Issues)
}

func TestReviewSoftPassCarriesWarningBanner(t *testing.T) {
	reviewer := testutil.NewScriptedInvoker().On(testutil.Always(),
		testutil.Response{Content: `{"score": 6, "issues": [{"category": "style", "description": "terse"}]}`})
	g := NewGate(WithSemantic(reviewer, "anthropic", ""))

	v, err := g.Review(context.Background(), Input{Role: "qa", Task: "test it", Output: solidOutput()})
	require.NoError(t, err)
	assert.True(t, v.Passed)
	assert.Equal(t, core.GuardWarn, v.Level)
	assert.Contains(t, v.Warning, "[QUALITY WARNING - score 6/10]")
}

func TestReviewFabricationAlwaysRejects(t *testing.T) {
	g := NewGate()
	out := solidOutput() + "\nI have deployed the service to production."
	v, err := g.Review(context.Background(), Input{Role: "devops", Task: "deploy", Output: out})
	require.NoError(t, err)
	assert.False(t, v.Passed)
	assert.Equal(t, core.GuardReject, v.Level)
	assert.True(t, v.HasCategory("fabrication"))
}

func TestReviewActionClaimBackedByToolEvidence(t *testing.T) {
	g := NewGate()
	out := solidOutput() + "\nI have deployed the service to production."
	v, err := g.Review(context.Background(), Input{
		Role:      "devops",
		Task:      "deploy",
		Output:    out,
		UsedTools: []string{"shell_exec"},
	})
	require.NoError(t, err)
	assert.True(t, v.Passed)
	assert.False(t, v.HasCategory("fabrication"))
}

func TestReviewThinOutputByRole(t *testing.T) {
	g := NewGate()
	v, err := g.Review(context.Background(), Input{Role: "dev", Task: "build", Output: "done."})
	require.NoError(t, err)
	assert.True(t, v.HasCategory("thin_output"))
	assert.Equal(t, core.GuardPass, v.Level, "thin alone stays below the reject threshold")

	// An unknown role falls back to the default minimum.
	v, err = g.Review(context.Background(), Input{
		Role:   "researcher",
		Task:   "summarize",
		Output: strings.Repeat("finding ", 15),
	})
	require.NoError(t, err)
	assert.False(t, v.HasCategory("thin_output"))
}

func TestReviewSemanticLayerRaisesScore(t *testing.T) {
	reviewer := testutil.NewScriptedInvoker().On(testutil.Always(),
		testutil.Response{Content: `{"score": 8, "issues": [{"category": "stack_mismatch", "description": "answer targets Django, task names Rails"}]}`})
	g := NewGate(WithSemantic(reviewer, "anthropic", ""))

	v, err := g.Review(context.Background(), Input{
		Role:     "dev",
		Task:     "build the Rails controller",
		Output:   solidOutput(),
		Provider: "openai",
	})
	require.NoError(t, err)
	assert.False(t, v.Passed)
	assert.Equal(t, 8, v.Score)
	assert.True(t, v.HasCategory("stack_mismatch"))
}

func TestReviewSemanticErrorFallsBackToHeuristics(t *testing.T) {
	reviewer := testutil.NewScriptedInvoker().On(testutil.Always(),
		testutil.Response{Content: "I refuse to answer in JSON."})
	g := NewGate(WithSemantic(reviewer, "anthropic", ""))

	v, err := g.Review(context.Background(), Input{Role: "dev", Task: "build", Output: solidOutput()})
	require.NoError(t, err)
	assert.True(t, v.Passed)
	assert.Equal(t, core.GuardPass, v.Level)
}

func TestReviewDiscussionSkipsSemanticLayer(t *testing.T) {
	reviewer := testutil.NewScriptedInvoker().On(testutil.Always(),
		testutil.Response{Content: `{"score": 9, "issues": []}`})
	g := NewGate(WithSemantic(reviewer, "anthropic", ""))

	v, err := g.Review(context.Background(), Input{
		Role:       "dev",
		Task:       "debate the tradeoffs",
		Output:     solidOutput(),
		Discussion: true,
	})
	require.NoError(t, err)
	assert.True(t, v.Passed)
	assert.Empty(t, reviewer.Calls())
}

func TestParseReviewerJSONToleratesSurroundingProse(t *testing.T) {
	v, err := parseReviewerJSON("Here is my review:\n{\"score\": 3, \"issues\": []}\nThanks.")
	require.NoError(t, err)
	assert.Equal(t, 3, v.Score)

	_, err = parseReviewerJSON("no json here")
	assert.Error(t, err)
}
