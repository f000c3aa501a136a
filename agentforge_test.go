package agentforge

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge/agentforge/artifact"
	"github.com/agentforge/agentforge/config"
	"github.com/agentforge/agentforge/llm"
	"github.com/agentforge/agentforge/tool"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Providers = []llm.ProviderConfig{{
		Name:         "openai",
		Kind:         llm.KindOpenAI,
		APIKeyEnv:    "AGENTFORGE_TEST_KEY",
		DefaultModel: "gpt-4o-mini",
	}}
	return cfg
}

func TestNewRequiresProviders(t *testing.T) {
	_, err := New(config.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no providers")
}

func TestNewWiresDefaults(t *testing.T) {
	forge, err := New(testConfig())
	require.NoError(t, err)
	defer forge.Close()

	assert.NotNil(t, forge.Client())
	assert.NotNil(t, forge.Artifacts())

	forge.RegisterTool(tool.NewFunctionTool("noop", "does nothing",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(context.Context, map[string]any) (any, error) { return "ok", nil }))
}

func TestNewAcceptsArtifactStore(t *testing.T) {
	store := artifact.NewInMemoryStore()
	forge, err := New(testConfig(), WithArtifacts(store))
	require.NoError(t, err)
	defer forge.Close()

	require.NoError(t, store.Save(context.Background(), artifact.Artifact{
		RunID: "run-1", Name: "report.md", Data: []byte("# done"),
	}))
	names, err := forge.Artifacts().List(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"report.md"}, names)
}

func TestNewOpensStore(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Enabled = true
	cfg.Store.Path = filepath.Join(t.TempDir(), "forge.db")

	forge, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, forge.Close())
}

func TestResumeUnknownRun(t *testing.T) {
	forge, err := New(testConfig())
	require.NoError(t, err)
	defer forge.Close()

	assert.Error(t, forge.Resume("no-such-run", "input"))
}
