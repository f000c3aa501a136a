package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge/agentforge/core"
	"github.com/agentforge/agentforge/llm"
)

func openTestStore(t *testing.T, optFns ...func(o *Options)) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "forge.db"), optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCacheRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok := s.Get(ctx, "k1")
	require.False(t, ok)

	s.Put(ctx, "k1", &llm.Result{Model: "m", Content: "answer", TokensIn: 5, TokensOut: 7, Provider: "alpha"})
	res, ok := s.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, "answer", res.Content)
	assert.Equal(t, "alpha", res.Provider)

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestCacheExpiry(t *testing.T) {
	s := openTestStore(t, func(o *Options) { o.CacheTTL = time.Millisecond })
	ctx := context.Background()
	s.Put(ctx, "k", &llm.Result{Model: "m", Content: "v"})
	time.Sleep(10 * time.Millisecond)
	_, ok := s.Get(ctx, "k")
	assert.False(t, ok)
}

func TestUsageAggregation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordUsage(ctx, core.UsageRecord{
		ID: "u1", Provider: "alpha", Model: "m", TokensIn: 10, TokensOut: 20, CostUSD: 0.5,
	}))
	require.NoError(t, s.RecordUsage(ctx, core.UsageRecord{
		ID: "u2", Provider: "alpha", Model: "m", TokensIn: 5, TokensOut: 5, CostUSD: 0.25,
	}))
	require.NoError(t, s.RecordUsage(ctx, core.UsageRecord{
		ID: "u3", Provider: "beta", Model: "m", TokensIn: 1, TokensOut: 1, CostUSD: 0.01,
	}))

	summary, err := s.UsageByProvider(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, "alpha", summary[0].Provider)
	assert.Equal(t, 2, summary[0].Calls)
	assert.Equal(t, 15, summary[0].TokensIn)
	assert.InDelta(t, 0.75, summary[0].CostUSD, 1e-9)
}

func TestIncidentsForRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordIncident(ctx, core.Incident{
		ID: "i1", RunID: "run-1", NodeID: "n1", Category: "force_accept", Detail: "guard retries exhausted",
	}))
	require.NoError(t, s.RecordIncident(ctx, core.Incident{
		ID: "i2", RunID: "run-2", Category: "preflight_failed", Detail: "build failed",
	}))

	incidents, err := s.IncidentsForRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Equal(t, "force_accept", incidents[0].Category)
	assert.Equal(t, "n1", incidents[0].NodeID)
}
