package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge/agentforge/core"
)

// fakeAdapter is a scripted Adapter for exercising the fallback chain.
type fakeAdapter struct {
	mu      sync.Mutex
	calls   int
	respond func(call int, req Request) (*Result, error)
}

func (f *fakeAdapter) Send(_ context.Context, req Request) (*Result, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.respond(call, req)
}

func (f *fakeAdapter) Stream(ctx context.Context, req Request) (<-chan Chunk, <-chan error) {
	out := make(chan Chunk, 2)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		res, err := f.Send(ctx, req)
		if err != nil {
			errCh <- err
			return
		}
		out <- Chunk{Delta: res.Content}
		out <- Chunk{Done: true}
	}()
	return out, errCh
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func alwaysSucceed(content string) func(int, Request) (*Result, error) {
	return func(int, Request) (*Result, error) {
		return &Result{Content: content, TokensIn: 3, TokensOut: 5}, nil
	}
}

func alwaysFail(err error) func(int, Request) (*Result, error) {
	return func(int, Request) (*Result, error) { return nil, err }
}

func newTestClient(t *testing.T, adapters map[string]*fakeAdapter, optFns ...func(o *Options)) *Client {
	t.Helper()
	var cfgs []ProviderConfig
	for _, name := range []string{"alpha", "beta", "gamma"} {
		if _, ok := adapters[name]; ok {
			cfgs = append(cfgs, ProviderConfig{Name: name, Kind: KindOpenAI, APIKey: "test-key", DefaultModel: "test-model"})
		}
	}
	opts := append([]func(o *Options){
		WithAdapterFactory(func(cfg ProviderConfig) (Adapter, error) { return adapters[cfg.Name], nil }),
		func(o *Options) {
			o.RetryInitialInterval = time.Millisecond
			o.RetryMaxInterval = 2 * time.Millisecond
		},
	}, optFns...)
	c, err := NewClient(cfgs, opts...)
	require.NoError(t, err)
	return c
}

func TestInvokeFallsBackToNextProvider(t *testing.T) {
	adapters := map[string]*fakeAdapter{
		"alpha": {respond: alwaysFail(errors.New("upstream 500"))},
		"beta":  {respond: alwaysSucceed("from beta")},
	}
	c := newTestClient(t, adapters)

	res, err := c.Invoke(context.Background(), Request{Messages: []core.Message{core.UserMessage("hi")}})
	require.NoError(t, err)
	assert.Equal(t, "beta", res.Provider)
	assert.Equal(t, "from beta", res.Content)
	assert.Equal(t, 3, adapters["alpha"].callCount(), "alpha exhausted its retry budget first")
	assert.Equal(t, 1, adapters["beta"].callCount())
}

func TestInvokePreferredProviderFirst(t *testing.T) {
	adapters := map[string]*fakeAdapter{
		"alpha": {respond: alwaysSucceed("from alpha")},
		"beta":  {respond: alwaysSucceed("from beta")},
	}
	c := newTestClient(t, adapters)

	res, err := c.Invoke(context.Background(), Request{
		Provider: "beta",
		Messages: []core.Message{core.UserMessage("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "beta", res.Provider)
	assert.Equal(t, 0, adapters["alpha"].callCount())
}

func TestInvokeAllProvidersExhausted(t *testing.T) {
	adapters := map[string]*fakeAdapter{
		"alpha": {respond: alwaysFail(errors.New("boom"))},
		"beta":  {respond: alwaysFail(errors.New("boom"))},
	}
	c := newTestClient(t, adapters)

	_, err := c.Invoke(context.Background(), Request{Messages: []core.Message{core.UserMessage("hi")}})
	assert.ErrorIs(t, err, ErrAllProvidersExhausted)
}

func TestInvokeRateLimitTriggersCooldownAndFallback(t *testing.T) {
	rl := &ProviderError{Provider: "alpha", StatusCode: 429, Err: fmt.Errorf("%w: slow down", ErrRateLimited)}
	adapters := map[string]*fakeAdapter{
		"alpha": {respond: alwaysFail(rl)},
		"beta":  {respond: alwaysSucceed("from beta")},
	}
	c := newTestClient(t, adapters, func(o *Options) { o.Cooldown = time.Minute })

	res, err := c.Invoke(context.Background(), Request{Messages: []core.Message{core.UserMessage("hi")}})
	require.NoError(t, err)
	assert.Equal(t, "beta", res.Provider)
	assert.Equal(t, 1, adapters["alpha"].callCount(), "rate limits are not retried in-provider")

	// Second call skips alpha entirely while it cools down.
	_, err = c.Invoke(context.Background(), Request{Messages: []core.Message{core.UserMessage("hi again")}})
	require.NoError(t, err)
	assert.Equal(t, 1, adapters["alpha"].callCount())

	health, ok := c.Provider("alpha")
	require.True(t, ok)
	assert.True(t, health.CooldownUntil.After(time.Now()))
}

func TestInvokeBreakerSkipsUnhealthyProvider(t *testing.T) {
	adapters := map[string]*fakeAdapter{
		"alpha": {respond: alwaysFail(errors.New("down"))},
		"beta":  {respond: alwaysSucceed("ok")},
	}
	c := newTestClient(t, adapters, func(o *Options) {
		o.MaxAttempts = 1
		o.BreakerFailThreshold = 2
	})

	ctx := context.Background()
	req := Request{Messages: []core.Message{core.UserMessage("hi")}}
	for i := 0; i < 2; i++ {
		_, err := c.Invoke(ctx, req)
		require.NoError(t, err)
	}
	health, _ := c.Provider("alpha")
	require.Equal(t, BreakerOpen, health.Breaker)

	// alpha's circuit is open now, so it is skipped without a call.
	before := adapters["alpha"].callCount()
	_, err := c.Invoke(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, before, adapters["alpha"].callCount())
}

func TestInvokeLimiterTimeoutDoesNotTripBreaker(t *testing.T) {
	adapters := map[string]*fakeAdapter{
		"alpha": {respond: alwaysSucceed("from alpha")},
		"beta":  {respond: alwaysSucceed("from beta")},
	}
	cfgs := []ProviderConfig{
		{Name: "alpha", Kind: KindOpenAI, APIKey: "test-key", DefaultModel: "test-model", RPM: 1},
		{Name: "beta", Kind: KindOpenAI, APIKey: "test-key", DefaultModel: "test-model"},
	}
	c, err := NewClient(cfgs,
		WithAdapterFactory(func(cfg ProviderConfig) (Adapter, error) { return adapters[cfg.Name], nil }),
		func(o *Options) {
			o.LimiterMaxWait = time.Millisecond
			o.BreakerFailThreshold = 2
		})
	require.NoError(t, err)

	ctx := context.Background()
	req := Request{Messages: []core.Message{core.UserMessage("hi")}}
	res, err := c.Invoke(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "alpha", res.Provider)

	// alpha's only slot for the window is spent; subsequent calls time
	// out on its limiter and fall back without contacting it.
	for i := 0; i < 2; i++ {
		res, err = c.Invoke(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "beta", res.Provider)
	}
	assert.Equal(t, 1, adapters["alpha"].callCount())
	health, ok := c.Provider("alpha")
	require.True(t, ok)
	assert.Equal(t, BreakerClosed, health.Breaker, "a queueing timeout is not a provider failure")
}

func TestInvokeSkipsProviderWithoutCredential(t *testing.T) {
	adapters := map[string]*fakeAdapter{
		"alpha": {respond: alwaysSucceed("from alpha")},
		"beta":  {respond: alwaysSucceed("from beta")},
	}
	cfgs := []ProviderConfig{
		{Name: "alpha", Kind: KindOpenAI, DefaultModel: "test-model"},
		{Name: "beta", Kind: KindOpenAI, APIKey: "test-key", DefaultModel: "test-model"},
	}
	c, err := NewClient(cfgs,
		WithAdapterFactory(func(cfg ProviderConfig) (Adapter, error) { return adapters[cfg.Name], nil }))
	require.NoError(t, err)

	res, err := c.Invoke(context.Background(), Request{Messages: []core.Message{core.UserMessage("hi")}})
	require.NoError(t, err)
	assert.Equal(t, "beta", res.Provider)
	assert.Equal(t, 0, adapters["alpha"].callCount())
}

func TestInvokeAllowsKeylessProviderWithNoAuth(t *testing.T) {
	adapters := map[string]*fakeAdapter{
		"alpha": {respond: alwaysSucceed("from local")},
	}
	cfgs := []ProviderConfig{
		{Name: "alpha", Kind: KindOpenAI, NoAuth: true, BaseURL: "http://localhost:11434/v1", DefaultModel: "test-model"},
	}
	c, err := NewClient(cfgs,
		WithAdapterFactory(func(cfg ProviderConfig) (Adapter, error) { return adapters[cfg.Name], nil }))
	require.NoError(t, err)

	res, err := c.Invoke(context.Background(), Request{Messages: []core.Message{core.UserMessage("hi")}})
	require.NoError(t, err)
	assert.Equal(t, "from local", res.Content)
}

func TestInvokeSecondIdenticalCallHitsCache(t *testing.T) {
	adapters := map[string]*fakeAdapter{
		"alpha": {respond: alwaysSucceed("cached answer")},
	}
	c := newTestClient(t, adapters, WithCache(NewMemoryCache()))

	req := Request{Model: "test-model", Messages: []core.Message{core.UserMessage("same question")}}
	first, err := c.Invoke(context.Background(), req)
	require.NoError(t, err)
	require.False(t, first.Cached)

	second, err := c.Invoke(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, "cached answer", second.Content)
	assert.Equal(t, 1, adapters["alpha"].callCount(), "no provider call on cache hit")
}

func TestCacheKeySeparatesPreferredProviders(t *testing.T) {
	adapters := map[string]*fakeAdapter{
		"alpha": {respond: alwaysSucceed("alpha answer")},
		"beta":  {respond: alwaysSucceed("beta answer")},
	}
	cfgs := []ProviderConfig{
		{Name: "alpha", Kind: KindOpenAI, APIKey: "test-key", DefaultModel: "alpha-model"},
		{Name: "beta", Kind: KindOpenAI, APIKey: "test-key", DefaultModel: "beta-model"},
	}
	c, err := NewClient(cfgs,
		WithAdapterFactory(func(cfg ProviderConfig) (Adapter, error) { return adapters[cfg.Name], nil }),
		WithCache(NewMemoryCache()))
	require.NoError(t, err)

	ctx := context.Background()
	msgs := []core.Message{core.UserMessage("same question")}
	first, err := c.Invoke(ctx, Request{Provider: "alpha", Messages: msgs})
	require.NoError(t, err)
	require.False(t, first.Cached)
	assert.Equal(t, "alpha answer", first.Content)

	// The model defaults differ per provider, so this is a different
	// request and must not be served from alpha's cache entry.
	second, err := c.Invoke(ctx, Request{Provider: "beta", Messages: msgs})
	require.NoError(t, err)
	assert.False(t, second.Cached)
	assert.Equal(t, "beta answer", second.Content)
	assert.Equal(t, 1, adapters["beta"].callCount())
}

func TestInvokeRecordsUsage(t *testing.T) {
	adapters := map[string]*fakeAdapter{
		"alpha": {respond: alwaysSucceed("ok")},
	}
	rec := &capturingRecorder{}
	c := newTestClient(t, adapters, WithUsageRecorder(rec))

	_, err := c.Invoke(context.Background(), Request{Messages: []core.Message{core.UserMessage("hi")}})
	require.NoError(t, err)
	require.Len(t, rec.usage, 1)
	assert.Equal(t, "alpha", rec.usage[0].Provider)
	assert.Equal(t, 3, rec.usage[0].TokensIn)
}

func TestStreamFallsBack(t *testing.T) {
	adapters := map[string]*fakeAdapter{
		"alpha": {respond: alwaysFail(errors.New("down"))},
		"beta":  {respond: alwaysSucceed("streamed")},
	}
	c := newTestClient(t, adapters)

	chunks, errs := c.Stream(context.Background(), Request{Messages: []core.Message{core.UserMessage("hi")}})
	var got string
	for ck := range chunks {
		got += ck.Delta
	}
	require.NoError(t, <-errs)
	assert.Equal(t, "streamed", got)
}

type capturingRecorder struct {
	mu        sync.Mutex
	usage     []core.UsageRecord
	incidents []core.Incident
}

func (r *capturingRecorder) RecordUsage(_ context.Context, rec core.UsageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage = append(r.usage, rec)
	return nil
}

func (r *capturingRecorder) RecordIncident(_ context.Context, inc core.Incident) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.incidents = append(r.incidents, inc)
	return nil
}
