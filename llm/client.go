package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/agentforge/agentforge/core"
	"github.com/agentforge/agentforge/internal/util"
	"github.com/agentforge/agentforge/logging"
)

// Options configure a Client.
type Options struct {
	// MaxAttempts is the per-provider attempt budget for transient errors.
	MaxAttempts int

	// RetryInitialInterval seeds the exponential backoff between attempts.
	RetryInitialInterval time.Duration

	// RetryMaxInterval caps a single backoff delay.
	RetryMaxInterval time.Duration

	// RetryRandomization is the backoff jitter factor.
	RetryRandomization float64

	// Cooldown is how long a rate-limited provider sits out of the chain.
	Cooldown time.Duration

	// LimiterWindow is the sliding window RPM budgets apply to.
	LimiterWindow time.Duration

	// LimiterMaxWait bounds how long Invoke blocks on a provider's rate
	// limiter before skipping to the next provider.
	LimiterMaxWait time.Duration

	// BreakerFailThreshold, BreakerWindow and BreakerOpenFor configure the
	// per-provider circuit breakers.
	BreakerFailThreshold int
	BreakerWindow        time.Duration
	BreakerOpenFor       time.Duration

	// Cache caches successful results. Nil disables caching.
	Cache Cache

	// Usage receives usage records for successful invocations.
	Usage core.UsageRecorder

	// Logger receives client telemetry.
	Logger logging.Logger

	// AdapterFactory builds adapters from provider configs. Tests override
	// it with scripted adapters.
	AdapterFactory AdapterFactory
}

// WithLogger sets the client logger.
func WithLogger(logger logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = logger }
}

// WithCache sets the response cache.
func WithCache(cache Cache) func(o *Options) {
	return func(o *Options) { o.Cache = cache }
}

// WithUsageRecorder sets the usage sink.
func WithUsageRecorder(rec core.UsageRecorder) func(o *Options) {
	return func(o *Options) { o.Usage = rec }
}

// WithAdapterFactory overrides adapter construction.
func WithAdapterFactory(f AdapterFactory) func(o *Options) {
	return func(o *Options) { o.AdapterFactory = f }
}

type providerState struct {
	cfg     ProviderConfig
	adapter Adapter
	limiter *RateLimiter
	breaker *CircuitBreaker

	mu            sync.Mutex
	cooldownUntil time.Time
}

func (p *providerState) coolingDown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Now().Before(p.cooldownUntil)
}

func (p *providerState) startCooldown(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cooldownUntil = time.Now().Add(d)
}

// Client walks the provider fallback chain for every invocation, honoring
// per-provider rate limits, circuit breakers and cooldowns, and consulting
// the response cache before touching the network.
type Client struct {
	opts      Options
	providers []*providerState
	byName    map[string]*providerState
	logger    logging.Logger
}

// NewClient builds a client over the given providers, in fallback order.
func NewClient(providers []ProviderConfig, optFns ...func(o *Options)) (*Client, error) {
	opts := Options{
		MaxAttempts:          3,
		RetryInitialInterval: 3 * time.Second,
		RetryMaxInterval:     90 * time.Second,
		RetryRandomization:   0.3,
		Cooldown:             90 * time.Second,
		LimiterWindow:        time.Minute,
		LimiterMaxWait:       30 * time.Second,
		BreakerFailThreshold: 5,
		BreakerWindow:        time.Minute,
		BreakerOpenFor:       2 * time.Minute,
		Logger:               logging.NoOpLogger{},
		AdapterFactory:       NewAdapter,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("llm client: at least one provider is required")
	}
	c := &Client{
		opts:   opts,
		byName: make(map[string]*providerState, len(providers)),
		logger: opts.Logger,
	}
	for _, cfg := range providers {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byName[cfg.Name]; dup {
			return nil, fmt.Errorf("llm client: duplicate provider %q", cfg.Name)
		}
		adapter, err := opts.AdapterFactory(cfg)
		if err != nil {
			return nil, fmt.Errorf("llm client: provider %s: %w", cfg.Name, err)
		}
		ps := &providerState{
			cfg:     cfg,
			adapter: adapter,
			limiter: NewRateLimiter(cfg.RPM, func(o *RateLimiterOptions) { o.Window = opts.LimiterWindow }),
			breaker: NewCircuitBreaker(func(o *CircuitBreakerOptions) {
				o.FailThreshold = opts.BreakerFailThreshold
				o.Window = opts.BreakerWindow
				o.OpenFor = opts.BreakerOpenFor
			}),
		}
		c.providers = append(c.providers, ps)
		c.byName[cfg.Name] = ps
	}
	return c, nil
}

// chain returns providers in fallback order, preferred first when known.
func (c *Client) chain(preferred string) []*providerState {
	if preferred == "" {
		return c.providers
	}
	pref, ok := c.byName[preferred]
	if !ok {
		c.logger.Warn("unknown preferred provider, using default chain", "provider", preferred)
		return c.providers
	}
	out := make([]*providerState, 0, len(c.providers))
	out = append(out, pref)
	for _, p := range c.providers {
		if p != pref {
			out = append(out, p)
		}
	}
	return out
}

// Invoke executes the request against the first healthy provider in the
// chain, falling back on failure. Successful results are cached and their
// usage recorded; a fully exhausted chain yields ErrAllProvidersExhausted.
func (c *Client) Invoke(ctx context.Context, req Request) (*Result, error) {
	chain := c.chain(req.Provider)
	var key string
	if c.opts.Cache != nil {
		// Resolve the model the chain head would default to before
		// fingerprinting, so model-less requests preferring different
		// providers do not share a cache entry.
		keyReq := req
		if keyReq.Model == "" && len(chain) > 0 {
			keyReq.Model = chain[0].cfg.DefaultModel
		}
		key = CacheKey(keyReq)
		if res, ok := c.opts.Cache.Get(ctx, key); ok {
			out := *res
			out.Cached = true
			c.logger.Debug("llm cache hit", "provider", out.Provider, "model", out.Model)
			return &out, nil
		}
	}
	for _, p := range chain {
		if !p.cfg.NoAuth && p.cfg.ResolveKey() == "" {
			c.logger.Debug("provider has no api key, skipping", "provider", p.cfg.Name)
			continue
		}
		if p.coolingDown() {
			c.logger.Debug("provider cooling down, skipping", "provider", p.cfg.Name)
			continue
		}
		if !p.breaker.Allow() {
			c.logger.Debug("circuit open, skipping", "provider", p.cfg.Name)
			continue
		}
		res, err := c.invokeProvider(ctx, p, req)
		if err != nil {
			// A local limiter timeout means the provider was never
			// contacted; skip it without charging its breaker.
			if errors.Is(err, ErrAcquireTimeout) {
				c.logger.Debug("rate limit wait exceeded, skipping", "provider", p.cfg.Name)
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.breaker.RecordFailure()
			if IsRateLimit(err) {
				p.startCooldown(c.opts.Cooldown)
			}
			c.logger.Warn("provider failed, falling back", "provider", p.cfg.Name, "error", err)
			continue
		}
		p.breaker.RecordSuccess()
		c.recordUsage(ctx, p.cfg, res)
		if c.opts.Cache != nil {
			c.opts.Cache.Put(ctx, key, res)
		}
		return res, nil
	}
	return nil, ErrAllProvidersExhausted
}

// invokeProvider acquires the provider's rate limit slot and retries
// transient failures with exponential backoff. Rate limits abort the retry
// loop immediately so the chain-level cooldown and fallback take over.
func (c *Client) invokeProvider(ctx context.Context, p *providerState, req Request) (*Result, error) {
	if err := p.limiter.Acquire(ctx, c.opts.LimiterMaxWait); err != nil {
		return nil, fmt.Errorf("provider %s: %w", p.cfg.Name, err)
	}
	if req.Model == "" {
		req.Model = p.cfg.DefaultModel
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.RetryInitialInterval
	bo.MaxInterval = c.opts.RetryMaxInterval
	bo.RandomizationFactor = c.opts.RetryRandomization
	bo.MaxElapsedTime = 0

	start := time.Now()
	var res *Result
	operation := func() error {
		r, err := p.adapter.Send(ctx, req)
		if err != nil {
			if !IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		res = r
		return nil
	}
	retries := uint64(0)
	if c.opts.MaxAttempts > 1 {
		retries = uint64(c.opts.MaxAttempts - 1)
	}
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, retries), ctx)); err != nil {
		return nil, fmt.Errorf("provider %s: %w", p.cfg.Name, err)
	}

	res.Provider = p.cfg.Name
	if res.Model == "" {
		res.Model = req.Model
	}
	res.Duration = time.Since(start)
	if p.cfg.StripThink {
		res.Content = StripThinkBlocks(res.Content)
	}
	c.logger.Info("llm call completed",
		"provider", res.Provider, "model", res.Model,
		"tokens_in", res.TokensIn, "tokens_out", res.TokensOut,
		"duration", res.Duration)
	return res, nil
}

func (c *Client) recordUsage(ctx context.Context, cfg ProviderConfig, res *Result) {
	if c.opts.Usage == nil {
		return
	}
	cost := float64(res.TokensIn)*cfg.CostPerMTokIn/1e6 + float64(res.TokensOut)*cfg.CostPerMTokOut/1e6
	rec := core.UsageRecord{
		ID:        util.NewID(),
		Provider:  res.Provider,
		Model:     res.Model,
		TokensIn:  res.TokensIn,
		TokensOut: res.TokensOut,
		CostUSD:   cost,
		Duration:  res.Duration,
		CreatedAt: time.Now(),
	}
	if err := c.opts.Usage.RecordUsage(ctx, rec); err != nil {
		c.logger.Debug("usage recording failed", "error", err)
	}
}

// Stream walks the same chain as Invoke and forwards deltas from the first
// provider that starts producing. Streamed responses are not cached. Once
// a provider has emitted output the stream is committed to it: a later
// error surfaces to the caller instead of triggering fallback.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan Chunk, <-chan error) {
	out := make(chan Chunk, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		for _, p := range c.chain(req.Provider) {
			if !p.cfg.NoAuth && p.cfg.ResolveKey() == "" {
				continue
			}
			if p.coolingDown() || !p.breaker.Allow() {
				continue
			}
			if err := p.limiter.Acquire(ctx, c.opts.LimiterMaxWait); err != nil {
				c.logger.Debug("rate limit wait exceeded, skipping", "provider", p.cfg.Name)
				continue
			}
			r := req
			if r.Model == "" {
				r.Model = p.cfg.DefaultModel
			}
			chunks, errs := p.adapter.Stream(ctx, r)
			streamed := false
			var streamErr error
			for chunks != nil || errs != nil {
				select {
				case ck, ok := <-chunks:
					if !ok {
						chunks = nil
						continue
					}
					streamed = true
					out <- ck
				case err, ok := <-errs:
					if !ok {
						errs = nil
						continue
					}
					if err != nil {
						streamErr = err
					}
				}
			}
			if streamErr != nil {
				p.breaker.RecordFailure()
				if IsRateLimit(streamErr) {
					p.startCooldown(c.opts.Cooldown)
				}
				if streamed || ctx.Err() != nil {
					errCh <- streamErr
					return
				}
				c.logger.Warn("provider stream failed, falling back", "provider", p.cfg.Name, "error", streamErr)
				continue
			}
			p.breaker.RecordSuccess()
			return
		}
		errCh <- ErrAllProvidersExhausted
	}()
	return out, errCh
}

// Provider exposes a provider's health for inspection.
func (c *Client) Provider(name string) (ProviderHealth, bool) {
	p, ok := c.byName[name]
	if !ok {
		return ProviderHealth{}, false
	}
	p.mu.Lock()
	cooldown := p.cooldownUntil
	p.mu.Unlock()
	return ProviderHealth{
		Name:          p.cfg.Name,
		Breaker:       p.breaker.State(),
		CooldownUntil: cooldown,
		InWindow:      p.limiter.InWindow(),
	}, true
}

// ProviderHealth is a point-in-time snapshot of a provider's guards.
type ProviderHealth struct {
	Name          string       `json:"name"`
	Breaker       BreakerState `json:"breaker"`
	CooldownUntil time.Time    `json:"cooldown_until,omitempty"`
	InWindow      int          `json:"in_window"`
}
