// Package config provides configuration loading for agentforge: a YAML
// file parsed through koanf, overridden by AGENTFORGE_ environment
// variables, with defaults and validation applied on top.
package config

import (
	"fmt"
	"time"

	"github.com/agentforge/agentforge/llm"
)

// Config is the full agentforge configuration tree.
type Config struct {
	Logging   LoggingConfig        `koanf:"logging"`
	Providers []llm.ProviderConfig `koanf:"providers"`
	Client    ClientConfig         `koanf:"client"`
	Store     StoreConfig          `koanf:"store"`
	Executor  ExecutorConfig       `koanf:"executor"`
	Guard     GuardConfig          `koanf:"guard"`
	Pattern   PatternConfig        `koanf:"pattern"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `koanf:"level"`

	// Format is "text" or "json".
	Format string `koanf:"format"`
}

// ClientConfig tunes the invocation layer shared by every provider.
type ClientConfig struct {
	MaxAttempts          int           `koanf:"max_attempts"`
	Cooldown             time.Duration `koanf:"cooldown"`
	LimiterWindow        time.Duration `koanf:"limiter_window"`
	LimiterMaxWait       time.Duration `koanf:"limiter_max_wait"`
	BreakerFailThreshold int           `koanf:"breaker_fail_threshold"`
	BreakerWindow        time.Duration `koanf:"breaker_window"`
	BreakerOpenFor       time.Duration `koanf:"breaker_open_for"`
	CacheTTL             time.Duration `koanf:"cache_ttl"`
	CacheMaxEntries      int           `koanf:"cache_max_entries"`
}

// StoreConfig controls the SQLite persistence layer. Disabled, the cache
// and usage records live in memory only.
type StoreConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// ExecutorConfig tunes the agent step executor.
type ExecutorConfig struct {
	MaxToolRounds   int           `koanf:"max_tool_rounds"`
	ToolResultLimit int           `koanf:"tool_result_limit"`
	HistoryWindow   int           `koanf:"history_window"`
	RetryWaitMin    time.Duration `koanf:"retry_wait_min"`
	RetryWaitMax    time.Duration `koanf:"retry_wait_max"`
}

// GuardConfig tunes the quality gate.
type GuardConfig struct {
	Enabled          bool           `koanf:"enabled"`
	RejectAt         int            `koanf:"reject_at"`
	SoftPassMax      int            `koanf:"soft_pass_max"`
	MinLength        map[string]int `koanf:"min_length"`
	SemanticProvider string         `koanf:"semantic_provider"`
	SemanticModel    string         `koanf:"semantic_model"`
}

// PatternConfig tunes the pattern engine.
type PatternConfig struct {
	ContextBudget  int    `koanf:"context_budget"`
	CompressedSize int    `koanf:"compressed_size"`
	GuardRetries   int    `koanf:"guard_retries"`
	MaxIterations  int    `koanf:"max_iterations"`
	MaxOuter       int    `koanf:"max_outer"`
	MaxInner       int    `koanf:"max_inner"`
	NetworkRounds  int    `koanf:"network_rounds"`
	PreflightDir   string `koanf:"preflight_dir"`
}

// Default returns the configuration used when no file and no environment
// overrides are present. It has no providers; callers must add at least one.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Client.MaxAttempts == 0 {
		cfg.Client.MaxAttempts = 3
	}
	if cfg.Client.Cooldown == 0 {
		cfg.Client.Cooldown = 90 * time.Second
	}
	if cfg.Client.LimiterWindow == 0 {
		cfg.Client.LimiterWindow = time.Minute
	}
	if cfg.Client.LimiterMaxWait == 0 {
		cfg.Client.LimiterMaxWait = 30 * time.Second
	}
	if cfg.Client.BreakerFailThreshold == 0 {
		cfg.Client.BreakerFailThreshold = 5
	}
	if cfg.Client.BreakerWindow == 0 {
		cfg.Client.BreakerWindow = time.Minute
	}
	if cfg.Client.BreakerOpenFor == 0 {
		cfg.Client.BreakerOpenFor = 2 * time.Minute
	}
	if cfg.Client.CacheTTL == 0 {
		cfg.Client.CacheTTL = 24 * time.Hour
	}
	if cfg.Client.CacheMaxEntries == 0 {
		cfg.Client.CacheMaxEntries = 10000
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "agentforge.db"
	}
	if cfg.Executor.MaxToolRounds == 0 {
		cfg.Executor.MaxToolRounds = 8
	}
	if cfg.Executor.ToolResultLimit == 0 {
		cfg.Executor.ToolResultLimit = 2000
	}
	if cfg.Executor.HistoryWindow == 0 {
		cfg.Executor.HistoryWindow = 20
	}
	if cfg.Executor.RetryWaitMin == 0 {
		cfg.Executor.RetryWaitMin = 30 * time.Second
	}
	if cfg.Executor.RetryWaitMax == 0 {
		cfg.Executor.RetryWaitMax = 60 * time.Second
	}
	if cfg.Guard.RejectAt == 0 {
		cfg.Guard.RejectAt = 5
	}
	if cfg.Guard.SoftPassMax == 0 {
		cfg.Guard.SoftPassMax = 6
	}
	if cfg.Pattern.ContextBudget == 0 {
		cfg.Pattern.ContextBudget = 6000
	}
	if cfg.Pattern.CompressedSize == 0 {
		cfg.Pattern.CompressedSize = 400
	}
	if cfg.Pattern.GuardRetries == 0 {
		cfg.Pattern.GuardRetries = 1
	}
	if cfg.Pattern.MaxIterations == 0 {
		cfg.Pattern.MaxIterations = 5
	}
	if cfg.Pattern.MaxOuter == 0 {
		cfg.Pattern.MaxOuter = 5
	}
	if cfg.Pattern.MaxInner == 0 {
		cfg.Pattern.MaxInner = 2
	}
	if cfg.Pattern.NetworkRounds == 0 {
		cfg.Pattern.NetworkRounds = 3
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format: must be text or json, got %q", c.Logging.Format)
	}
	for _, p := range c.Providers {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	if c.Guard.RejectAt > c.Guard.SoftPassMax {
		return fmt.Errorf("guard: reject_at (%d) must not exceed soft_pass_max (%d)",
			c.Guard.RejectAt, c.Guard.SoftPassMax)
	}
	if c.Executor.RetryWaitMin > c.Executor.RetryWaitMax {
		return fmt.Errorf("executor: retry_wait_min must not exceed retry_wait_max")
	}
	return nil
}
