package llm

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/agentforge/agentforge/core"
)

// Kind selects the wire protocol an adapter speaks.
type Kind string

const (
	// KindOpenAI covers the OpenAI API and any OpenAI-compatible endpoint
	// reachable through a custom BaseURL.
	KindOpenAI Kind = "openai"
	// KindAnthropic covers the Anthropic Messages API.
	KindAnthropic Kind = "anthropic"
)

// ProviderConfig declares one provider in the fallback chain, including the
// endpoint quirks the adapters have to compensate for.
type ProviderConfig struct {
	// Name identifies the provider in requests, logs and usage records.
	Name string `json:"name" koanf:"name"`

	// Kind selects the adapter. Defaults to KindOpenAI.
	Kind Kind `json:"kind" koanf:"kind"`

	// BaseURL overrides the SDK default endpoint. Required for
	// OpenAI-compatible providers that are not OpenAI itself.
	BaseURL string `json:"base_url,omitempty" koanf:"base_url"`

	// APIKey is the literal key. Prefer APIKeyEnv in config files.
	APIKey string `json:"api_key,omitempty" koanf:"api_key"`

	// APIKeyEnv names the environment variable holding the key.
	APIKeyEnv string `json:"api_key_env,omitempty" koanf:"api_key_env"`

	// NoAuth marks endpoints that take no credential, such as a local
	// OpenAI compatible server. Providers whose key resolves empty are
	// otherwise skipped by the fallback chain.
	NoAuth bool `json:"no_auth,omitempty" koanf:"no_auth"`

	// DefaultModel is used when the request does not pin a model.
	DefaultModel string `json:"default_model" koanf:"default_model"`

	// MaxTokens caps completion length when the request does not.
	MaxTokens int64 `json:"max_tokens,omitempty" koanf:"max_tokens"`

	// MaxTokensParam is "max_tokens" (default) or "max_completion_tokens"
	// for endpoints that renamed the parameter.
	MaxTokensParam string `json:"max_tokens_param,omitempty" koanf:"max_tokens_param"`

	// InlineSystemAfterFirst demotes system messages past position 0 to
	// user messages with a "[System instruction]: " prefix, for endpoints
	// that reject mid-conversation system roles.
	InlineSystemAfterFirst bool `json:"inline_system_after_first,omitempty" koanf:"inline_system_after_first"`

	// StripThink removes <think>...</think> blocks from returned content.
	StripThink bool `json:"strip_think,omitempty" koanf:"strip_think"`

	// RPM is the provider's requests-per-minute budget. Zero disables
	// local rate limiting.
	RPM int `json:"rpm,omitempty" koanf:"rpm"`

	// CostPerMTokIn / CostPerMTokOut are USD prices per million tokens,
	// used for the usage cost estimate.
	CostPerMTokIn  float64 `json:"cost_per_mtok_in,omitempty" koanf:"cost_per_mtok_in"`
	CostPerMTokOut float64 `json:"cost_per_mtok_out,omitempty" koanf:"cost_per_mtok_out"`
}

// ResolveKey returns the API key, consulting APIKeyEnv when APIKey is empty.
func (c ProviderConfig) ResolveKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	if c.APIKeyEnv != "" {
		return os.Getenv(c.APIKeyEnv)
	}
	return ""
}

// Validate checks the minimum viable configuration.
func (c ProviderConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("provider config: name is required")
	}
	if c.DefaultModel == "" {
		return fmt.Errorf("provider %s: default_model is required", c.Name)
	}
	switch c.Kind {
	case "", KindOpenAI, KindAnthropic:
		return nil
	default:
		return fmt.Errorf("provider %s: unknown kind %q", c.Name, c.Kind)
	}
}

// Adapter translates normalized requests to one provider's wire format.
type Adapter interface {
	Send(ctx context.Context, req Request) (*Result, error)
	Stream(ctx context.Context, req Request) (<-chan Chunk, <-chan error)
}

// AdapterFactory builds an Adapter for a provider config. The client uses
// NewAdapter by default; tests inject scripted adapters.
type AdapterFactory func(cfg ProviderConfig) (Adapter, error)

// NewAdapter constructs the SDK-backed adapter for the config's kind.
func NewAdapter(cfg ProviderConfig) (Adapter, error) {
	switch cfg.Kind {
	case "", KindOpenAI:
		return newOpenAIAdapter(cfg), nil
	case KindAnthropic:
		return newAnthropicAdapter(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}
}

var thinkBlockRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThinkBlocks removes reasoning blocks some models prepend to content.
func StripThinkBlocks(s string) string {
	return strings.TrimSpace(thinkBlockRe.ReplaceAllString(s, ""))
}

// demoteSystemMessages applies the InlineSystemAfterFirst quirk.
func demoteSystemMessages(messages []core.Message) []core.Message {
	out := make([]core.Message, len(messages))
	copy(out, messages)
	for i := range out {
		if i > 0 && out[i].Role == core.RoleSystem {
			out[i] = core.UserMessage("[System instruction]: " + out[i].Content)
		}
	}
	return out
}
