// Package llm implements the resilient invocation layer: a client that
// walks a fallback chain of configured providers, each guarded by a
// sliding-window rate limiter and a circuit breaker, with per-provider
// retry/backoff, rate-limit cooldowns, a response cache and usage
// recording. Adapters translate the normalized Request/Result shapes to
// the OpenAI Chat Completions API (including OpenAI-compatible endpoints)
// and the Anthropic Messages API.
package llm
