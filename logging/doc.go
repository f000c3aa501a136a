// Package logging provides a minimal logging interface and adapters for AgentForge.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the invocation layer, executor and pattern engine use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - ForgeLogger with run/node context and domain helpers
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	client := llm.NewClient(providers, llm.WithLogger(logger))
//
// The design intentionally keeps the interface minimal to avoid vendor lock-in
// while supporting structured logging where available.
package logging
