// Package agent implements the step executor: one agent role applied to
// one task, with prompt assembly (system prompt, memory recall, prior
// transcript), a bounded tool-calling loop with inline markup fallback,
// message window trimming and a forced synthesis round. A streaming
// variant forwards the final answer as deltas.
package agent
