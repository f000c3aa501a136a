// Package core defines the shared vocabulary of AgentForge: agent roles,
// task graphs and their topologies, run and node state, chat messages and
// tool calls, plus the small interfaces (ToolRunner, MemoryStore,
// UsageRecorder) that the higher layers depend on.
//
// Everything here is plain data or a narrow interface so that llm, agent,
// guard and pattern can depend on core without import cycles.
package core
