// Package testutil provides scripted fakes for tests: an llm.Invoker with
// rule-based canned responses and helpers for building task graphs. Kept
// internal so it never leaks into the public API surface.
package testutil
