package core

import (
	"context"
	"time"
)

// UsageRecord captures the cost of one successful model invocation.
type UsageRecord struct {
	ID        string        `json:"id"`
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	TokensIn  int           `json:"tokens_in"`
	TokensOut int           `json:"tokens_out"`
	CostUSD   float64       `json:"cost_usd"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// UsageRecorder sinks usage records and incidents. Recording is
// fire-and-forget from the caller's perspective: implementations should
// never make an invocation fail because bookkeeping did.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, rec UsageRecord) error
	RecordIncident(ctx context.Context, inc Incident) error
}

// NopUsageRecorder discards everything.
type NopUsageRecorder struct{}

// RecordUsage discards the record.
func (NopUsageRecorder) RecordUsage(context.Context, UsageRecord) error { return nil }

// RecordIncident discards the incident.
func (NopUsageRecorder) RecordIncident(context.Context, Incident) error { return nil }
