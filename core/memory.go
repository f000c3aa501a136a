package core

import (
	"context"
	"time"
)

// MemoryEntry is a single remembered fact.
type MemoryEntry struct {
	Category  string    `json:"category"`
	Fact      string    `json:"fact"`
	CreatedAt time.Time `json:"created_at"`
}

// MemoryStore persists facts across steps and runs so agents can recall
// earlier decisions. Implementations must be safe for concurrent use.
type MemoryStore interface {
	Store(ctx context.Context, category, fact string) error
	Search(ctx context.Context, query string, limit int) ([]MemoryEntry, error)
}
