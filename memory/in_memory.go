// Package memory provides fact storage so agents can recall decisions made
// in earlier steps and runs. The in-memory implementation suits tests and
// single-process deployments.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentforge/agentforge/core"
)

// InMemoryStore is a thread-safe core.MemoryStore backed by a slice.
// Search is a case-insensitive substring match over category and fact,
// newest first.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []core.MemoryEntry
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Store appends a fact under the given category.
func (s *InMemoryStore) Store(_ context.Context, category, fact string) error {
	if strings.TrimSpace(fact) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, core.MemoryEntry{
		Category:  category,
		Fact:      fact,
		CreatedAt: time.Now(),
	})
	return nil
}

// Search returns up to limit entries matching the query, newest first.
// An empty query matches everything.
func (s *InMemoryStore) Search(_ context.Context, query string, limit int) ([]core.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(query)
	var matches []core.MemoryEntry
	for _, e := range s.entries {
		if q == "" ||
			strings.Contains(strings.ToLower(e.Fact), q) ||
			strings.Contains(strings.ToLower(e.Category), q) {
			matches = append(matches, e)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Len returns the number of stored entries.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
