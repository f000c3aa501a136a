// Package session stores conversation transcripts per run so consecutive
// steps of the same run can see what was already said.
package session

import (
	"context"
	"sync"

	"github.com/agentforge/agentforge/core"
)

// Store is the transcript store interface the executor depends on.
type Store interface {
	Append(ctx context.Context, runID string, messages ...core.Message) error
	History(ctx context.Context, runID string) ([]core.Message, error)
	Clear(ctx context.Context, runID string) error
}

// InMemoryStore is a thread-safe Store backed by a map keyed by run ID.
type InMemoryStore struct {
	mu          sync.RWMutex
	transcripts map[string][]core.Message
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{transcripts: map[string][]core.Message{}}
}

// Append adds messages to a run's transcript.
func (s *InMemoryStore) Append(_ context.Context, runID string, messages ...core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts[runID] = append(s.transcripts[runID], messages...)
	return nil
}

// History returns a copy of a run's transcript in append order.
func (s *InMemoryStore) History(_ context.Context, runID string) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	transcript := s.transcripts[runID]
	out := make([]core.Message, len(transcript))
	copy(out, transcript)
	return out, nil
}

// Clear removes a run's transcript.
func (s *InMemoryStore) Clear(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transcripts, runID)
	return nil
}
