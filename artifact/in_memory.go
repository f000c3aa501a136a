// Package artifact records named deliverables produced during a run. The
// facade stores each successful run's final output here, and tools may
// record files or reports they produce alongside it.
package artifact

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when a requested artifact does not exist.
var ErrNotFound = errors.New("artifact not found")

// Artifact is one recorded deliverable.
type Artifact struct {
	RunID     string    `json:"run_id"`
	Name      string    `json:"name"`
	Data      []byte    `json:"data"`
	MimeType  string    `json:"mime_type,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists artifacts per run.
type Store interface {
	Save(ctx context.Context, artifact Artifact) error
	Load(ctx context.Context, runID, name string) (Artifact, error)
	List(ctx context.Context, runID string) ([]string, error)
}

// InMemoryStore is a thread-safe Store backed by nested maps.
type InMemoryStore struct {
	mu   sync.RWMutex
	runs map[string]map[string]Artifact
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{runs: map[string]map[string]Artifact{}}
}

// Save records an artifact, replacing any prior artifact of the same name.
func (s *InMemoryStore) Save(_ context.Context, artifact Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now()
	}
	byName, ok := s.runs[artifact.RunID]
	if !ok {
		byName = map[string]Artifact{}
		s.runs[artifact.RunID] = byName
	}
	byName[artifact.Name] = artifact
	return nil
}

// Load returns the named artifact for a run.
func (s *InMemoryStore) Load(_ context.Context, runID, name string) (Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.runs[runID][name]; ok {
		return a, nil
	}
	return Artifact{}, ErrNotFound
}

// List returns the artifact names recorded for a run.
func (s *InMemoryStore) List(_ context.Context, runID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for name := range s.runs[runID] {
		names = append(names, name)
	}
	return names, nil
}
