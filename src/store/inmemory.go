package store

import (
	"context"
	"sync"
)

// InMemoryStore is a thread-safe in-memory implementation of Store. Used
// when no Postgres DSN is configured (single-replica / local / test mode).
type InMemoryStore struct {
	mu         sync.Mutex
	namespaces map[string]map[string]int // project -> namespace -> count
	retraining map[string]map[int]int    // project -> model type -> count
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		namespaces: make(map[string]map[string]int),
		retraining: make(map[string]map[int]int),
	}
}

// SaveNamespaces overwrites project's namespace frequency table.
func (s *InMemoryStore) SaveNamespaces(ctx context.Context, project string, counts map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make(map[string]int, len(counts))
	for ns, c := range counts {
		copied[ns] = c
	}
	s.namespaces[project] = copied
	return nil
}

// LoadNamespaces returns project's namespace frequency table, or an empty
// map if none has been saved yet.
func (s *InMemoryStore) LoadNamespaces(ctx context.Context, project string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts, ok := s.namespaces[project]
	if !ok {
		return map[string]int{}, nil
	}
	copied := make(map[string]int, len(counts))
	for ns, c := range counts {
		copied[ns] = c
	}
	return copied, nil
}

// ClearNamespaces removes project's namespace frequency table.
func (s *InMemoryStore) ClearNamespaces(ctx context.Context, project string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.namespaces, project)
	return nil
}

// IncrementRetrainingCount adds delta to project's running log count for
// modelType and returns the new total.
func (s *InMemoryStore) IncrementRetrainingCount(ctx context.Context, project string, modelType int, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byType, ok := s.retraining[project]
	if !ok {
		byType = make(map[int]int)
		s.retraining[project] = byType
	}
	byType[modelType] += delta
	return byType[modelType], nil
}

// ClearRetrainingCount resets project's running log count for modelType
// back to zero.
func (s *InMemoryStore) ClearRetrainingCount(ctx context.Context, project string, modelType int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if byType, ok := s.retraining[project]; ok {
		byType[modelType] = 0
	}
	return nil
}

// Close is a no-op for in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
