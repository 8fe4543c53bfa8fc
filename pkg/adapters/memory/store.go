package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/aretw0/weft/pkg/domain"
)

// Store implements ports.FlowStore in memory.
// Documents are kept encoded so callers never share maps with the store.
// Safe for concurrent use.
type Store struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string][]byte),
	}
}

// Save persists the document in memory.
func (s *Store) Save(ctx context.Context, id string, doc domain.FlowDocument) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = raw
	return nil
}

// Load retrieves the document from memory.
func (s *Store) Load(ctx context.Context, id string) (domain.FlowDocument, error) {
	s.mu.RLock()
	raw, ok := s.data[id]
	s.mu.RUnlock()

	var doc domain.FlowDocument
	if !ok {
		return doc, domain.ErrWorkspaceNotFound
	}
	err := json.Unmarshal(raw, &doc)
	return doc, err
}

// Delete removes the document.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// List returns the stored workspace ids, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
