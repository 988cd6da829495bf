package store

import (
	"context"
	"sort"
	"sync"

	"github.com/zestify/healthmem/pkg/template"
)

// MemoryRawStore is an in-memory RawStore for tests and ephemeral sessions.
// Safe for concurrent use.
type MemoryRawStore struct {
	mu   sync.RWMutex
	data map[string]map[template.Category][]byte
}

// NewMemoryRawStore creates an empty in-memory raw store.
func NewMemoryRawStore() *MemoryRawStore {
	return &MemoryRawStore{data: make(map[string]map[template.Category][]byte)}
}

// Load returns the stored bytes for a key, with ok=false if absent.
func (s *MemoryRawStore) Load(ctx context.Context, userID string, category template.Category) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	body, ok := s.data[userID][category]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out, true, nil
}

// Save replaces the stored bytes for a key.
func (s *MemoryRawStore) Save(ctx context.Context, userID string, category template.Category, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data[userID] == nil {
		s.data[userID] = make(map[template.Category][]byte)
	}
	body := make([]byte, len(data))
	copy(body, data)
	s.data[userID][category] = body
	return nil
}

// Categories lists the categories stored for a user, sorted.
func (s *MemoryRawStore) Categories(ctx context.Context, userID string) ([]template.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]template.Category, 0, len(s.data[userID]))
	for c := range s.data[userID] {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })
	return categories, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryRawStore) Close() error {
	return nil
}

// Compile-time interface checks
var (
	_ RawStore = (*MemoryRawStore)(nil)
	_ RawStore = (*SQLiteRawStore)(nil)
)
