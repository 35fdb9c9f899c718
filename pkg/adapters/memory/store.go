package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/google/uuid"
)

// Store implements ports.ExecutionStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.ExecutionRecord
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.ExecutionRecord),
	}
}

// Create persists a copy of the record.
func (s *Store) Create(ctx context.Context, record *domain.ExecutionRecord) (*domain.ExecutionRecord, error) {
	// Copy to ensure isolation, similar to serialization
	stored := record.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[stored.ID] = stored
	return stored.Clone(), nil
}

// FindByID retrieves a copy of the record.
func (s *Store) FindByID(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[id]
	if !ok {
		return nil, domain.ErrExecutionNotFound
	}

	// Copy on read so caller can't mutate store state directly by pointer
	return rec.Clone(), nil
}

// Update applies the partial write in place.
func (s *Store) Update(ctx context.Context, id string, update domain.ExecutionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data[id]
	if !ok {
		return domain.ErrExecutionNotFound
	}
	next := *rec
	update.Apply(&next)
	s.data[id] = next.Clone()
	return nil
}

// List returns matching records, newest first.
func (s *Store) List(ctx context.Context, filter domain.ExecutionFilter) ([]*domain.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.ExecutionRecord, 0, len(s.data))
	for _, rec := range s.data {
		if filter.Match(rec) {
			out = append(out, rec.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *domain.ExecutionRecord) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
