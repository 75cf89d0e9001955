// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended
// for tests and local development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quotidian-app/engine/internal/domain/assignment"
	"github.com/quotidian-app/engine/internal/domain/quote"
	"github.com/quotidian-app/engine/internal/storage"
)

// Store holds the quote catalog and assignment table in maps. Assignment
// conflict semantics match the postgres store: insert-if-absent under a
// single lock, replace as an atomic overwrite.
type Store struct {
	mu          sync.RWMutex
	order       []string
	quotes      map[string]quote.Quote
	assignments map[string]assignment.Assignment
}

var _ storage.QuoteStore = (*Store)(nil)
var _ storage.AssignmentStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		quotes:      make(map[string]quote.Quote),
		assignments: make(map[string]assignment.Assignment),
	}
}

// AddQuote seeds the catalog. Insertion order is the store's stable
// iteration order for QuoteAt.
func (s *Store) AddQuote(q quote.Quote) quote.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	if _, exists := s.quotes[q.ID]; !exists {
		s.order = append(s.order, q.ID)
	}
	s.quotes[q.ID] = q
	return q
}

// --- QuoteStore -------------------------------------------------------------

func (s *Store) CountQuotes(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.order)), nil
}

func (s *Store) QuoteAt(ctx context.Context, offset int64) (quote.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if offset < 0 || offset >= int64(len(s.order)) {
		return quote.Quote{}, storage.ErrNotFound
	}
	return s.quotes[s.order[offset]], nil
}

func (s *Store) GetQuote(ctx context.Context, id string) (quote.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quotes[id]
	if !ok {
		return quote.Quote{}, storage.ErrNotFound
	}
	return q, nil
}

// --- AssignmentStore --------------------------------------------------------

func assignmentKey(identityKey, day string) string {
	return identityKey + "|" + day
}

func (s *Store) GetAssignment(ctx context.Context, identityKey, day string) (assignment.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assignments[assignmentKey(identityKey, day)]
	if !ok {
		return assignment.Assignment{}, storage.ErrNotFound
	}
	return a, nil
}

func (s *Store) InsertAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := assignmentKey(a.IdentityKey, a.Day)
	if _, exists := s.assignments[key]; exists {
		return assignment.Assignment{}, false, nil
	}

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	s.assignments[key] = a
	return a, true, nil
}

func (s *Store) ReplaceAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := assignmentKey(a.IdentityKey, a.Day)
	now := time.Now().UTC()

	if existing, exists := s.assignments[key]; exists {
		a.ID = existing.ID
		a.CreatedAt = existing.CreatedAt
	} else {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.CreatedAt = now
	}
	a.Viewed = false
	a.ViewedAt = time.Time{}
	a.UpdatedAt = now
	s.assignments[key] = a
	return a, nil
}

func (s *Store) DeleteAssignment(ctx context.Context, identityKey, day string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.assignments, assignmentKey(identityKey, day))
	return nil
}

func (s *Store) MarkViewed(ctx context.Context, identityKey, day string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := assignmentKey(identityKey, day)
	a, ok := s.assignments[key]
	if !ok {
		return storage.ErrNotFound
	}
	a.Viewed = true
	a.ViewedAt = at.UTC()
	a.UpdatedAt = at.UTC()
	s.assignments[key] = a
	return nil
}
