package pipeline

import (
	"sync"

	"github.com/filesmile/backend/internal/models"
)

// Store owns one batch and serializes Dispatch calls. Each dispatch is a single
// atomic replace of the state.
type Store struct {
	mu    sync.RWMutex
	state State
}

// NewStore returns a store holding an empty batch.
func NewStore() *Store {
	return &Store{state: State{Files: []models.BarcodeFile{}}}
}

// Dispatch reduces the current state with a and returns a snapshot of the result.
func (s *Store) Dispatch(a Action) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := Reduce(s.state, a)
	if err != nil {
		return s.state.Clone(), err
	}
	s.state = next
	return next.Clone(), nil
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// File returns a copy of one file.
func (s *Store) File(id string) (models.BarcodeFile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.state.Find(id)
	if ok && f.MatchedDocument != nil {
		doc := *f.MatchedDocument
		f.MatchedDocument = &doc
	}
	return f, ok
}
