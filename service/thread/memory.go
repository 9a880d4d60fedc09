package thread

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for tests and ephemeral CLI sessions.
type MemoryStore struct {
	mu      sync.Mutex
	threads []*Thread
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context) ([]*Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.threads), nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, threads []*Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads = cloneAll(threads)
	return nil
}

func cloneAll(threads []*Thread) []*Thread {
	out := make([]*Thread, len(threads))
	for i, t := range threads {
		out[i] = t.Clone()
	}
	return out
}
