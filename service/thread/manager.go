package thread

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Manager owns the thread collection for a session. It loads the collection
// from its store on construction and writes the whole snapshot back on every
// mutation. Save failures are logged and swallowed: the conversation
// continues in memory for the session.
type Manager struct {
	store  Store
	logger *slog.Logger

	mu      sync.Mutex
	threads []*Thread
}

// NewManager creates a manager and loads the persisted collection.
func NewManager(ctx context.Context, store Store, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	threads, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load threads: %w", err)
	}
	return &Manager{
		store:   store,
		logger:  logger,
		threads: threads,
	}, nil
}

// Create adds a new empty thread to the collection and persists the snapshot.
func (m *Manager) Create(ctx context.Context, title string) *Thread {
	m.mu.Lock()
	t := NewThread(title)
	m.threads = append(m.threads, t)
	m.mu.Unlock()

	m.save(ctx)
	return t.Clone()
}

// Get returns a copy of the thread with the given id.
func (m *Manager) Get(id string) (*Thread, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.threads {
		if t.ID == id {
			return t.Clone(), true
		}
	}
	return nil, false
}

// List returns a copy of the full collection.
func (m *Manager) List() []*Thread {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneAll(m.threads)
}

// Append adds a message to a thread and persists the snapshot.
func (m *Manager) Append(ctx context.Context, threadID string, msg Message) error {
	m.mu.Lock()
	var target *Thread
	for _, t := range m.threads {
		if t.ID == threadID {
			target = t
			break
		}
	}
	if target == nil {
		m.mu.Unlock()
		return fmt.Errorf("thread %s not found", threadID)
	}
	target.Append(msg)
	m.mu.Unlock()

	m.save(ctx)
	return nil
}

// save writes the whole snapshot, logging failures rather than surfacing
// them. Thread state is non-critical; losing a save must never break chat.
func (m *Manager) save(ctx context.Context) {
	m.mu.Lock()
	snapshot := cloneAll(m.threads)
	m.mu.Unlock()

	if err := m.store.Save(ctx, snapshot); err != nil {
		m.logger.Warn("failed to persist thread snapshot", "error", err)
	}
}
