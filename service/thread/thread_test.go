package thread

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	th := NewThread("groceries")
	th.Append(NewMessage(RoleUser, "hello"))
	require.NoError(t, store.Save(ctx, []*Thread{th}))

	// Mutating the saved thread afterwards must not leak into the store.
	th.Append(NewMessage(RoleUser, "mutated after save"))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Len(t, loaded[0].Messages, 1)
}

func TestManager_LoadOnInit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	th := NewThread("existing")
	th.Append(NewMessage(RoleAgent, "welcome back"))
	require.NoError(t, store.Save(ctx, []*Thread{th}))

	m, err := NewManager(ctx, store, nil)
	require.NoError(t, err)

	got, ok := m.Get(th.ID)
	require.True(t, ok)
	assert.Equal(t, "existing", got.Title)
	assert.Len(t, got.Messages, 1)
}

func TestManager_SaveOnMutation(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{inner: NewMemoryStore()}

	m, err := NewManager(ctx, store, nil)
	require.NoError(t, err)

	th := m.Create(ctx, "new thread")
	assert.Equal(t, 1, store.saves)

	require.NoError(t, m.Append(ctx, th.ID, NewMessage(RoleUser, "hi")))
	assert.Equal(t, 2, store.saves)

	loaded, err := store.inner.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Len(t, loaded[0].Messages, 1)
}

func TestManager_AppendUnknownThread(t *testing.T) {
	ctx := context.Background()
	m, err := NewManager(ctx, NewMemoryStore(), nil)
	require.NoError(t, err)

	err = m.Append(ctx, "no-such-thread", NewMessage(RoleUser, "hi"))
	require.Error(t, err)
}

// Persistence failures are best-effort: the conversation keeps its in-memory
// state and mutations still succeed.
func TestManager_SaveFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{}

	m, err := NewManager(ctx, store, nil)
	require.NoError(t, err)

	th := m.Create(ctx, "doomed saves")
	require.NoError(t, m.Append(ctx, th.ID, NewMessage(RoleUser, "still here")))

	got, ok := m.Get(th.ID)
	require.True(t, ok)
	assert.Len(t, got.Messages, 1)
}

type countingStore struct {
	mu    sync.Mutex
	inner *MemoryStore
	saves int
}

func (s *countingStore) Load(ctx context.Context) ([]*Thread, error) {
	return s.inner.Load(ctx)
}

func (s *countingStore) Save(ctx context.Context, threads []*Thread) error {
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	return s.inner.Save(ctx, threads)
}

type failingStore struct{}

func (s *failingStore) Load(context.Context) ([]*Thread, error) { return nil, nil }

func (s *failingStore) Save(context.Context, []*Thread) error {
	return errors.New("disk on fire")
}
